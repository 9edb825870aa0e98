package service

import (
	"context"
	"sync"

	"fieldnav/internal/ports"
)

// positionHub is a technician's live position stream. Devices push into it
// through feeds (WebSocket, HTTP); the session tracker subscribes to it as
// its PositionSource.
type positionHub struct {
	mu        sync.Mutex
	listeners map[uint64]func(ports.PositionUpdate)
	nextID    uint64
	feeds     int
}

func newPositionHub() *positionHub {
	return &positionHub{listeners: make(map[uint64]func(ports.PositionUpdate))}
}

var _ ports.PositionSource = (*positionHub)(nil)

// Subscribe registers fn until the subscription is cancelled or ctx ends.
// Devices decide accuracy and age, so the options are not interpreted here.
func (h *positionHub) Subscribe(ctx context.Context, _ ports.SubscribeOptions, fn func(ports.PositionUpdate)) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	sub := &hubSubscription{hub: h, id: id}
	sub.stop = context.AfterFunc(ctx, sub.remove)
	return sub, nil
}

func (h *positionHub) push(u ports.PositionUpdate) {
	h.mu.Lock()
	fns := make([]func(ports.PositionUpdate), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (h *positionHub) attach() ports.PositionFeed {
	h.mu.Lock()
	h.feeds++
	h.mu.Unlock()
	return &hubFeed{hub: h}
}

// Feeds reports how many device streams are attached.
func (h *positionHub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.feeds
}

func (h *positionHub) listening() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

type hubSubscription struct {
	hub  *positionHub
	id   uint64
	once sync.Once
	stop func() bool
}

func (s *hubSubscription) Cancel() {
	s.stop()
	s.remove()
}

func (s *hubSubscription) remove() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.listeners, s.id)
		s.hub.mu.Unlock()
	})
}

type hubFeed struct {
	hub  *positionHub
	once sync.Once
}

func (f *hubFeed) Push(u ports.PositionUpdate) { f.hub.push(u) }

func (f *hubFeed) Close() {
	f.once.Do(func() {
		f.hub.mu.Lock()
		f.hub.feeds--
		f.hub.mu.Unlock()
	})
}
