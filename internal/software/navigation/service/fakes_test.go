package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"
	"fieldnav/internal/software/navigation/engine"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	jobOrigin = geo.Coordinate{Lat: 33.749, Lng: -84.390}
	jobSite   = geo.Coordinate{Lat: 33.800, Lng: -84.350}
)

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type stubDirections struct{}

func (stubDirections) Route(_ context.Context, o, d geo.Coordinate, _ ports.RouteOptions) (navigation.Route, error) {
	mid := geo.Coordinate{Lat: (o.Lat + d.Lat) / 2, Lng: (o.Lng + d.Lng) / 2}
	return navigation.Route{
		Steps: []navigation.RouteStep{
			{InstructionText: "Head north on Peachtree St", DistanceMeters: 2000, DurationSeconds: 200, StartCoord: o, EndCoord: mid},
			{InstructionText: "Turn right onto North Ave", DistanceMeters: 3000, DurationSeconds: 300, StartCoord: mid, EndCoord: d},
			{InstructionText: "Arrive at destination", DistanceMeters: 0, DurationSeconds: 0, StartCoord: d, EndCoord: d},
		},
		TotalDistanceMeters:  5000,
		TotalDurationSeconds: 500,
	}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(context.Context, string) (geo.Coordinate, error) { return jobSite, nil }

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type publishedMsg struct {
	exchange, key string
	body          []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

func (p *recordingPublisher) PublishJSON(_ context.Context, exchange, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, publishedMsg{exchange, key, body})
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		if m.key != "" {
			out = append(out, m.key)
		}
	}
	return out
}

func (p *recordingPublisher) progressCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.key == "" {
			n++
		}
	}
	return n
}

type sessionEvent struct {
	op    string
	id    string
	state navigation.State
}

type recordingSessions struct {
	mu     sync.Mutex
	events []sessionEvent
}

func (r *recordingSessions) add(e sessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSessions) Start(_ context.Context, rec *navigation.SessionRecord) error {
	r.add(sessionEvent{"start", rec.ID, rec.State})
	return nil
}

func (r *recordingSessions) UpdateState(_ context.Context, id string, st navigation.State, _ string, _ time.Time) error {
	r.add(sessionEvent{"update", id, st})
	return nil
}

func (r *recordingSessions) End(_ context.Context, id string, st navigation.State, _ string, _ time.Time) error {
	r.add(sessionEvent{"end", id, st})
	return nil
}

func (r *recordingSessions) ended(id string) (navigation.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.op == "end" && e.id == id {
			return e.state, true
		}
	}
	return "", false
}

type recordingHistory struct {
	mu   sync.Mutex
	recs []*geo.LocationHistory
}

func (r *recordingHistory) Archive(_ context.Context, rec *geo.LocationHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recordingHistory) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (b *recordingBroadcaster) BroadcastProgress(body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies = append(b.bodies, body)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bodies)
}

// oneShotConsumer hands a single delivery to the handler, then waits for ctx.
type oneShotConsumer struct {
	body  []byte
	queue chan string
}

func (c *oneShotConsumer) ConsumeLoop(ctx context.Context, queue, _ string, _ int, handler func(context.Context, amqp.Delivery) error) {
	c.queue <- queue
	_ = handler(ctx, amqp.Delivery{Body: c.body})
	<-ctx.Done()
}

type harness struct {
	svc       ports.NavigationService
	pub       *recordingPublisher
	sessions  *recordingSessions
	history   *recordingHistory
	broadcast *recordingBroadcaster
}

// newHarness builds a service over recording fakes. An optional engine config
// replaces the default short timeouts.
func newHarness(t *testing.T, cfg ...engine.Config) *harness {
	t.Helper()
	engineCfg := engine.Config{RouteTimeout: time.Second, GeocodeTimeout: time.Second}
	if len(cfg) > 0 {
		engineCfg = cfg[0]
	}
	h := &harness{
		pub:       &recordingPublisher{},
		sessions:  &recordingSessions{},
		history:   &recordingHistory{},
		broadcast: &recordingBroadcaster{},
	}
	h.svc = NewNavigationService(Deps{
		Logger:      newHarnessLogger(),
		UoW:         passthroughUoW{},
		Sessions:    h.sessions,
		History:     h.history,
		Geocoder:    stubGeocoder{},
		Directions:  stubDirections{},
		Publisher:   h.pub,
		Broadcaster: h.broadcast,
	}, Options{Engine: engineCfg})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.svc.Shutdown(ctx)
	})
	return h
}

func (h *harness) state(t *testing.T, technicianID string) string {
	t.Helper()
	v, err := h.svc.GetSnapshot(context.Background(), technicianID)
	if err != nil {
		return ""
	}
	return v.State
}

func point(c geo.Coordinate) *ports.GeoPoint {
	return &ports.GeoPoint{Latitude: c.Lat, Longitude: c.Lng}
}

func newHarnessLogger() *logger.Logger {
	return logger.NewWithWriter("test", io.Discard)
}
