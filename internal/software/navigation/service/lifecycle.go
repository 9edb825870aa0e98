package service

import (
	"context"

	"fieldnav/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

const progressConsumerTag = "navigation-service-dispatch"

// RunBackgroundConsumers relays fleet progress from RabbitMQ to dispatch sockets.
// It returns immediately; the consumer stops when ctx is done.
func (service *navigationService) RunBackgroundConsumers(ctx context.Context) {
	if service.consumer == nil || service.broadcaster == nil {
		return
	}
	service.background.Add(1)
	go func() {
		defer service.background.Done()
		service.consumer.ConsumeLoop(ctx, contracts.QueueNavigationProgress, progressConsumerTag, service.opts.Prefetch,
			func(ctx context.Context, d amqp.Delivery) error {
				service.broadcaster.BroadcastProgress(d.Body)
				return nil
			})
	}()
}

// Shutdown destroys every hosted session and waits for forwarders to flush.
func (service *navigationService) Shutdown(ctx context.Context) {
	service.mu.Lock()
	service.closed = true
	techs := make([]*technician, 0, len(service.technicians))
	for _, t := range service.technicians {
		techs = append(techs, t)
	}
	service.mu.Unlock()

	for _, t := range techs {
		t.startMu.Lock()
		if h, ok := t.active(); ok {
			service.retire(ctx, t, h)
		}
		t.startMu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		service.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		service.logger.Error(ctx, "navigation_shutdown_timeout", "Background consumers did not stop in time", ctx.Err(), nil)
	}
	service.logger.Info(ctx, "navigation_service_stopped", "Navigation service stopped", map[string]any{
		"technicians": len(techs),
	})
}

func (service *navigationService) isClosed() bool {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.closed
}
