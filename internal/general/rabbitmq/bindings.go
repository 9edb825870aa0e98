package rabbitmq

import (
	"fmt"

	"fieldnav/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type exchangeDecl struct {
	name string
	kind string
}

type bindingDecl struct {
	queue      string
	exchange   string
	routingKey string
}

var (
	navExchanges = []exchangeDecl{
		{contracts.ExchangeNavigationTopic, amqp.ExchangeTopic},
		{contracts.ExchangeNavProgressFanout, amqp.ExchangeFanout},
	}
	navQueues = []string{
		contracts.QueueNavigationStatus,
		contracts.QueueNavigationProgress,
	}
	navBindings = []bindingDecl{
		{contracts.QueueNavigationStatus, contracts.ExchangeNavigationTopic, contracts.RouteNavStatusPrefix + "*"},
		{contracts.QueueNavigationProgress, contracts.ExchangeNavProgressFanout, ""},
	}
)

// topologyChannel is the part of *amqp.Channel declareTopology needs.
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareTopology(ch topologyChannel) error {
	for _, ex := range navExchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// progress is only interesting while fresh
	args := map[string]amqp.Table{
		contracts.QueueNavigationProgress: {"x-message-ttl": int32(60_000)},
	}
	for _, q := range navQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, args[q]); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	for _, b := range navBindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
