package rabbitmq

import (
	"errors"
	"strings"
	"testing"

	"fieldnav/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingChannel struct {
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  []bindingDecl
	failOn    string
}

func (r *recordingChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if name == r.failOn {
		return errors.New("access refused")
	}
	r.exchanges[name] = kind
	return nil
}

func (r *recordingChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	r.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (r *recordingChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	r.bindings = append(r.bindings, bindingDecl{queue: name, exchange: exchange, routingKey: key})
	return nil
}

func TestDeclareTopology(t *testing.T) {
	ch := &recordingChannel{exchanges: map[string]string{}, queues: map[string]amqp.Table{}}
	if err := declareTopology(ch); err != nil {
		t.Fatalf("declareTopology: %v", err)
	}

	if ch.exchanges[contracts.ExchangeNavigationTopic] != "topic" || ch.exchanges[contracts.ExchangeNavProgressFanout] != "fanout" {
		t.Fatalf("exchanges = %v", ch.exchanges)
	}
	if ch.queues[contracts.QueueNavigationProgress]["x-message-ttl"] == nil {
		t.Fatal("progress queue declared without ttl")
	}
	found := false
	for _, b := range ch.bindings {
		if b.queue == contracts.QueueNavigationStatus && b.routingKey == "nav.status.*" {
			found = true
		}
	}
	if !found {
		t.Fatalf("status binding missing: %+v", ch.bindings)
	}
}

func TestDeclareTopologyReportsExchange(t *testing.T) {
	ch := &recordingChannel{exchanges: map[string]string{}, queues: map[string]amqp.Table{}, failOn: contracts.ExchangeNavProgressFanout}
	err := declareTopology(ch)
	if err == nil || !strings.Contains(err.Error(), contracts.ExchangeNavProgressFanout) {
		t.Fatalf("err = %v", err)
	}
}
