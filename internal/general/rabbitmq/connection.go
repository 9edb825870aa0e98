package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"fieldnav/internal/general/config"
	"fieldnav/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultHeartbeat   = 10 * time.Second
	defaultDialTimeout = 30 * time.Second
	maxBackoff         = 30 * time.Second
)

// Observer is told about broker connectivity. *metrics.Navigation implements it.
type Observer interface {
	BrokerConnected(up bool)
	BrokerReconnectFailed()
}

type nopObserver struct{}

func (nopObserver) BrokerConnected(bool)   {}
func (nopObserver) BrokerReconnectFailed() {}

// Options tune the broker connection. Zero values use the defaults above.
type Options struct {
	// ConnectionName shows up in the management UI next to the connection.
	ConnectionName string
	Heartbeat      time.Duration
	DialTimeout    time.Duration
	Observer       Observer
}

func (o Options) withDefaults() Options {
	if o.ConnectionName == "" {
		o.ConnectionName = "fieldnav"
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = defaultHeartbeat
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Client owns one AMQP connection with a confirm-mode publish channel.
// Consumers open their own channels on the same connection. When the
// connection or the publish channel drops, a watcher redials and re-declares
// the navigation topology.
type Client struct {
	url    string
	opts   Options
	logger *logger.Logger
	logCtx context.Context

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closeOnce sync.Once
	closed    chan struct{}
	lost      chan struct{}
}

// ConnectRabbitMQ dials the broker once and returns an error if that fails.
// Later drops are repaired in the background.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger, opts Options) (*Client, error) {
	client := &Client{
		url:    brokerURL(cfg),
		opts:   opts.withDefaults(),
		logger: logger,
		logCtx: context.WithoutCancel(ctx),
		closed: make(chan struct{}),
		lost:   make(chan struct{}, 1),
	}

	if err := client.connect(); err != nil {
		return nil, err
	}
	go client.watch()
	return client, nil
}

// brokerURL builds the AMQP URL; the vhost is path-escaped so "/" becomes "%2F".
func brokerURL(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(cfg.RabbitMQ.Host, strconv.Itoa(cfg.RabbitMQ.Port)),
		User:   url.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
	}
	vhost := cfg.RabbitMQ.VHost
	if vhost == "" {
		vhost = "/"
	}
	u.Path = "/" + vhost
	u.RawPath = "/" + url.PathEscape(vhost)
	return u.String()
}

// Close stops the watcher and releases the connection. Publishers blocked on
// a confirm get ErrNotConnected.
func (client *Client) Close() {
	client.closeOnce.Do(func() { close(client.closed) })

	client.mu.Lock()
	conn, ch := client.conn, client.pubChan
	client.conn, client.pubChan = nil, nil
	client.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	client.swapConfirms(nil)
	client.opts.Observer.BrokerConnected(false)
}

// Ready reports whether status messages can be published right now.
func (client *Client) Ready() bool {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.conn != nil && !client.conn.IsClosed() &&
		client.pubChan != nil && !client.pubChan.IsClosed()
}

// connect dials, opens the publish channel and swaps both in.
func (client *Client) connect() error {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat:  client.opts.Heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(client.opts.DialTimeout),
		Properties: amqp.Table{"connection_name": client.opts.ConnectionName},
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, confirms, err := client.openPublishChannel(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	client.mu.Lock()
	old := client.pubChan
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()
	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}
	client.swapConfirms(confirms)

	go client.logReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))
	go client.notifyLost(conn, ch)

	client.opts.Observer.BrokerConnected(true)
	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", map[string]any{
		"connection_name": client.opts.ConnectionName,
	})
	return nil
}

// openPublishChannel declares the topology and switches the channel to confirm mode.
func (client *Client) openPublishChannel(conn *amqp.Connection) (*amqp.Channel, chan amqp.Confirmation, error) {
	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return nil, nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare navigation topology", err, nil)
		return nil, nil, fmt.Errorf("rabbitmq: declare topology: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return nil, nil, fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}
	return ch, ch.NotifyPublish(make(chan amqp.Confirmation, 1)), nil
}

// swapConfirms installs the confirm stream of a new publish channel and
// closes the previous one so a publisher waiting on it wakes up.
func (client *Client) swapConfirms(next chan amqp.Confirmation) {
	client.pubMu.Lock()
	prev := client.pubConfirms
	client.pubConfirms = next
	client.pubMu.Unlock()
	if prev != nil {
		close(prev)
	}
}

// logReturns reports mandatory status messages that matched no binding.
func (client *Client) logReturns(returns <-chan amqp.Return) {
	for r := range returns {
		client.logger.Error(client.logCtx, "rabbitmq_returned", "Navigation message was unroutable",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{
				"exchange":    r.Exchange,
				"routing_key": r.RoutingKey,
				"size":        len(r.Body),
			})
	}
}

// notifyLost signals the watcher once conn or ch goes away.
func (client *Client) notifyLost(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	var cause *amqp.Error
	select {
	case <-client.closed:
		return
	case cause = <-connClosed:
	case cause = <-chClosed:
	}

	client.opts.Observer.BrokerConnected(false)
	details := map[string]any{}
	if cause != nil {
		details["code"] = cause.Code
		details["reason"] = cause.Reason
	}
	client.logger.Info(client.logCtx, "rabbitmq_connection_lost", "RabbitMQ connection lost, reconnecting", details)

	select {
	case client.lost <- struct{}{}:
	default:
	}
}

// watch redials after every loss until Close.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.lost:
			if !client.redial() {
				return
			}
		}
	}
}

// redial retries connect with capped exponential backoff. It returns false
// when the client was closed while retrying.
func (client *Client) redial() bool {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-client.closed:
			return false
		default:
		}

		err := client.connect()
		if err == nil {
			client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ", map[string]any{
				"attempts": attempt,
			})
			return true
		}
		client.opts.Observer.BrokerReconnectFailed()
		client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "Failed to reconnect to RabbitMQ", err, map[string]any{
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
		})

		select {
		case <-client.closed:
			return false
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
