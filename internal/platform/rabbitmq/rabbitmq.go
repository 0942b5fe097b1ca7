// Package rabbitmq provides the topic-exchange publish/subscribe client used
// for the order saga choreography. A missing or unreachable broker degrades
// the client to a disabled state: publish and consume calls log a warning
// and no-op instead of failing the caller.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeTypeTopic and ExchangeTypeFanout are the supported exchange kinds.
const (
	ExchangeTypeTopic  = "topic"
	ExchangeTypeFanout = "fanout"
)

// Config carries the broker settings, usually read from the environment.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
	Prefetch     int
}

// Delivery is one consumed message. Payload is always valid JSON: a body
// that fails to parse is wrapped as {"raw": "<body>"} so the handler still
// sees it instead of the message being discarded silently.
type Delivery struct {
	RoutingKey string
	Payload    json.RawMessage
}

// Handler processes one delivery. Acknowledgment is tied to the handler's
// return, not to whether its internal logic detected a business error.
type Handler func(ctx context.Context, d Delivery)

// Client is an explicitly constructed transport instance, injected into the
// service and handlers so tests can substitute it.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New builds a client; call Connect before publishing or consuming.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = ExchangeTypeTopic
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Connect dials the broker and declares the exchange. It is idempotent and
// never returns a dial error: absent configuration or a failed dial leaves
// the client disabled with a warning.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return nil
	}
	if c.cfg.URL == "" {
		c.logger.WarnContext(ctx, "rabbitmq disabled, RABBITMQ_URL not set")
		return nil
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		c.logger.WarnContext(ctx, "rabbitmq connection failed, transport disabled",
			slog.String("error", err.Error()))
		return nil
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		c.logger.WarnContext(ctx, "rabbitmq channel failed, transport disabled",
			slog.String("error", err.Error()))
		return nil
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		c.logger.WarnContext(ctx, "rabbitmq confirm mode failed, transport disabled",
			slog.String("error", err.Error()))
		return nil
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, c.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		c.logger.WarnContext(ctx, "rabbitmq exchange declare failed, transport disabled",
			slog.String("error", err.Error()))
		return nil
	}
	c.conn = conn
	c.ch = ch
	c.logger.InfoContext(ctx, "rabbitmq connected",
		slog.String("exchange", c.cfg.Exchange), slog.String("type", c.cfg.ExchangeType))
	return nil
}

// Enabled reports whether the client holds a live channel.
func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil
}

// Close releases the channel and connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Publish JSON-encodes the payload and publishes it through the exchange
// with delivery confirmation. On a fanout exchange the routing key is forced
// empty regardless of the key passed in. A disabled client warns and no-ops.
func (c *Client) Publish(ctx context.Context, routingKey string, payload any) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		c.logger.WarnContext(ctx, "rabbitmq unavailable, publish skipped",
			slog.String("routing_key", routingKey))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", routingKey, err)
	}
	key := routingKey
	if c.cfg.ExchangeType == ExchangeTypeFanout {
		key = ""
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, c.cfg.Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-confirmation.Done():
		if !confirmation.Acked() {
			return fmt.Errorf("publish %s: nacked by broker", routingKey)
		}
	}
	c.logger.DebugContext(ctx, "event published",
		slog.String("routing_key", routingKey), slog.Int("bytes", len(body)))
	return nil
}

// StartConsumer declares the queue, binds the patterns, and processes
// messages sequentially on a dedicated channel until ctx is cancelled. An
// empty queue name declares an exclusive, broker-named ephemeral queue;
// otherwise the queue is durable. Each message is acknowledged after the
// handler returns, panics included.
func (c *Client) StartConsumer(ctx context.Context, queueName string, patterns []string, handler Handler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.WarnContext(ctx, "rabbitmq unavailable, consumer not started",
			slog.String("queue", queueName))
		return nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer channel: %w", err)
	}
	durable := queueName != ""
	queue, err := ch.QueueDeclare(queueName, durable, false, !durable, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", queueName, err)
	}
	if c.cfg.ExchangeType == ExchangeTypeFanout {
		patterns = []string{""}
	}
	for _, pattern := range patterns {
		if err := ch.QueueBind(queue.Name, pattern, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %q to %q: %w", queue.Name, pattern, err)
		}
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", queue.Name, err)
	}
	c.logger.InfoContext(ctx, "consumer started",
		slog.String("queue", queue.Name), slog.Any("patterns", patterns))

	go func() {
		defer ch.Close()
		for msg := range deliveries {
			c.dispatch(ctx, msg, handler)
			if err := msg.Ack(false); err != nil {
				c.logger.ErrorContext(ctx, "message ack failed",
					slog.String("routing_key", msg.RoutingKey), slog.String("error", err.Error()))
			}
		}
		c.logger.InfoContext(ctx, "consumer stopped", slog.String("queue", queue.Name))
	}()
	return nil
}

func (c *Client) dispatch(ctx context.Context, msg amqp.Delivery, handler Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorContext(ctx, "handler panicked, message dropped",
				slog.String("routing_key", msg.RoutingKey), slog.Any("panic", rec))
		}
	}()
	handler(ctx, Delivery{RoutingKey: msg.RoutingKey, Payload: wrapPayload(msg.Body)})
}

func wrapPayload(body []byte) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
	if err != nil {
		return json.RawMessage(`{"raw":""}`)
	}
	return wrapped
}
