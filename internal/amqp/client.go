// Package amqp publishes and consumes snapshot notifications over RabbitMQ.
// The daemon publishes after each successful poll; the exporter worker
// consumes and writes rows to the spreadsheet.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 60 * time.Second
	maxBackoff  = 30 * time.Second
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  int64 // unix nanos, accessed atomically
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key matches the queue name on a direct exchange.
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// exponentialBackoff returns the wait before reconnect attempt n, capped at
// maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return maxBackoff
	}
	return time.Second << attempt
}

// isConnectionError reports whether err looks like a broken AMQP transport
// rather than an application-level failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, probe := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	last := time.Unix(0, atomic.LoadInt64(&c.lastFailure))
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	atomic.StoreInt64(&c.lastFailure, time.Now().UnixNano())
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// reconnect retries the connection with exponential backoff until it
// succeeds or ctx is cancelled.
func (c *Client) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		slog.InfoContext(ctx, "Reconnecting to AMQP", "attempt", attempt+1)
		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		c.recordSuccess()
		return nil
	}
}

// PublishSnapshotCreated publishes a snapshot notification. It fails fast
// when the circuit breaker is open so a broker outage cannot stall the poll
// loop.
func (c *Client) PublishSnapshotCreated(ctx context.Context, snapshotID, netWorthCents int64, fetchedAt time.Time) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish snapshot %d: circuit breaker is open", snapshotID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := NewSnapshotMessage(snapshotID, netWorthCents, fetchedAt)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published snapshot message",
		"snapshot_id", snapshotID,
		"net_worth_cents", netWorthCents,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeSnapshots delivers messages to handler with manual acks. A handler
// error requeues the delivery; an unparseable body is dropped. On a broken
// transport the consumer reconnects and resumes.
func (c *Client) ConsumeSnapshots(ctx context.Context, handler func(*SnapshotMessage) error) error {
	for {
		err := c.consumeOnce(ctx, handler)
		switch {
		case err == nil || ctx.Err() != nil:
			return ctx.Err()
		case isConnectionError(err):
			slog.WarnContext(ctx, "AMQP consumer lost connection", "error", err)
			if rerr := c.reconnect(ctx); rerr != nil {
				return rerr
			}
		default:
			return err
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(*SnapshotMessage) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	msgs, err := channel.Consume(
		c.queueName,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming snapshot messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: connection closed")
			}

			msg, err := SnapshotMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // drop, it will never parse
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"snapshot_id", msg.SnapshotID)
				delivery.Nack(false, true) // requeue for retry
				continue
			}

			delivery.Ack(false)
			slog.InfoContext(ctx, "Processed snapshot message", "snapshot_id", msg.SnapshotID)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
