package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Mailbox appends a message to a user's notifications.
type Mailbox interface {
	Notify(ctx context.Context, recipientID uint64, message string) error
}

// errPoison marks messages that can never be processed.
var errPoison = errors.New("poison message")

// Consumer drains the notification queue into a Mailbox.  Run keeps a
// reconnect loop going until its context is cancelled.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	mailbox  Mailbox
	log      *zap.Logger
	maxWait  time.Duration
}

// NewConsumer builds a Consumer.  reconnect caps the backoff between dial
// attempts.
func NewConsumer(url, queue string, prefetch int, reconnect time.Duration, mailbox Mailbox, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = NotificationQueue
	}
	if prefetch <= 0 {
		prefetch = 16
	}
	if reconnect <= 0 {
		reconnect = 30 * time.Second
	}
	return &Consumer{url: url, queue: queue, prefetch: prefetch, mailbox: mailbox, log: log, maxWait: reconnect}
}

// Run consumes until ctx is done.  Broker failures are logged and retried
// with exponential backoff; Run only returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
		conn, err := dialContext(dialCtx, c.url)
		cancel()
		if err != nil {
			c.log.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < c.maxWait {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("notification consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("notification consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info("notification consumer started", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery stores one message and acknowledges it.  Undecodable
// messages are dropped.  A storage failure is requeued once; a message
// that fails again after redelivery is dropped so it cannot loop forever.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.process(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPoison):
		c.log.Error("notification consumer: dropping message", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false)
	default:
		requeue := !d.Redelivered
		c.log.Warn("notification consumer: store failed",
			zap.String("message_id", d.MessageId), zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
	}
}

func (c *Consumer) process(ctx context.Context, body []byte) error {
	var ev NotificationRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errPoison, err)
	}
	if ev.RecipientID == 0 || strings.TrimSpace(ev.Message) == "" {
		return fmt.Errorf("%w: missing recipient or message", errPoison)
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.mailbox.Notify(sctx, ev.RecipientID, ev.Message)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
