package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Publisher sends NotificationRequestedEvents to RabbitMQ.  It keeps one
// connection and channel open and redials when the broker dropped them.
// It satisfies the service Notifier interface.
//
// Dials never run under mu: concurrent publishers share a single dial, and
// after a failed dial callers fail fast for retryAfter instead of queueing
// behind another handshake.
type Publisher struct {
	url         string
	queue       string
	log         *zap.Logger
	dialTimeout time.Duration
	retryAfter  time.Duration
	dials       singleflight.Group

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	lastErr  error
	failedAt time.Time
}

// NewPublisher returns a Publisher for queue on the broker at url.  No
// connection is made until the first publish.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = NotificationQueue
	}
	return &Publisher{
		url:         url,
		queue:       queue,
		log:         log,
		dialTimeout: defaultDialTimeout,
		retryAfter:  defaultRetryAfter,
	}
}

const (
	defaultDialTimeout = 5 * time.Second
	defaultRetryAfter  = 2 * time.Second
)

// live returns the open channel, or nil.  Callers must hold p.mu.
func (p *Publisher) live() *amqp.Channel {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch
	}
	return nil
}

// channel returns an open channel, dialing when needed.  It returns as soon
// as ctx is done even if a shared dial is still running.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if ch := p.live(); ch != nil {
		p.mu.Unlock()
		return ch, nil
	}
	if p.lastErr != nil && time.Since(p.failedAt) < p.retryAfter {
		err := p.lastErr
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	res := p.dials.DoChan("dial", func() (interface{}, error) { return p.connect() })
	select {
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*amqp.Channel), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect dials the broker, opens a channel and declares the queue.  The
// whole handshake is bounded by dialTimeout.
func (p *Publisher) connect() (*amqp.Channel, error) {
	p.mu.Lock()
	if ch := p.live(); ch != nil {
		p.mu.Unlock()
		return ch, nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()

	conn, ch, err := p.open(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr, p.failedAt = err, time.Now()
		return nil, err
	}
	_ = p.closeLocked()
	p.conn, p.ch, p.lastErr = conn, ch, nil
	return ch, nil
}

func (p *Publisher) open(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := dialContext(ctx, p.url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// Durable so requests survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return conn, ch, nil
}

// dialContext opens an AMQP connection whose TCP connect and protocol
// handshake both end when ctx does.  The library clears the socket deadline
// once the connection is open.
func dialContext(ctx context.Context, url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if deadline, ok := ctx.Deadline(); ok {
				if err := conn.SetDeadline(deadline); err != nil {
					_ = conn.Close()
					return nil, err
				}
			}
			return conn, nil
		},
	})
}

// Notify publishes a persistent notification request for recipientID.
func (p *Publisher) Notify(ctx context.Context, recipientID uint64, message string) error {
	body, err := json.Marshal(NotificationRequestedEvent{
		RecipientID: recipientID,
		Message:     message,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	ch, err := p.channel(ctx)
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.Uint64("recipient_id", recipientID), zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		// Drop the channel so the next publish redials.
		p.mu.Lock()
		if p.ch == ch {
			_ = p.closeLocked()
		}
		p.mu.Unlock()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if !p.ch.IsClosed() {
			errs = append(errs, p.ch.Close())
		}
		p.ch = nil
	}
	if p.conn != nil {
		if !p.conn.IsClosed() {
			errs = append(errs, p.conn.Close())
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
