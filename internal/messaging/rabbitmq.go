// Package messaging publishes booking lifecycle events for the external
// payment, coupon and statistics collaborators.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"smarter-store/internal/data/entity"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type BookingEventType string

const (
	BookingStarted   BookingEventType = "booking.started"
	BookingConfirmed BookingEventType = "booking.confirmed"
	BookingCancelled BookingEventType = "booking.cancelled"
	BookingExpired   BookingEventType = "booking.expired"
	// BookingRefundRequired is emitted when a confirm arrives after the lease.
	BookingRefundRequired BookingEventType = "booking.refund_required"
)

type BookingEvent struct {
	Type       BookingEventType     `json:"type"`
	BookingID  string               `json:"booking_id"`
	OrderID    string               `json:"order_id"`
	ScheduleID string               `json:"schedule_id"`
	UserID     string               `json:"user_id"`
	Status     entity.BookingStatus `json:"status"`
	Seats      []entity.Position    `json:"seats,omitempty"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewBookingEvent builds an event from the booking's current state.
func NewBookingEvent(t BookingEventType, b *entity.Booking, seats []entity.Position, at time.Time) BookingEvent {
	return BookingEvent{
		Type:       t,
		BookingID:  b.ID.String(),
		OrderID:    b.OrderID,
		ScheduleID: b.ScheduleID.String(),
		UserID:     b.UserID.String(),
		Status:     b.Status,
		Seats:      seats,
		ExpiresAt:  b.ExpiresAt,
		OccurredAt: at,
	}
}

type Publisher interface {
	PublishBookingEvent(ctx context.Context, event BookingEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when RabbitMQ is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingEvent(context.Context, BookingEvent) error { return nil }
func (NoopPublisher) Close() error                                           { return nil }

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func() (io.Closer, amqpChannel, error)

// RabbitPublisher publishes persistent JSON messages to a topic exchange,
// routed by event type. A closed connection or channel is redialed on the
// next publish.
type RabbitPublisher struct {
	mu       sync.Mutex
	dial     dialFunc
	conn     io.Closer
	ch       amqpChannel
	exchange string
	log      *zap.Logger
}

func NewRabbitPublisher(url, exchange string, log *zap.Logger) (*RabbitPublisher, error) {
	dial := func() (io.Closer, amqpChannel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}

		if err := ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // autoDelete
			false,    // internal
			false,    // noWait
			nil,      // args
		); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		return conn, ch, nil
	}

	return newRabbitPublisher(dial, exchange, log)
}

func newRabbitPublisher(dial dialFunc, exchange string, log *zap.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{
		dial:     dial,
		exchange: exchange,
		log:      log.With(zap.String("component", "rabbitmq")),
	}
	if err := p.redial(); err != nil {
		return nil, err
	}
	return p, nil
}

// redial replaces the connection and channel. Caller holds p.mu.
func (p *RabbitPublisher) redial() error {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn, p.ch = nil, nil
	}

	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *RabbitPublisher) PublishBookingEvent(ctx context.Context, event BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		MessageId:    fmt.Sprintf("%s:%s", event.BookingID, event.Type),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, string(event.Type), msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.log.Warn("RabbitMQ channel closed, reconnecting", zap.String("booking_id", event.BookingID))
		if err = p.redial(); err == nil {
			err = p.publish(ctx, string(event.Type), msg)
		}
	}
	if err != nil {
		p.log.Warn("Failed to publish booking event",
			zap.Error(err),
			zap.String("booking_id", event.BookingID),
			zap.String("type", string(event.Type)),
		)
		return fmt.Errorf("publish %s for booking %s: %w", event.Type, event.BookingID, err)
	}

	return nil
}

func (p *RabbitPublisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if p.ch == nil || p.ch.IsClosed() {
		return amqp.ErrClosed
	}
	return p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	defer func() { p.conn, p.ch = nil, nil }()

	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = p.conn.Close()
		return fmt.Errorf("close rabbitmq channel: %w", err)
	}
	if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close rabbitmq connection: %w", err)
	}
	return nil
}
