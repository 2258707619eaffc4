package messaging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"smarter-store/internal/data/entity"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeChannel struct {
	closed    bool
	failWith  error
	published []amqp.Publishing
	keys      []string
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

// fakeBroker hands out a fresh connection and channel per dial.
type fakeBroker struct {
	down     bool
	conns    []*fakeConn
	channels []*fakeChannel
}

func (b *fakeBroker) dial() (io.Closer, amqpChannel, error) {
	if b.down {
		return nil, nil, errors.New("dial rabbitmq: connection refused")
	}
	conn, ch := &fakeConn{}, &fakeChannel{}
	b.conns = append(b.conns, conn)
	b.channels = append(b.channels, ch)
	return conn, ch, nil
}

func (b *fakeBroker) current() *fakeChannel {
	return b.channels[len(b.channels)-1]
}

func testEvent(t BookingEventType) BookingEvent {
	booking := &entity.Booking{
		Base:       entity.Base{ID: uuid.New()},
		OrderID:    "HOLD-20260301-190000-0001",
		ScheduleID: uuid.New(),
		UserID:     uuid.New(),
		Status:     entity.BookingStatusPending,
	}
	return NewBookingEvent(t, booking, []entity.Position{{Row: 1, Column: 1}}, time.Now())
}

func TestRabbitPublisher_Publish(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	event := testEvent(BookingStarted)
	require.NoError(t, p.PublishBookingEvent(context.Background(), event))

	ch := broker.current()
	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"booking.started"}, ch.keys)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, event.BookingID+":booking.started", ch.published[0].MessageId)
}

func TestRabbitPublisher_RedialsClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	// broker restarted, the old channel is gone
	broker.current().closed = true

	require.NoError(t, p.PublishBookingEvent(context.Background(), testEvent(BookingConfirmed)))
	require.Len(t, broker.channels, 2)
	assert.True(t, broker.conns[0].closed)
	assert.Len(t, broker.current().published, 1)
}

func TestRabbitPublisher_RedialsWhenPublishReportsClosed(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	broker.current().failWith = amqp.ErrClosed

	require.NoError(t, p.PublishBookingEvent(context.Background(), testEvent(BookingExpired)))
	require.Len(t, broker.channels, 2)
	assert.Empty(t, broker.channels[0].published)
	assert.Equal(t, []string{"booking.expired"}, broker.current().keys)
}

func TestRabbitPublisher_KeepsRetryingWhileBrokerIsDown(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	broker.current().closed = true
	broker.down = true

	err = p.PublishBookingEvent(context.Background(), testEvent(BookingCancelled))
	require.Error(t, err)

	broker.down = false
	require.NoError(t, p.PublishBookingEvent(context.Background(), testEvent(BookingCancelled)))
	assert.Len(t, broker.current().published, 1)
}

func TestRabbitPublisher_OtherErrorsAreNotRetried(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	boom := errors.New("frame too large")
	broker.current().failWith = boom

	err = p.PublishBookingEvent(context.Background(), testEvent(BookingStarted))
	require.ErrorIs(t, err, boom)
	assert.Len(t, broker.channels, 1)
}

func TestRabbitPublisher_Close(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newRabbitPublisher(broker.dial, "bookings", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, broker.current().closed)
	assert.True(t, broker.conns[0].closed)
	require.NoError(t, p.Close())
}
