package broadcast

import (
	"context"
	"testing"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/pkg/metrics"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, time.Hour, metrics.New(), zap.NewNop())
}

func seatEvent(t EventType, scheduleID uuid.UUID, seats ...entity.Position) Event {
	return Event{Type: t, ScheduleID: scheduleID, Seats: seats, At: time.Now()}
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := newTestHub(8)
	scheduleID := uuid.New()
	sub := hub.Subscribe(context.Background(), scheduleID)
	defer sub.Close()

	a := entity.Position{Row: 1, Column: 1}
	hub.Publish(context.Background(), seatEvent(EventOccupied, scheduleID, a))
	hub.Publish(context.Background(), seatEvent(EventReleased, scheduleID, a))
	hub.Publish(context.Background(), seatEvent(EventOccupied, scheduleID, a))

	for _, want := range []EventType{EventOccupied, EventReleased, EventOccupied} {
		msg := receive(t, sub)
		require.NotNil(t, msg.Event)
		assert.Equal(t, want, msg.Event.Type)
		assert.Equal(t, []entity.Position{a}, msg.Event.Seats)
	}
}

func TestHub_OnlyDeliversToSameSchedule(t *testing.T) {
	hub := newTestHub(8)
	mine, other := uuid.New(), uuid.New()
	sub := hub.Subscribe(context.Background(), mine)
	defer sub.Close()

	hub.Publish(context.Background(), seatEvent(EventOccupied, other, entity.Position{Row: 1, Column: 1}))
	hub.Publish(context.Background(), seatEvent(EventConfirmed, mine, entity.Position{Row: 2, Column: 2}))

	msg := receive(t, sub)
	require.NotNil(t, msg.Event)
	assert.Equal(t, EventConfirmed, msg.Event.Type)
	assert.Equal(t, mine, msg.Event.ScheduleID)
	assert.Empty(t, sub.C())
}

func TestHub_IgnoresEventsWithoutSeats(t *testing.T) {
	hub := newTestHub(8)
	scheduleID := uuid.New()
	sub := hub.Subscribe(context.Background(), scheduleID)
	defer sub.Close()

	hub.Publish(context.Background(), Event{Type: EventReleased, ScheduleID: scheduleID})

	assert.Empty(t, sub.C())
}

func TestHub_SlowSubscriberMissesEvents(t *testing.T) {
	hub := newTestHub(1)
	scheduleID := uuid.New()
	slow := hub.Subscribe(context.Background(), scheduleID)
	defer slow.Close()
	fast := hub.Subscribe(context.Background(), scheduleID)
	defer fast.Close()

	seat := entity.Position{Row: 3, Column: 4}

	hub.Publish(context.Background(), seatEvent(EventOccupied, scheduleID, seat))
	receive(t, fast)
	hub.Publish(context.Background(), seatEvent(EventReleased, scheduleID, seat))
	receive(t, fast)
	hub.Publish(context.Background(), seatEvent(EventOccupied, scheduleID, seat))

	// publisher never blocked on the full buffer of slow
	msg := receive(t, slow)
	assert.Equal(t, EventOccupied, msg.Event.Type)
	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, EventOccupied, receive(t, fast).Event.Type)
}

func TestHub_ReapsSubscriptionWhenContextEnds(t *testing.T) {
	hub := newTestHub(4)
	scheduleID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	sub := hub.Subscribe(ctx, scheduleID)
	require.Equal(t, 1, hub.SubscriberCount(scheduleID))

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription was not reaped")
	}
	assert.Equal(t, 0, hub.SubscriberCount(scheduleID))

	_, open := <-sub.C()
	assert.False(t, open)

	// publishing to a schedule nobody watches is a no-op
	hub.Publish(context.Background(), seatEvent(EventOccupied, scheduleID, entity.Position{Row: 1, Column: 1}))
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := newTestHub(4)
	sub := hub.Subscribe(context.Background(), uuid.New())

	sub.Close()
	sub.Close()

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestHub_KeepAlive(t *testing.T) {
	hub := newTestHub(4)
	sub := hub.Subscribe(context.Background(), uuid.New())
	defer sub.Close()

	hub.KeepAlive()

	msg := receive(t, sub)
	assert.True(t, msg.KeepAlive)
	assert.Nil(t, msg.Event)
}

func TestHub_RunSendsKeepAlivesAndClosesOnShutdown(t *testing.T) {
	hub := NewHub(4, 10*time.Millisecond, metrics.New(), zap.NewNop())
	sub := hub.Subscribe(context.Background(), uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	msg := receive(t, sub)
	assert.True(t, msg.KeepAlive)

	cancel()
	require.NoError(t, <-done)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not close subscriptions")
	}

	late := hub.Subscribe(context.Background(), uuid.New())
	_, open := <-late.C()
	assert.False(t, open, "subscriptions after shutdown are closed immediately")
}
