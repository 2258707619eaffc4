package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay shares seat events between service instances. Publish goes to a
// Redis channel per schedule and Run feeds every received event into the
// local hub, so each instance serves its own subscribers. While the relay is
// not subscribed, events are also delivered to the local hub directly.
type RedisRelay struct {
	client     *redis.Client
	hub        *Hub
	prefix     string
	subscribed atomic.Bool
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *zap.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, prefix string, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		hub:        hub,
		prefix:     prefix,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		log:        log.With(zap.String("component", "redis_relay")),
	}
}

func (r *RedisRelay) channel(event Event) string {
	return fmt.Sprintf("%s:%s", r.prefix, event.ScheduleID)
}

func (r *RedisRelay) pattern() string {
	return r.prefix + ":*"
}

// Subscribed reports whether relayed events currently reach the local hub.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Publish sends event through Redis. When Redis is unreachable, or the relay
// is not subscribed, the event is delivered to local subscribers as well.
func (r *RedisRelay) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error("Failed to encode seat event", zap.Error(err))
		return
	}

	if err := r.client.Publish(ctx, r.channel(event), payload).Err(); err != nil {
		r.log.Warn("Redis publish failed, delivering locally",
			zap.Error(err),
			zap.String("schedule_id", event.ScheduleID.String()),
			zap.String("type", string(event.Type)),
		)
		r.hub.Publish(ctx, event)
		return
	}

	if !r.subscribed.Load() {
		r.hub.Publish(ctx, event)
	}
}

// Run consumes relayed events until ctx is done. Lost connections are
// retried with exponential backoff; the pattern subscription is restored on
// every reconnect.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.pattern())
	defer r.subscribed.Store(false)

	// Receive does not watch ctx, closing the pubsub unblocks it
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer func() {
		if stop() {
			_ = pubsub.Close()
		}
	}()

	backoff := r.minBackoff
	for {
		msg, err := pubsub.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if r.subscribed.Swap(false) {
				r.log.Warn("Seat event relay lost Redis, delivering locally", zap.Error(err))
			} else {
				r.log.Debug("Seat event relay still waiting for Redis",
					zap.Error(err),
					zap.Duration("retry_in", backoff),
				)
			}
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, r.maxBackoff)
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "psubscribe" && !r.subscribed.Swap(true) {
				backoff = r.minBackoff
				r.log.Info("Seat event relay subscribed", zap.String("pattern", m.Channel))
			}
		case *redis.Message:
			var event Event
			if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
				r.log.Warn("Dropping malformed seat event",
					zap.Error(err),
					zap.String("channel", m.Channel),
				)
				continue
			}
			r.hub.Publish(ctx, event)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
