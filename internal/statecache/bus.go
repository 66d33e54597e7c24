package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

// Invalidation is broadcast to peer instances after a successful mutation so
// their process-local caches drop the stale entry.
type Invalidation struct {
	Kind   string    `json:"kind"`
	ID     uuid.UUID `json:"id"`
	Origin string    `json:"origin,omitempty"`
}

type Bus interface {
	Publish(ctx context.Context, inv Invalidation) error
	StartForwarder(ctx context.Context, onInvalidation func(Invalidation)) error
	Close() error
}

type redisBus struct {
	log      *logger.Logger
	rdb      *redis.Client
	channel  string
	instance string
}

// NewRedisBus connects to redis and returns an invalidation bus. Own
// publications are filtered out in the forwarder so a local mutation does
// not evict the entry it just refreshed.
func NewRedisBus(log *logger.Logger, addr, channel string) (Bus, error) {
	if channel == "" {
		channel = "statecache"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:      log.With("service", "RedisInvalidationBus"),
		rdb:      rdb,
		channel:  channel,
		instance: uuid.NewString(),
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, inv Invalidation) error {
	inv.Origin = b.instance
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onInvalidation func(Invalidation)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var inv Invalidation
				if err := json.Unmarshal([]byte(m.Payload), &inv); err != nil {
					b.log.Warn("bad invalidation payload", "error", err)
					continue
				}
				if inv.Origin == b.instance {
					continue
				}
				onInvalidation(inv)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
