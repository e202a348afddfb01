package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/google/uuid"

	"github.com/sqlmentor/sqlmentor-backend/internal/logger"
)

// PlanChange is broadcast when a billing event changes a user's
// subscription, so every instance drops its cached plan for that user.
type PlanChange struct {
	UserID uuid.UUID `json:"user_id"`
	Plan   string    `json:"plan"`
	Status string    `json:"status"`
}

type PlanBus interface {
	Publish(ctx context.Context, change PlanChange) error
	StartForwarder(ctx context.Context, onChange func(change PlanChange)) error
	Close() error
}

type planBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewPlanBus(log *logger.Logger) (PlanBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_PLAN_CHANNEL"))
	if ch == "" {
		ch = "plan_changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &planBus{
		log:     log.With("service", "RedisPlanBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *planBus) Publish(ctx context.Context, change PlanChange) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis plan bus not initialized")
	}
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *planBus) StartForwarder(ctx context.Context, onChange func(change PlanChange)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis plan bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

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
					_ = sub.Close()
					return
				}
				var change PlanChange
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					b.log.Warn("bad redis plan payload", "error", err)
					continue
				}
				onChange(change)
			}
		}
	}()

	return nil
}

func (b *planBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
