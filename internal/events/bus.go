package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/retry"
	"github.com/Xausdorf/votechain/internal/usecase"
	"github.com/Xausdorf/votechain/internal/utils"
)

const DefaultChannel = "votechain:changes"

// Bus fans ledger changes out to every engine instance over redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewBus connects using REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and REDIS_CHANNEL.
func NewBus(ctx context.Context, logger *zap.Logger) (*Bus, error) {
	addr := utils.Env("REDIS_ADDR", "localhost:6379")
	db := utils.EnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	logger.Info("connected to redis", zap.String("addr", addr), zap.Int("db", db))

	return NewBusWithClient(rdb, utils.Env("REDIS_CHANNEL", DefaultChannel), logger), nil
}

func NewBusWithClient(client *redis.Client, channel string, logger *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (b *Bus) Close() error {
	return b.client.Close()
}

func (b *Bus) Health(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish implements usecase.Notifier.
func (b *Bus) Publish(ctx context.Context, change usecase.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("could not marshal change: %w", err)
	}
	if err = b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("could not publish to %s: %w", b.channel, err)
	}
	return nil
}

// Listen delivers every change published on the channel to apply until ctx is done.
func (b *Bus) Listen(ctx context.Context, apply func(usecase.Change)) error {
	var sub *redis.PubSub
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), b.logger, "redis subscribe", func() error {
		s := b.client.Subscribe(ctx, b.channel)
		if _, err := s.Receive(ctx); err != nil {
			_ = s.Close()
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	b.logger.Info("listening for changes", zap.String("channel", b.channel))
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b.dispatch(msg.Payload, apply)
		}
	}
}

func (b *Bus) dispatch(payload string, apply func(usecase.Change)) {
	change, err := DecodeChange(payload)
	if err != nil {
		b.logger.Warn("dropping malformed change", zap.String("payload", payload), zap.Error(err))
		return
	}
	apply(change)
}

func DecodeChange(payload string) (usecase.Change, error) {
	var change usecase.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return usecase.Change{}, err
	}
	if change.Kind == "" || change.Origin == "" {
		return usecase.Change{}, errors.New("change without kind or origin")
	}
	return change, nil
}
