package tarantool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool/v2"
	_ "github.com/tarantool/go-tarantool/v2/datetime"
	_ "github.com/tarantool/go-tarantool/v2/decimal"
	_ "github.com/tarantool/go-tarantool/v2/uuid"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/retry"
	"github.com/Xausdorf/votechain/internal/utils"
)

const (
	defaultAddress   = "127.0.0.1:3301"
	reconnectSeconds = 3
	maxReconnects    = 5
)

var (
	ErrUserNotSet     = errors.New("tarantool user is not set")
	ErrPasswordNotSet = errors.New("tarantool password is not set")
)

type Config struct {
	Address  string
	User     string
	Password string
	Timeout  time.Duration
}

// LoadConfig reads TT_ADDRESS, TT_USER, TT_PASSWORD and TT_TIMEOUT.
func LoadConfig() (Config, error) {
	cfg := Config{
		Address:  utils.Env("TT_ADDRESS", defaultAddress),
		User:     utils.Env("TT_USER", ""),
		Password: utils.Env("TT_PASSWORD", ""),
		Timeout:  utils.EnvDuration("TT_TIMEOUT", time.Second),
	}
	if cfg.User == "" {
		return Config{}, ErrUserNotSet
	}
	if cfg.Password == "" {
		return Config{}, ErrPasswordNotSet
	}
	return cfg, nil
}

// Connect dials tarantool, retrying the first connection with backoff.
// Once connected the driver reconnects on its own.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*tarantool.Connection, error) {
	dialer := tarantool.NetDialer{
		Address:  cfg.Address,
		User:     cfg.User,
		Password: cfg.Password,
	}
	opts := tarantool.Opts{
		Timeout:       cfg.Timeout,
		Reconnect:     reconnectSeconds * time.Second,
		MaxReconnects: maxReconnects,
	}

	var conn *tarantool.Connection
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "tarantool connect", func() error {
		var err error
		conn, err = tarantool.Connect(ctx, dialer, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connection to tarantool %s refused: %w", cfg.Address, err)
	}
	logger.Info("connected to tarantool", zap.String("address", cfg.Address))
	return conn, nil
}
