package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/events"
	"github.com/Xausdorf/votechain/internal/gateway/bot"
	"github.com/Xausdorf/votechain/internal/gateway/httpapi"
	"github.com/Xausdorf/votechain/internal/repository/memory"
	"github.com/Xausdorf/votechain/internal/repository/tarantool"
	"github.com/Xausdorf/votechain/internal/repository/ttadapter"
	"github.com/Xausdorf/votechain/internal/usecase"
	"github.com/Xausdorf/votechain/internal/utils"
)

const (
	LedgerMemory    = "memory"
	LedgerTarantool = "tarantool"

	defaultTickSpec = "*/30 * * * * *"
	shutdownTimeout = 10 * time.Second
)

var ErrUnknownLedger = errors.New("unknown ledger backend")

type Options struct {
	// Ledger - "memory" or "tarantool".
	Ledger string
	// Events enables cross-instance refetch over redis.
	Events bool
}

// App wires a ledger, the orchestrator and its schedulers. Gateways are started by the commands.
type App struct {
	Logger       *zap.Logger
	Ledger       usecase.Ledger
	Orchestrator *usecase.Orchestrator
	Bus          *events.Bus

	// Cron republishes every live view on TickSpec, so status and remaining time follow the clock.
	Cron     *cron.Cron
	TickSpec string

	closers []func()
}

func Initialize(ctx context.Context, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Logger:   logger,
		TickSpec: utils.Env("TICK_SPEC", defaultTickSpec),
	}

	ledger, err := a.openLedger(ctx, opts.Ledger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = ledger

	orchOpts := usecase.Options{
		Logger:           logger,
		FieldWorkers:     utils.EnvInt("FIELD_WORKERS", 0),
		CandidateWorkers: utils.EnvInt("CANDIDATE_WORKERS", 0),
		MaxCandidates:    uint64(utils.EnvInt("MAX_CANDIDATES", usecase.DefaultMaxCandidates)),
	}
	if loc, err := time.LoadLocation(utils.Env("TIMEZONE", "Local")); err == nil {
		orchOpts.Location = loc
	} else {
		logger.Warn("invalid TIMEZONE, using local time", zap.Error(err))
	}
	if opts.Events {
		bus, err := events.NewBus(ctx, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bus = bus
		a.closers = append(a.closers, func() { _ = bus.Close() })
		orchOpts.Notifier = bus
	}

	a.Orchestrator = usecase.NewOrchestrator(ledger, orchOpts)
	if err = a.SetupScheduler(NewCronLogger(logger)); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openLedger(ctx context.Context, backend string) (usecase.Ledger, error) {
	switch backend {
	case "", LedgerMemory:
		a.Logger.Info("using in-memory ledger")
		return memory.NewLedger(time.Now), nil
	case LedgerTarantool:
		cfg, err := tarantool.LoadConfig()
		if err != nil {
			return nil, err
		}
		conn, err := tarantool.Connect(ctx, cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		return ttadapter.NewLedger(conn, time.Now, a.Logger), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLedger, backend)
}

func (a *App) SetupScheduler(logger cron.Logger) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	_, err := a.Cron.AddFunc(a.TickSpec, a.Orchestrator.Tick)
	return err
}

func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("cron started", zap.String("tickSpec", a.TickSpec))
}

func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// StartEvents feeds changes of other instances into the orchestrator until ctx is done.
func (a *App) StartEvents(ctx context.Context) {
	if a.Bus == nil {
		return
	}
	go func() {
		if err := a.Bus.Listen(ctx, a.Orchestrator.Apply); err != nil {
			a.Logger.Error("change listener stopped", zap.Error(err))
		}
	}()
}

// Serve runs the HTTP gateway until ctx is done.
func (a *App) Serve(ctx context.Context, cfg httpapi.Config) error {
	srv := httpapi.NewServer(cfg, a.Orchestrator, a.Logger)
	a.StartCron()
	defer a.StopCron()
	a.StartEvents(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

// RunBot runs the chat gateway until ctx is done.
func (a *App) RunBot(ctx context.Context, cfg bot.Config) error {
	b, err := bot.NewVotingBot(cfg, a.Orchestrator, a.Logger)
	if err != nil {
		return err
	}
	defer b.Close()
	a.StartEvents(ctx)
	return b.Listen(ctx)
}

// Close stops the orchestrator and releases backend connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
