package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Xausdorf/votechain/internal/app"
	"github.com/Xausdorf/votechain/internal/logging"
	"github.com/Xausdorf/votechain/internal/utils"
)

var (
	// envFile is loaded before the environment is read. Missing files are ignored.
	envFile string

	// ledger selects the ledger backend.
	ledger string

	// events enables cross-instance refetch over redis.
	events bool
)

var rootCmd = &cobra.Command{
	Use:   "votechain",
	Short: "Voting state engine",
	Long: `votechain derives the live state of on-ledger votings (status, tally, eligibility)
and serves it over HTTP, websockets and a Mattermost bot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not load %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with configuration")
	rootCmd.PersistentFlags().StringVar(&ledger, "ledger", app.LedgerMemory, "ledger backend: memory or tarantool")
	rootCmd.PersistentFlags().BoolVar(&events, "events", false, "publish and receive changes over redis (REDIS_ENABLED)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap builds the logger and the app shared by the long-running commands.
func bootstrap(parent context.Context) (context.Context, context.CancelFunc, *app.App, error) {
	logger, err := logging.New()
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	a, err := app.Initialize(ctx, logger, app.Options{
		Ledger: ledger,
		Events: events || utils.EnvBool("REDIS_ENABLED", false),
	})
	if err != nil {
		cancel()
		logger.Error("unable to initialize", zap.Error(err))
		return nil, nil, nil, err
	}
	return ctx, cancel, a, nil
}
