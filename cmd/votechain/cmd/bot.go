package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Xausdorf/votechain/internal/gateway/bot"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Mattermost voting bot",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := bot.LoadConfig()
		if err != nil {
			return err
		}
		ctx, cancel, a, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer cancel()
		defer a.Close()

		return a.RunBot(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
