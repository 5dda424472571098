package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Xausdorf/votechain/internal/gateway/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := httpapi.LoadConfig()
		if err != nil {
			return err
		}
		ctx, cancel, a, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer cancel()
		defer a.Close()

		return a.Serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
