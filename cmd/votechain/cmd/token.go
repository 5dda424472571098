package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Xausdorf/votechain/internal/domain"
	"github.com/Xausdorf/votechain/internal/gateway/httpapi"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [identity]",
	Short: "Issue an API token for an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := httpapi.LoadConfig()
		if err != nil {
			return err
		}
		tok, err := httpapi.NewAuthenticator(cfg.JWTSecret).Issue(domain.Identity(args[0]), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
