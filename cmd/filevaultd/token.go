package main

import (
	"errors"
	"fmt"
	"time"

	"filevault/pkg/auth"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an owner",
		Long: `Mint an HS256 bearer token signed with auth.secret. The token is
printed to stdout.

Examples:
  filevaultd token --owner alice
  filevaultd token --owner alice --ttl 1h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := auth.GenerateToken(owner, []byte(cfg.Auth.Secret), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner identity to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
