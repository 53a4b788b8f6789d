package main

import (
	"fmt"
	"time"

	"github.com/bissquit/clerk-queue/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		user int64
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a clerk, for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if user <= 0 {
				return fmt.Errorf("--user must be a positive clerk id")
			}

			authenticator := auth.NewAuthenticator(auth.Config{
				SecretKey: cfg.Auth.SecretKey,
				Issuer:    cfg.Auth.Issuer,
				Leeway:    cfg.Auth.Leeway,
			})
			token, err := authenticator.IssueToken(user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "Clerk user id")
	cmd.Flags().StringVar(&role, "role", "clerk", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")

	return cmd
}
