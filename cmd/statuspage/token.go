package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/identity"
	"github.com/spf13/cobra"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		caller domain.Caller
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Long: `token issues a token for local use and testing. In production tokens
are issued by the identity provider sharing auth.jwt_secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if caller.UserID == "" || caller.OrganizationID == "" {
				return errors.New("--user and --org are required")
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}

			verifier, err := identity.NewVerifier(identity.Config{
				Secret:            cfg.Auth.JWTSecret,
				Issuer:            cfg.Auth.Issuer,
				Audience:          cfg.Auth.Audience,
				OrganizationClaim: cfg.Auth.OrganizationClaim,
			})
			if err != nil {
				return err
			}

			token, err := verifier.Mint(caller, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&caller.UserID, "user", "", "token subject")
	cmd.Flags().StringVar(&caller.OrganizationID, "org", "", "organization the token is scoped to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
