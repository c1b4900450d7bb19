package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Varn22/pixel-time-tracker/internal/auth"
	authlib "github.com/Varn22/pixel-time-tracker/pkg/platform/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(scopes) == 0 {
				scopes = auth.AllScopes
			}
			token, err := authlib.Issue(authlib.Config{Secret: a.cfg.JWTSecret.Value(), Issuer: a.cfg.JWTIssuer}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "telegram-bot", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes to grant (default all)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
