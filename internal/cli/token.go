package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vadim/inkdesk/internal/httpx/middleware"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if secret == "" {
				return errors.New("a signing secret is required: pass --secret or set JWT_SECRET")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			token, err := middleware.IssueToken(secret, args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (env JWT_SECRET)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
