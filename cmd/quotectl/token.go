package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quotevault/quotevault-server/internal/auth"
	"github.com/quotevault/quotevault-server/internal/store"
)

func tokenCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			u, err := e.store.GetUser(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if !u.IsActive() {
				return fmt.Errorf("user %s is awaiting approval", u.ID)
			}

			key := e.cfg.Auth.AccessTokenKey
			if len(key) == 0 {
				if key, err = auth.LoadOrGenerateKey(e.cfg.Data.BasePath); err != nil {
					return err
				}
			}
			if duration <= 0 {
				duration = e.cfg.Auth.AccessTokenDuration
			}

			tokens, err := auth.NewTokenService(key, duration)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateAccessToken(u)
			if err != nil {
				return err
			}

			e.log.WithCaller(u.ID).Info("token minted", "expires_in", tokens.AccessTokenDuration())
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "token lifetime (default: $ACCESS_TOKEN_DURATION)")
	return cmd
}
