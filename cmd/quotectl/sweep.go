package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotevault/quotevault-server/internal/service"
)

func sweepRun(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
	expirations := service.NewExpirationService(e.store, e.counters, e.events, nil, e.cfg.Signatures, e.log.Logger)
	result, err := expirations.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "expired %d signature(s) across %d quote(s)\n", result.Expired, result.Quotes)
	if len(result.Failed) > 0 {
		for _, quoteID := range result.Failed {
			e.log.WithQuote(quoteID).Warn("quote left pending after sweep")
		}
		fmt.Fprintf(out, "failed: %s\n", strings.Join(result.Failed, ", "))
		return fmt.Errorf("%d quote(s) could not be resolved", len(result.Failed))
	}
	return nil
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Auto-refuse pending signatures whose window has elapsed",
		Args:  cobra.NoArgs,
		RunE:  withEnv(sweepRun),
	}
}
