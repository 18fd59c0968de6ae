// Package cli implements launchctl, a terminal tab onto the launch shelf.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/app"
	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootCmd returns the launchctl command tree.
func RootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "launchctl",
		Short: "Browse launches and edit rocket costs",
		Long: `launchctl opens a tab onto the launch shelf store configured through the
environment (STORE_DRIVER, CHANNEL_DRIVER, ...). Tabs sharing a store and
channel see each other's rocket cost changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(ListCmd())
	root.AddCommand(TotalCmd())
	root.AddCommand(SetCostCmd())
	root.AddCommand(SetPayloadTypeCmd())
	root.AddCommand(WatchCmd())
	return root
}

// Execute runs launchctl and exits non-zero on failure.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withTab opens a tab from the environment, runs fn and closes the tab.
func withTab(cmd *cobra.Command, confirm ledger.Confirmer, fn func(ctx context.Context, l *ledger.Orchestrator) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Open(ctx, config.Load(), confirm)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer a.Close()

	return fn(ctx, a.Ledger)
}
