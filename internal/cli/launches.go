package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/spf13/cobra"
)

// ListCmd prints every launch, newest first.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List launches with cost, satellites and time since the previous launch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTab(cmd, nil, func(ctx context.Context, l *ledger.Orchestrator) error {
				err := l.Load(ctx)
				printSummary(cmd.OutOrStdout(), l.Summary())
				return err
			})
		},
	}
}

// TotalCmd prints the total cost of all launches.
func TotalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the total cost of all launches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTab(cmd, nil, func(ctx context.Context, l *ledger.Orchestrator) error {
				err := l.Load(ctx)
				printTotal(cmd.OutOrStdout(), l.Summary())
				return err
			})
		},
	}
}

// SetCostCmd changes a rocket's cost per launch.
func SetCostCmd() *cobra.Command {
	var flags decisionFlags

	cmd := &cobra.Command{
		Use:   "set-cost <rocket-id> <cost>",
		Short: "Change a rocket's cost per launch",
		Long: `Change a rocket's cost per launch. The new cost is stored and shared with
other tabs before the API is asked to accept it. If the API rejects the edit
you are asked whether to roll it back, unless --rollback or --keep is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rocketID := args[0]
			cost, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid cost %q: %w", args[1], err)
			}

			confirm := flags.confirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			return withTab(cmd, confirm, func(ctx context.Context, l *ledger.Orchestrator) error {
				if err := l.Load(ctx); err != nil {
					return err
				}
				out, err := l.ChangeLaunchCost(ctx, rocketID, models.RocketCostField{CostPerLaunch: cost})
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				printTotal(cmd.OutOrStdout(), l.Summary())
				return nil
			})
		},
	}
	addDecisionFlags(cmd, &flags)
	return cmd
}

// SetPayloadTypeCmd changes the type of one payload of one launch.
func SetPayloadTypeCmd() *cobra.Command {
	var flags decisionFlags

	cmd := &cobra.Command{
		Use:   "set-payload-type <launch-id> <payload-id> <type>",
		Short: "Change the type of a launch payload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			launchID, payloadID, payloadType := args[0], args[1], args[2]

			confirm := flags.confirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			return withTab(cmd, confirm, func(ctx context.Context, l *ledger.Orchestrator) error {
				if err := l.Load(ctx); err != nil {
					return err
				}
				out, err := l.ChangePayloadType(ctx, launchID, payloadID, models.PayloadTypeField{PayloadType: payloadType})
				if err != nil {
					return err
				}
				printOutcome(cmd.OutOrStdout(), out)
				if v, ok := l.Launch(launchID); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s satellites: %d\n", v.ID, v.SatelliteCount)
				}
				return nil
			})
		},
	}
	addDecisionFlags(cmd, &flags)
	return cmd
}

func addDecisionFlags(cmd *cobra.Command, flags *decisionFlags) {
	cmd.Flags().BoolVar(&flags.rollback, "rollback", false, "roll back without asking if the API rejects the edit")
	cmd.Flags().BoolVar(&flags.keep, "keep", false, "keep the change without asking if the API rejects the edit")
	cmd.MarkFlagsMutuallyExclusive("rollback", "keep")
}

// WatchCmd prints rocket cost changes until interrupted.
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print rocket cost changes made by any tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withTab(cmd, nil, func(ctx context.Context, l *ledger.Orchestrator) error {
				changes := make(chan models.RocketCostMap, 16)
				cancel := l.SubscribeCosts(func(m models.RocketCostMap) {
					select {
					case changes <- m:
					default:
					}
				})
				defer cancel()

				if err := l.Load(ctx); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				printTotal(w, l.Summary())

				for {
					select {
					case <-ctx.Done():
						return nil
					case m := <-changes:
						fmt.Fprintf(w, "%s %d rockets\n", color.New(color.FgCyan).Sprint("costs changed:"), len(m))
						printTotal(w, l.Summary())
					}
				}
			})
		},
	}
}
