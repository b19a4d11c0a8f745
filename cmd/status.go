package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/monitoring"
	"github.com/sells-group/tier-cli/internal/resilience"
)

var (
	statusLookback int
	statusChanges  int64
	statusDLQ      int64
	statusFormat   string
)

type statusReport struct {
	Snapshot      *monitoring.MetricsSnapshot `json:"snapshot"`
	RecentChanges []events.TierChanged        `json:"recent_changes,omitempty"`
	DeadLetters   []resilience.DLQEntry       `json:"dead_letters,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show calculation volume, tier distribution, and queue health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var (
			report statusReport
			dlq    monitoring.DLQCounter
		)

		rdb, err := initRedis(ctx)
		if err != nil {
			zap.L().Warn("redis unavailable, skipping queue status", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			dead := events.NewDeadLetters(rdb, cfg.Queue.DLQStream)
			dlq = dead

			if report.RecentChanges, err = events.RecentChanges(ctx, rdb, cfg.Queue.NotifyStream, statusChanges); err != nil {
				return err
			}
			if statusDLQ > 0 {
				if report.DeadLetters, err = dead.List(ctx, statusDLQ); err != nil {
					return err
				}
			}
		}

		lookback := statusLookback
		if lookback <= 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}
		report.Snapshot, err = monitoring.NewCollector(st, dlq, nil).Collect(ctx, lookback)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), statusFormat, report)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookback, "lookback", 0, "lookback window in hours (default from config)")
	statusCmd.Flags().Int64Var(&statusChanges, "changes", 10, "recent tier changes to list")
	statusCmd.Flags().Int64Var(&statusDLQ, "dead-letters", 0, "dead-lettered triggers to list")
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(statusCmd)
}
