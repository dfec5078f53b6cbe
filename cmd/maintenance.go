package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mailrelay/database"
	"mailrelay/emaillog"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := database.ApplyMigrations(rt.cfg.DatabaseURL, rt.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

// NewPruneCommand removes log entries older than the retention window. It is
// meant to be run from cron.
func NewPruneCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old email log entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = rt.cfg.LogRetentionDays
			}
			store, err := rt.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := emaillog.New(store, rt.logger, emaillog.WithLocation(rt.cfg.Location())).ClearOld(cmd.Context(), days)
			if err != nil {
				return err
			}
			rt.logger.Info("pruned email log", zap.Int64("removed", removed), zap.Int("days_kept", days))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log entries older than %d days.\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days of logs to keep (defaults to LOG_RETENTION_DAYS)")
	return cmd
}

func NewStatsCommand() *cobra.Command {
	var period, output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print send statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			switch period {
			case emaillog.PeriodToday, emaillog.PeriodWeek, emaillog.PeriodMonth, emaillog.PeriodAll:
			default:
				return fmt.Errorf("invalid period %q: use today, week, month or all", period)
			}
			store, err := rt.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := emaillog.New(store, rt.logger, emaillog.WithLocation(rt.cfg.Location())).Statistics(cmd.Context(), period)
			if err != nil {
				return err
			}
			return writeSummary(cmd, output, period, summary)
		},
	}
	cmd.Flags().StringVar(&period, "period", emaillog.PeriodToday, "Period: today, week, month or all")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, yaml")
	return cmd
}

func writeSummary(cmd *cobra.Command, output, period string, s emaillog.Summary) error {
	w := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		return yaml.NewEncoder(w).Encode(map[string]interface{}{
			"period":       period,
			"sent":         s.Sent,
			"failed":       s.Failed,
			"total":        s.Total,
			"success_rate": s.SuccessRate,
			"failure_rate": s.FailureRate,
		})
	case "table", "":
		fmt.Fprintf(w, "PERIOD\tSENT\tFAILED\tTOTAL\tSUCCESS\tFAILURE\n")
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f%%\t%.2f%%\n", period, s.Sent, s.Failed, s.Total, s.SuccessRate, s.FailureRate)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}
