package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alreadydone/alreadydone-server/internal/push"
	"github.com/alreadydone/alreadydone-server/internal/service"
)

var (
	sweepAt string
	dryRun  bool
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Run the push reminder sweep by hand",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Send the reminders due at one minute",
	Long: `Run a single reminder sweep. Users whose local morning or bedtime
reminder falls on the given minute are notified.

Examples:
  alreadyctl reminders run-once
  alreadyctl reminders run-once --at 2026-01-02T07:30:00Z --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		if sweepAt != "" {
			t, err := time.Parse(time.RFC3339, sweepAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			now = t
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer st.Close()

		var sender push.Sender = push.NewStub(log.Logger)
		if !dryRun && cfg.Push.CredentialsPath != "" {
			fcm, err := push.NewFCM(ctx, cfg.Push.CredentialsPath, log.Logger)
			if err != nil {
				return err
			}
			sender = fcm
		}

		result, err := service.NewReminderService(st, sender, log.Logger).Sweep(ctx, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d sent=%d failed=%d\n", result.Candidates, result.Sent, result.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remindersCmd)
	remindersCmd.AddCommand(remindersRunCmd)

	remindersRunCmd.Flags().StringVar(&sweepAt, "at", "", "Sweep time in RFC 3339 (default: now)")
	remindersRunCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log notifications instead of sending them")
}
