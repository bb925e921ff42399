package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"remna-bot/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the auto sync schedule",
	Long: `Manage the daily auto sync schedule stored in the database.

Changes take effect in bot-service after its next restart or when made
through the bot commands.`,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the schedule and the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := loadScheduler(cmd)
		if err != nil {
			return err
		}
		st := sched.Status()

		fmt.Printf("Enabled:  %v\n", st.Enabled)
		fmt.Printf("Times:    %s (%s)\n", strings.Join(st.Times, ", "), cfg.Location())
		if st.NextRunAt != nil {
			fmt.Printf("Next run: %s\n", st.NextRunAt.In(cfg.Location()).Format("2006-01-02 15:04"))
		}
		if st.LastRun != nil {
			fmt.Printf("\n%s\n", scheduler.FormatRunReport(st.LastRun))
		}
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set HH:MM...",
	Short: "Replace the list of daily sync times",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := loadScheduler(cmd)
		if err != nil {
			return err
		}
		times, err := sched.SetSchedule(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Schedule saved: %s\n", strings.Join(times, ", "))
		return nil
	},
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: use + " auto sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := loadScheduler(cmd)
			if err != nil {
				return err
			}
			if err := sched.SetEnabled(cmd.Context(), enabled); err != nil {
				return err
			}
			fmt.Printf("✓ Auto sync enabled: %v\n", enabled)
			return nil
		},
	}
}

// loadScheduler читает состояние без запуска cron
func loadScheduler(cmd *cobra.Command) (*scheduler.Scheduler, error) {
	sched := current.NewScheduler(nil)
	if err := sched.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return sched, nil
}

func init() {
	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)
	scheduleCmd.AddCommand(toggleCmd("enable", true))
	scheduleCmd.AddCommand(toggleCmd("disable", false))

	rootCmd.AddCommand(scheduleCmd)
}
