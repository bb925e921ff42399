package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull accounts and squads from the panel into the local database",
	Long: `Reconcile local accounts with the RemnaWave panel.

Modes:
  full         create, update and deactivate accounts, sync the squad catalogue
  create_only  only create (or link) accounts that exist in the panel
  update_only  only refresh accounts that exist on both sides`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		mode, ok := reconcile.ParseMode(modeFlag)
		if !ok {
			return fmt.Errorf("unknown mode %q", modeFlag)
		}

		fmt.Printf("🔄 Syncing from %s (mode %s)...\n", cfg.RemnawaveURL, mode)
		res := current.NewScheduler(nil).RunMode(cmd.Context(), scheduler.ReasonManual, mode)
		if !res.Started {
			return reconcile.ErrRunInProgress
		}
		if res.Err != nil {
			return res.Err
		}

		printStats(res.Stats)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Create missing panel users for active local accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		stats, err := current.Engine.PushLocalToRemote(ctx)
		recordRun(ctx, scheduler.RunKindPush, started, stats, err)
		if err != nil {
			return err
		}

		printStats(stats)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge local data of accounts that no longer exist in the panel",
	Long: `Show linked accounts whose panel user is gone. With --yes, delete their
transactions, referral earnings, promo code uses and squad links, reset
the balance and unlink them from the panel. This cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orphans, err := current.Engine.Orphans(ctx)
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			fmt.Println("✓ Every linked account exists in the panel, nothing to clean up")
			return nil
		}

		ids := make([]uint, 0, len(orphans))
		for _, acc := range orphans {
			ids = append(ids, acc.ID)
			fmt.Printf("   #%d %-24s balance %s\n", acc.ID, acc.Username, money(acc.Balance))
		}
		total, err := current.Repo.BalanceTotal(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d orphaned accounts, total balance %s\n", len(orphans), money(total))

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			fmt.Println("Re-run with --yes to purge them")
			return nil
		}

		started := time.Now()
		stats, err := current.Engine.ForceCleanupOrphaned(ctx)
		recordRun(ctx, scheduler.RunKindCleanup, started, stats, err)
		if err != nil {
			return err
		}

		printStats(stats)
		return nil
	},
}

func recordRun(ctx context.Context, kind string, started time.Time, stats *reconcile.RunStatistics, err error) {
	if errors.Is(err, reconcile.ErrRunInProgress) {
		return
	}
	record := scheduler.NewRunRecord(kind, string(scheduler.ReasonManual), started, stats, err)
	if recErr := current.Repo.RecordRun(context.WithoutCancel(ctx), record); recErr != nil {
		fmt.Printf("Warning: failed to record run: %v\n", recErr)
	}
}

func printStats(stats *reconcile.RunStatistics) {
	fmt.Printf("✓ %s in %v\n", stats.Summary(), stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond))
	fmt.Printf("   Remote: %d, local: %d\n", stats.RemoteTotal, stats.LocalTotal)
	if stats.GroupsCreated+stats.GroupsUpdated+stats.GroupsRemoved+stats.GroupErrors > 0 {
		fmt.Printf("   Squads: +%d ~%d -%d (errors %d)\n",
			stats.GroupsCreated, stats.GroupsUpdated, stats.GroupsRemoved, stats.GroupErrors)
	}
	for _, e := range stats.ErrorSamples {
		fmt.Printf("   ! %s\n", e)
	}
}

// money - баланс хранится в копейках
func money(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func init() {
	syncCmd.Flags().String("mode", string(reconcile.ModeFull), "sync mode: full, create_only, update_only")
	cleanupCmd.Flags().Bool("yes", false, "purge without further confirmation")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(cleanupCmd)
}
