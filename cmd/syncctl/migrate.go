package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate SOURCE TARGET",
	Short: "Move active accounts from one squad to another",
	Long: `Replace SOURCE with TARGET in the squad set of every active account.
The local database is updated first, then the panel. Panel failures are
reported and fixed by the next full sync.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		plan, err := current.Migrator.Prepare(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s → %s: %d active accounts\n", plan.Source, plan.Target, plan.Affected)

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			fmt.Println("Re-run with --yes to migrate them")
			return nil
		}

		res, err := current.Migrator.Migrate(ctx, plan.Source, plan.Target)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Migrated %d of %d accounts\n", res.Updated, res.Total)
		fmt.Printf("   Panel updated: %d, panel failed: %d, not moved: %d\n", res.PanelUpdated, res.PanelFailed, res.LocalFailed)
		return nil
	},
}

var squadsCmd = &cobra.Command{
	Use:   "squads",
	Short: "List the local squad catalogue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		squads, err := current.Repo.ListSquads(ctx)
		if err != nil {
			return err
		}
		if len(squads) == 0 {
			fmt.Println("Squad catalogue is empty, run 'syncctl sync' first")
			return nil
		}

		for _, sq := range squads {
			count, err := current.Migrator.CountActiveAccountsForGroup(ctx, sq.UUID)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %-24s active %d, panel members %d\n", sq.UUID, sq.Name, count, sq.MembersCount)
		}
		return nil
	},
}

var squadsCountCmd = &cobra.Command{
	Use:   "count SQUAD",
	Short: "Count active accounts in a squad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := current.Migrator.CountActiveAccountsForGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("yes", false, "migrate without further confirmation")
	squadsCmd.AddCommand(squadsCountCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(squadsCmd)
}
