package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Varn22/pixel-time-tracker/db/postgres/migrations"
	"github.com/Varn22/pixel-time-tracker/internal/ui"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply the embedded schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(migrations.Up), string(migrations.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := migrations.Up
			if len(args) == 1 {
				dir = migrations.Direction(args[0])
			}
			if dir != migrations.Up && dir != migrations.Down {
				return fmt.Errorf("unknown direction %q", args[0])
			}

			b, err := a.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.DB == nil {
				return errNoDatabase
			}

			applied, err := migrations.Apply(cmd.Context(), b.DB, dir)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render("applied")+" "+name)
			}
			return nil
		},
	}
}

// resetTables lists every tracker table, children first.
const resetTables = "event_log, outbox_dlq, outbox, achievement_unlocks, activities, users"

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users, activities, unlocks and queued events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete data without --yes")
			}
			b, err := a.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.DB == nil {
				return errNoDatabase
			}

			if _, err := b.DB.Exec(cmd.Context(), "TRUNCATE "+resetTables+" RESTART IDENTITY"); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Bad.Render("all tracker data deleted"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
