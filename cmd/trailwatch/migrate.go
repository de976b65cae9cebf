package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailwatch.org/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|seed|status]",
	Short:     "Apply or inspect the bundled schema migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "seed", "status"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, err := migrate.ForDialect(st.DB(), st.Dialect())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch args[0] {
	case "up":
		applied, err := mgr.Up(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			logger.Info("migration applied", zap.String("name", name))
		}
		fmt.Fprintf(out, "%d migration(s) applied\n", len(applied))
	case "down":
		name, err := mgr.Down(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rolled back %s\n", name)
	case "seed":
		applied, err := mgr.Seed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d seed(s) applied\n", len(applied))
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Fprintln(out, item)
		}
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
	return nil
}
