package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/crowd-evac-service/internal/adapter/sqlite"
	"github.com/couchcryptid/crowd-evac-service/internal/location"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func databaseFlag(cmd *cobra.Command) {
	cmd.Flags().String("database", "", "SQLite database path (default $DATABASE_PATH or crowd-evac.db)")
}

func openStore(cmd *cobra.Command) (*sqlite.Store, error) {
	path, _ := cmd.Flags().GetString("database")
	if path == "" {
		path = sharedcfg.EnvOrDefault("DATABASE_PATH", "crowd-evac.db")
	}
	return sqlite.Open(cmd.Context(), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, roll back or inspect schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			switch args[0] {
			case "up":
				if err := store.MigrateUp(); err != nil {
					return err
				}
			case "down":
				if err := store.MigrateDown(); err != nil {
					return err
				}
			case "version":
			default:
				return fmt.Errorf("unknown migrate action %q", args[0])
			}

			version, dirty, err := store.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	databaseFlag(cmd)
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired anonymized location samples once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			tracker, err := location.NewTracker(store, nil, clockwork.NewRealClock(), logger, observability.NewMetrics())
			if err != nil {
				return err
			}
			n, err := tracker.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d location samples\n", n)
			return nil
		},
	}
	databaseFlag(cmd)
	return cmd
}
