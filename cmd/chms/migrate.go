// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chms/chms/internal/config"
	"github.com/chms/chms/internal/store"
)

// migrator is the part of store.Migrator the migrate command drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (store.Status, error)
	Close() error
}

// openMigrator is replaced in tests.
var openMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command and its up, down and status
// subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, or inspect the embedded PostgreSQL schema migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), m)
			})
		},
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, func(m migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m migrator) error {
				return printStatus(cmd.OutOrStdout(), m)
			})
		},
	})

	return cmd
}

// databaseURL resolves the database URL the same way serve does.
func databaseURL(flags *pflag.FlagSet) (string, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database.url is required (or set DATABASE_URL)")
	}
	return cfg.Database.URL, nil
}

func withMigrator(cmd *cobra.Command, fn func(migrator) error) error {
	url, err := databaseURL(cmd.Flags())
	if err != nil {
		return err
	}
	m, err := openMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()
	return fn(m)
}

func printStatus(w io.Writer, m migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	dirty := ""
	if status.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(w, "Current version: %d%s\n", status.Version, dirty)
	for _, mig := range status.Applied {
		fmt.Fprintf(w, "  [x] %06d %s\n", mig.Version, mig.Name)
	}
	for _, mig := range status.Pending {
		fmt.Fprintf(w, "  [ ] %06d %s\n", mig.Version, mig.Name)
	}
	return nil
}
