// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CHMS CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chms",
		Short: "CHMS - child health management system",
		Long: `CHMS serves the child health management system: login, role-based
access for mothers, doctors and administrators, and the audit trail.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/chms/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}
