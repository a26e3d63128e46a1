package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the goaccess CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goaccess",
		Short: "goAccess - session based account access",
		Long: `goaccess runs a small HTTP service around the goAccess engine
(registration, activation, login and sessions) and ships the tools
to operate it: schema migrations, password hashing and token checks.

Settings come from an optional YAML file, GOACCESS_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "YAML config file path")
	bindSettingsFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
