// Package cli implements the kbdocs operator commands.
package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Project    string
	LogLevel   string
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"YAML config file applied over the environment (default $KBDOCS_CONFIG)",
	)
	cmd.PersistentFlags().StringVarP(
		&globalFlags.Project,
		"project",
		"p",
		"",
		"project id (default $KBDOCS_PROJECT)",
	)
	cmd.PersistentFlags().StringVar(
		&globalFlags.LogLevel,
		"log-level",
		"",
		"log level: debug, info, warn, error (default $LOG_LEVEL)",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}
