// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/doorkeep/doorkeep/internal/config"
	"github.com/doorkeep/doorkeep/internal/xdg"
)

// NewRootCmd creates the root command for the doorkeep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doorkeep",
		Short: "doorkeep - credential authentication over a tagged-message transport",
		Long: `doorkeep is a login server: clients send login, logout, and
create-account requests as tagged envelopes; the server validates them
against a credential store and replies with success or failure subjects
while tracking a per-connection session.`,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default "+config.DefaultPath+")")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAddUserCmd())

	return cmd
}

// loadConfig resolves the --config flag and loads configuration, merging in
// the command's own flags. Without --config, the working directory is checked
// first, then the XDG config directory.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err //nolint:wrapcheck // cobra flag errors are self-describing
	}
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
		if _, statErr := os.Stat(path); statErr != nil {
			path = xdg.ConfigFile(config.DefaultPath)
		}
	}
	return config.Load(path, explicit, cmd.Flags())
}
