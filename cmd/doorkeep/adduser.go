// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package main

import (
	"errors"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/auth/postgres"
	"github.com/doorkeep/doorkeep/internal/store"
)

// newAddUserCmd creates the adduser subcommand: direct account creation for
// operators, bypassing the wire protocol but not the hashing or uniqueness
// rules.
func newAddUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adduser <username> <password>",
		Short: "Add a user to the credential store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
			}

			username, password := args[0], args[1]

			hash, err := auth.HashSecret(password, cfg.Algorithm())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := store.Connect(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			users := postgres.NewUserStore(pool)

			exists, err := users.ExistsByCredentials(ctx, username, hash)
			if err != nil {
				return err
			}
			if exists {
				return oops.Code("AUTH_USER_EXISTS").
					With("username", username).
					Errorf("user %q with these credentials already exists", username)
			}

			id, err := users.Insert(ctx, username, hash)
			if err != nil {
				if errors.Is(err, auth.ErrDuplicate) {
					return oops.Code("AUTH_USER_EXISTS").
						With("username", username).
						Errorf("user %q with these credentials already exists", username)
				}
				return err
			}

			cmd.Printf("User %q added with id %d\n", username, id)
			return nil
		},
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}
