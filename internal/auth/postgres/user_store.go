// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package postgres implements the auth user store on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the store needs. Narrowed so
// pgxmock can stand in during tests.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// FindIDByCredentials returns the id of the single row matching the
// credentials. Zero or multiple matches return auth.ErrNotFound.
func (s *UserStore) FindIDByCredentials(ctx context.Context, username, hash string) (int32, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users
		WHERE username = $1 AND password_hash = $2
	`, username, hash)
	if err != nil {
		return 0, oops.Code("STORE_FIND_FAILED").
			With("operation", "find user by credentials").
			With("username", username).
			Wrap(err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return 0, oops.Code("STORE_SCAN_FAILED").
				With("operation", "scan user id").
				Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, oops.Code("STORE_FIND_FAILED").
			With("operation", "iterate user rows").
			With("username", username).
			Wrap(err)
	}

	// Only an exact single match authenticates; ambiguous data is no match.
	if len(ids) != 1 {
		return 0, oops.Code("STORE_USER_NOT_FOUND").
			With("username", username).
			With("match_count", len(ids)).
			Wrap(auth.ErrNotFound)
	}
	return ids[0], nil
}

// ExistsByCredentials reports whether a row with this exact (username, hash)
// pair exists.
func (s *UserStore) ExistsByCredentials(ctx context.Context, username, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM users
			WHERE username = $1 AND password_hash = $2
		)
	`, username, hash).Scan(&exists)
	if err != nil {
		return false, oops.Code("STORE_EXISTS_FAILED").
			With("operation", "check user exists").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// Insert stores a new user and returns its assigned id.
func (s *UserStore) Insert(ctx context.Context, username, hash string) (int32, error) {
	var id int32
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, username, hash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, oops.Code("STORE_USER_DUPLICATE").
				With("username", username).
				Wrap(auth.ErrDuplicate)
		}
		return 0, oops.Code("STORE_INSERT_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}
	return id, nil
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)
