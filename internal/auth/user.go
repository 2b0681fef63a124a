// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package auth

import "context"

// User is a persisted account record. Rows are created only through the
// registration path and are never updated or deleted by this system.
type User struct {
	ID           int32
	Username     string
	PasswordHash string
}

// UserStore manages user persistence. Implementations must be safe for
// concurrent use; the storage engine's own concurrency control is the
// authoritative guard, in particular the uniqueness constraint on
// (username, password_hash) that backs Insert.
type UserStore interface {
	// FindIDByCredentials returns the id of the single row matching the
	// username and verification hash. Zero matches and more than one match
	// both return ErrNotFound: only an exact single match authenticates.
	FindIDByCredentials(ctx context.Context, username, hash string) (int32, error)

	// ExistsByCredentials reports whether a row with this exact
	// (username, hash) pair exists. Matching is on the pair, not the
	// username alone: the same username under a different hash is a
	// distinct record.
	ExistsByCredentials(ctx context.Context, username, hash string) (bool, error)

	// Insert stores a new user and returns its assigned id. A uniqueness
	// violation on the (username, hash) pair returns ErrDuplicate.
	Insert(ctx context.Context, username, hash string) (int32, error)
}
