// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package auth

import "errors"

// ErrNotFound is returned when credentials match no single user record.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing record.
var ErrDuplicate = errors.New("duplicate record")
