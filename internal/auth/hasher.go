// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package auth provides credential types, hashing, and the user store
// abstraction for the login protocol.
package auth

import (
	"crypto/md5"  //nolint:gosec // legacy wire compatibility, selected by config
	"crypto/sha1" //nolint:gosec // legacy wire compatibility, selected by config
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
)

// Algorithm selects the digest used to derive the stored verification hash.
// The choice is process-wide: changing it once records exist makes every
// stored hash incomparable, so it must agree across all deployments that
// share a user table.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmMD5  Algorithm = "md5"
	AlgorithmSHA1 Algorithm = "sha1"
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_SECRET").Errorf("secret cannot be empty")

// ParseAlgorithm converts a configuration string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmMD5:
		return AlgorithmMD5, nil
	case AlgorithmSHA1:
		return AlgorithmSHA1, nil
	default:
		return "", oops.Code("AUTH_UNSUPPORTED_ALGORITHM").
			With("algorithm", s).
			Errorf("unsupported hash algorithm %q", s)
	}
}

// HashSecret derives the verification hash for a secret: the raw digest
// encoded as uppercase hex. Deterministic for identical inputs; the stored
// value is compared by equality in the user store, never the plaintext.
func HashSecret(secret string, alg Algorithm) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	var digest []byte
	switch alg {
	case AlgorithmMD5:
		d := md5.Sum([]byte(secret)) //nolint:gosec // see Algorithm doc
		digest = d[:]
	case AlgorithmSHA1:
		d := sha1.Sum([]byte(secret)) //nolint:gosec // see Algorithm doc
		digest = d[:]
	default:
		return "", oops.Code("AUTH_UNSUPPORTED_ALGORITHM").
			With("algorithm", string(alg)).
			Errorf("unsupported hash algorithm %q", alg)
	}

	return strings.ToUpper(hex.EncodeToString(digest)), nil
}
