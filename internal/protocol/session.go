// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package protocol implements the server side of the login protocol: a
// per-connection session state machine driven by inbound envelopes.
package protocol

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// AnonymousUserID is the sentinel user id of an unauthenticated session.
const AnonymousUserID int32 = -1

// Session is the authentication state of one connection. It is created when
// the connection is accepted, destroyed when the connection closes, and
// mutated only by the handler goroutine servicing that connection.
type Session struct {
	Authenticated bool
	UserID        int32
}

// Bind marks the session authenticated as the given user.
func (s *Session) Bind(userID int32) {
	s.Authenticated = true
	s.UserID = userID
}

// Clear detaches the user and returns the session to anonymous.
func (s *Session) Clear() {
	s.Authenticated = false
	s.UserID = AnonymousUserID
}

// sessionTable tracks sessions across connections. The lock guards only the
// map; individual sessions are touched by a single goroutine at a time
// because envelope dispatch is sequential per connection.
type sessionTable struct {
	mu sync.RWMutex
	m  map[ulid.ULID]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[ulid.ULID]*Session)}
}

// attach creates a fresh anonymous session for a connection.
func (t *sessionTable) attach(connID ulid.ULID) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Session{UserID: AnonymousUserID}
	t.m[connID] = s
	return s
}

// get returns the session for a connection, creating one if the connection
// was never announced.
func (t *sessionTable) get(connID ulid.ULID) *Session {
	t.mu.RLock()
	s, ok := t.m[connID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.m[connID]; ok {
		return s
	}
	s = &Session{UserID: AnonymousUserID}
	t.m[connID] = s
	return s
}

// detach discards a connection's session.
func (t *sessionTable) detach(connID ulid.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, connID)
}

// snapshot returns a copy of a connection's session, if any.
func (t *sessionTable) snapshot(connID ulid.ULID) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.m[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}
