// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package client provides the client-side login API: it encodes request
// envelopes, tracks the cached session view, and raises local notifications
// on replies.
package client

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/protocol"
	"github.com/doorkeep/doorkeep/internal/transport"
	"github.com/doorkeep/doorkeep/internal/wire"
	"github.com/doorkeep/doorkeep/pkg/errutil"
)

// Events are the local notifications raised when replies arrive. All fields
// are optional. Callbacks run on the connection's receive goroutine and must
// not block.
type Events struct {
	LoginSucceeded func(userID int32)
	LoginFailed    func()
	LoggedOut      func()
	UserAdded      func(userID int32)
	AddUserFailed  func()
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the facade's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facade) { f.logger = logger }
}

// WithEvents sets the notification hooks.
func WithEvents(events Events) Option {
	return func(f *Facade) { f.events = events }
}

// Facade is a per-connection login client. The secret never leaves the
// process: it is hashed with the configured algorithm before it is written
// to the wire.
type Facade struct {
	conn     transport.ClientConn
	tag      uint8
	subjects protocol.Subjects
	alg      auth.Algorithm
	events   Events
	logger   *slog.Logger

	mu       sync.Mutex
	userID   int32
	loggedIn bool
}

// New creates a Facade bound to a connection. The inbound listener is
// registered here, exactly once for the connection's lifetime; constructing
// two facades on one connection fails rather than double-firing callbacks.
func New(conn transport.ClientConn, tag uint8, subjects protocol.Subjects, alg auth.Algorithm, opts ...Option) (*Facade, error) {
	if conn == nil {
		return nil, oops.Errorf("connection is required")
	}
	if err := subjects.Validate(); err != nil {
		return nil, err
	}

	f := &Facade{
		conn:     conn,
		tag:      tag,
		subjects: subjects,
		alg:      alg,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := conn.Bind(f.handleReply); err != nil {
		return nil, err
	}
	return f, nil
}

// UserID returns the cached user id of the last successful login.
func (f *Facade) UserID() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// IsLoggedIn reports the cached session flag.
func (f *Facade) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

// Login requests authentication. Empty username or secret is dropped
// without sending anything: an unconfigured caller must not be able to spam
// the server with requests that can never succeed.
func (f *Facade) Login(username, secret string) error {
	hash, ok := f.prepare("login", username, secret)
	if !ok {
		return nil
	}
	return f.send(f.subjects.Login, wire.String(username), wire.String(hash))
}

// Logout requests the end of the authenticated session. The payload is a
// zero marker; the reply always clears the cached flag.
func (f *Facade) Logout() error {
	return f.send(f.subjects.Logout, wire.Int32(0))
}

// AddUser requests registration of a new account. Empty inputs are dropped
// the same way Login drops them.
func (f *Facade) AddUser(username, secret string) error {
	hash, ok := f.prepare("add_user", username, secret)
	if !ok {
		return nil
	}
	return f.send(f.subjects.AddUser, wire.String(username), wire.String(hash))
}

// prepare validates the inputs and derives the verification hash. A false
// result means the request should be silently dropped.
func (f *Facade) prepare(op, username, secret string) (string, bool) {
	if username == "" || secret == "" {
		f.logger.Debug("dropping request with empty credentials", "op", op)
		return "", false
	}
	hash, err := auth.HashSecret(secret, f.alg)
	if err != nil {
		// Only reachable with a misconfigured algorithm; treat like an
		// empty input rather than surfacing a raw error to the UI layer.
		errutil.LogError(f.logger, "failed to hash secret", err)
		return "", false
	}
	return hash, true
}

func (f *Facade) send(subject uint16, fields ...wire.Field) error {
	return f.conn.Send(wire.New(f.tag, subject, fields...))
}

// handleReply consumes one reply envelope. A malformed payload surfaces as
// the corresponding failure notification, never as a decode error reaching
// presentation code.
func (f *Facade) handleReply(env wire.Envelope) {
	if env.Tag != f.tag {
		return
	}

	switch env.Subject {
	case f.subjects.LoginSuccess:
		id, err := env.Int32At(0)
		if err != nil {
			errutil.LogError(f.logger, "malformed login success payload", err)
			f.setLoggedOut()
			f.emitLoginFailed()
			return
		}
		f.setLoggedIn(id)
		if f.events.LoginSucceeded != nil {
			f.events.LoginSucceeded(id)
		}

	case f.subjects.LoginFailed:
		f.setLoggedOut()
		f.emitLoginFailed()

	case f.subjects.LogoutSuccess:
		f.setLoggedOut()
		if f.events.LoggedOut != nil {
			f.events.LoggedOut()
		}

	case f.subjects.AddUserSuccess:
		id, err := env.Int32At(0)
		if err != nil {
			errutil.LogError(f.logger, "malformed add user success payload", err)
			f.emitAddUserFailed()
			return
		}
		f.setLoggedIn(id)
		if f.events.UserAdded != nil {
			f.events.UserAdded(id)
		}

	case f.subjects.AddUserFailed:
		f.emitAddUserFailed()

	default:
		f.logger.Debug("unknown reply subject ignored", "subject", env.Subject)
	}
}

func (f *Facade) emitLoginFailed() {
	if f.events.LoginFailed != nil {
		f.events.LoginFailed()
	}
}

func (f *Facade) emitAddUserFailed() {
	if f.events.AddUserFailed != nil {
		f.events.AddUserFailed()
	}
}

func (f *Facade) setLoggedIn(id int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = id
	f.loggedIn = true
}

func (f *Facade) setLoggedOut() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = false
}
