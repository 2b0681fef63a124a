// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/transport"
	"github.com/doorkeep/doorkeep/internal/wire"
	"github.com/doorkeep/doorkeep/pkg/errutil"
)

// Config is the protocol handler's deployment configuration.
type Config struct {
	// Tag is the envelope tag this protocol family owns.
	Tag uint8

	// Subjects are the operation codes, shared with clients.
	Subjects Subjects

	// AllowAddUser enables the remote account creation path.
	AllowAddUser bool

	// AllowAddUserWhenAuthenticated permits an already authenticated
	// connection to register another account. The historical behavior is
	// true; disabling it makes ADD_USER on an authenticated connection
	// fail without touching the store.
	AllowAddUserWhenAuthenticated bool
}

// Metrics receives auth outcome counts. Implemented by the observability
// package; a no-op is used when none is provided.
type Metrics interface {
	RecordConnection()
	RecordAuthRequest(op, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordConnection() {}
func (noopMetrics) RecordAuthRequest(op, status string) {}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithEvents sets the notification hooks.
func WithEvents(events Events) Option {
	return func(h *Handler) { h.events = events }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler is the server-side protocol state machine. Each connection moves
// between two states, anonymous and authenticated; every request envelope
// gets exactly one reply envelope, success or failure, never silence.
type Handler struct {
	cfg      Config
	store    auth.UserStore
	sessions *sessionTable
	events   Events
	logger   *slog.Logger
	metrics  Metrics
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, store auth.UserStore, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, oops.Errorf("user store is required")
	}
	if err := cfg.Subjects.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		cfg:      cfg,
		store:    store,
		sessions: newSessionTable(),
		logger:   slog.New(slog.DiscardHandler),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Tag returns the envelope tag this handler owns.
func (h *Handler) Tag() uint8 { return h.cfg.Tag }

// Session returns a copy of a connection's session state, for callers that
// observe but never mutate it.
func (h *Handler) Session(connID ulid.ULID) (Session, bool) {
	return h.sessions.snapshot(connID)
}

// HandleConnect creates the connection's anonymous session.
func (h *Handler) HandleConnect(_ context.Context, conn transport.Conn) {
	h.sessions.attach(conn.ID())
	h.metrics.RecordConnection()
	h.logger.Debug("connection attached",
		"conn_id", conn.ID().String(),
		"remote_addr", conn.RemoteAddr().String(),
	)
}

// HandleDisconnect discards the connection's session.
func (h *Handler) HandleDisconnect(_ context.Context, conn transport.Conn) {
	h.sessions.detach(conn.ID())
	h.logger.Debug("connection detached", "conn_id", conn.ID().String())
}

// HandleMessage routes one inbound envelope. Unknown subjects are logged
// and ignored; the three request subjects always produce exactly one reply.
func (h *Handler) HandleMessage(ctx context.Context, conn transport.Conn, env wire.Envelope) {
	if env.Tag != h.cfg.Tag {
		return
	}

	sess := h.sessions.get(conn.ID())

	switch env.Subject {
	case h.cfg.Subjects.Login:
		h.handleLogin(ctx, conn, sess, env)
	case h.cfg.Subjects.Logout:
		h.handleLogout(conn, sess)
	case h.cfg.Subjects.AddUser:
		h.handleAddUser(ctx, conn, sess, env)
	default:
		h.logger.Debug("unknown subject ignored",
			"conn_id", conn.ID().String(),
			"subject", env.Subject,
		)
	}
}

func (h *Handler) handleLogin(ctx context.Context, conn transport.Conn, sess *Session, env wire.Envelope) {
	username, hash, err := decodeCredentials(env)
	if err != nil {
		errutil.LogError(h.logger, "malformed login payload", err)
		h.failLogin(conn)
		return
	}

	// A second login on an authenticated connection is rejected outright:
	// honoring it would swap the session's identity without ever emitting
	// the logout notification for the first user.
	if sess.Authenticated {
		h.logger.Warn("login attempt on authenticated connection",
			"conn_id", conn.ID().String(),
			"user_id", sess.UserID,
		)
		h.failLogin(conn)
		return
	}

	id, err := h.store.FindIDByCredentials(ctx, username, hash)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			errutil.LogError(h.logger, "store error during login", err)
		}
		h.failLogin(conn)
		return
	}

	sess.Bind(id)
	h.metrics.RecordAuthRequest("login", "success")
	h.events.loginSucceeded(id, conn)
	h.logger.Debug("login succeeded", "conn_id", conn.ID().String(), "user_id", id)
	h.reply(conn, h.cfg.Subjects.LoginSuccess, wire.Int32(id))
}

func (h *Handler) failLogin(conn transport.Conn) {
	h.metrics.RecordAuthRequest("login", "failure")
	h.events.loginFailed(conn)
	h.logger.Debug("login failed", "conn_id", conn.ID().String())
	h.reply(conn, h.cfg.Subjects.LoginFailed, wire.Int32(0))
}

// handleLogout always succeeds: it clears the session regardless of prior
// state and replies LOGOUT_SUCCESS exactly once.
func (h *Handler) handleLogout(conn transport.Conn, sess *Session) {
	userID := sess.UserID
	sess.Clear()

	h.metrics.RecordAuthRequest("logout", "success")
	h.events.loggedOut(userID, conn)
	h.logger.Debug("logout", "conn_id", conn.ID().String(), "user_id", userID)
	h.reply(conn, h.cfg.Subjects.LogoutSuccess, wire.Int32(0))
}

func (h *Handler) handleAddUser(ctx context.Context, conn transport.Conn, sess *Session, env wire.Envelope) {
	if !h.cfg.AllowAddUser {
		h.logger.Debug("add user rejected, feature disabled", "conn_id", conn.ID().String())
		h.failAddUser(conn, "")
		return
	}

	username, hash, err := decodeCredentials(env)
	if err != nil {
		errutil.LogError(h.logger, "malformed add user payload", err)
		h.failAddUser(conn, "")
		return
	}

	if sess.Authenticated && !h.cfg.AllowAddUserWhenAuthenticated {
		h.logger.Debug("add user rejected on authenticated connection",
			"conn_id", conn.ID().String(),
			"user_id", sess.UserID,
		)
		h.failAddUser(conn, username)
		return
	}

	exists, err := h.store.ExistsByCredentials(ctx, username, hash)
	if err != nil {
		errutil.LogError(h.logger, "store error during add user", err)
		h.failAddUser(conn, username)
		return
	}
	if exists {
		h.logger.Debug("add user rejected, credentials already registered",
			"conn_id", conn.ID().String(),
			"username", username,
		)
		h.failAddUser(conn, username)
		return
	}

	id, err := h.store.Insert(ctx, username, hash)
	if err != nil {
		// A concurrent registration can win the race between the existence
		// check and the insert; the unique constraint is the authoritative
		// guard and its violation is an ordinary failure, not a fault.
		if errors.Is(err, auth.ErrDuplicate) {
			h.logger.Debug("add user lost insert race", "username", username)
		} else {
			errutil.LogError(h.logger, "store error inserting user", err)
		}
		h.failAddUser(conn, username)
		return
	}

	sess.Bind(id)
	h.metrics.RecordAuthRequest("add_user", "success")
	h.events.userAdded(id, username, conn)
	h.logger.Debug("user added",
		"conn_id", conn.ID().String(),
		"user_id", id,
		"username", username,
	)
	h.reply(conn, h.cfg.Subjects.AddUserSuccess, wire.Int32(id))
}

func (h *Handler) failAddUser(conn transport.Conn, username string) {
	h.metrics.RecordAuthRequest("add_user", "failure")
	h.events.addUserFailed(username, conn)
	h.reply(conn, h.cfg.Subjects.AddUserFailed, wire.Int32(0))
}

func (h *Handler) reply(conn transport.Conn, subject uint16, fields ...wire.Field) {
	if err := conn.Send(wire.New(h.cfg.Tag, subject, fields...)); err != nil {
		errutil.LogError(h.logger, "failed to send reply", err)
	}
}

// decodeCredentials extracts the username and verification hash fields of a
// login or add-user payload.
func decodeCredentials(env wire.Envelope) (username, hash string, err error) {
	username, err = env.StringAt(0)
	if err != nil {
		return "", "", err
	}
	hash, err = env.StringAt(1)
	if err != nil {
		return "", "", err
	}
	if username == "" || hash == "" {
		return "", "", oops.Code("PROTOCOL_EMPTY_CREDENTIALS").
			Errorf("username and hash must be non-empty")
	}
	return username, hash, nil
}

// Compile-time interface check.
var _ transport.Handler = (*Handler)(nil)
