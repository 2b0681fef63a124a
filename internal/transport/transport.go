// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package transport moves envelopes between clients and the server.
//
// The server accepts connections, reads one envelope at a time per
// connection, and dispatches each to the protocol handler registered for
// its tag. Per-connection dispatch is sequential: a handler never sees two
// envelopes from the same connection concurrently.
package transport

import (
	"context"
	"net"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/wire"
)

// Conn is the server's view of an accepted connection. Handlers use it to
// send reply envelopes and to key per-connection state.
type Conn interface {
	// ID is a unique identifier for the connection's lifetime.
	ID() ulid.ULID

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Send writes an envelope to the peer. Safe for concurrent use.
	Send(env wire.Envelope) error

	// Close terminates the connection.
	Close() error
}

// Handler processes envelopes for one protocol family (one tag).
type Handler interface {
	// Tag returns the envelope tag this handler owns.
	Tag() uint8

	// HandleConnect is called once when a connection is accepted, before
	// any envelope is dispatched.
	HandleConnect(ctx context.Context, conn Conn)

	// HandleMessage is called for each inbound envelope carrying the
	// handler's tag. Called sequentially per connection.
	HandleMessage(ctx context.Context, conn Conn, env wire.Envelope)

	// HandleDisconnect is called once when the connection closes.
	HandleDisconnect(ctx context.Context, conn Conn)
}

// ClientConn is the client's view of a connection.
type ClientConn interface {
	// Send writes an envelope to the server.
	Send(env wire.Envelope) error

	// Bind registers the single inbound listener for the connection's
	// lifetime. A second call returns ErrAlreadyBound; binding once is
	// enforced here rather than by defensive re-registration.
	Bind(receive func(env wire.Envelope)) error

	// Close terminates the connection.
	Close() error
}

// ErrAlreadyBound is returned by Bind when a listener is already registered.
var ErrAlreadyBound = oops.Code("TRANSPORT_ALREADY_BOUND").Errorf("inbound listener already bound")

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = oops.Code("TRANSPORT_CLOSED").Errorf("connection closed")
