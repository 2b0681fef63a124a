// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/doorkeep/doorkeep/internal/wire"
)

// Pipe links a ClientConn directly to a Handler with no network in between.
// Delivery is synchronous in both directions, which keeps tests
// deterministic while preserving the transport's per-connection sequential
// dispatch guarantee.
type Pipe struct {
	ctx     context.Context
	handler Handler
	server  *pipeServerConn

	mu      sync.Mutex
	receive func(env wire.Envelope)
	bound   bool
	closed  bool
}

// NewPipe creates a connected pipe and announces the connection to the
// handler. The returned Pipe is the client end.
func NewPipe(ctx context.Context, handler Handler) *Pipe {
	p := &Pipe{
		ctx:     ctx,
		handler: handler,
	}
	p.server = &pipeServerConn{id: ulid.Make(), client: p}
	handler.HandleConnect(ctx, p.server)
	return p
}

// ServerConn returns the server end, for tests that assert on connection
// identity.
func (p *Pipe) ServerConn() Conn { return p.server }

// Send delivers an envelope to the handler if the tag matches.
func (p *Pipe) Send(env wire.Envelope) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	if env.Tag != p.handler.Tag() {
		slog.Debug("pipe dropping envelope for unregistered tag", "tag", env.Tag)
		return nil
	}
	p.handler.HandleMessage(p.ctx, p.server, env)
	return nil
}

// Bind registers the inbound listener. Only the first call succeeds.
func (p *Pipe) Bind(receive func(env wire.Envelope)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bound {
		return ErrAlreadyBound
	}
	p.bound = true
	p.receive = receive
	return nil
}

// Close announces the disconnect to the handler.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.handler.HandleDisconnect(p.ctx, p.server)
	return nil
}

func (p *Pipe) deliver(env wire.Envelope) {
	p.mu.Lock()
	receive := p.receive
	p.mu.Unlock()
	if receive == nil {
		slog.Debug("pipe reply dropped, no listener bound", "subject", env.Subject)
		return
	}
	receive(env)
}

// pipeServerConn is the handler-facing end of a Pipe.
type pipeServerConn struct {
	id     ulid.ULID
	client *Pipe
}

// ID returns the connection's unique identifier.
func (c *pipeServerConn) ID() ulid.ULID { return c.id }

// RemoteAddr returns a placeholder pipe address.
func (c *pipeServerConn) RemoteAddr() net.Addr {
	return pipeAddr{}
}

// Send delivers a reply envelope to the client end.
func (c *pipeServerConn) Send(env wire.Envelope) error {
	c.client.deliver(env)
	return nil
}

// Close closes the client end.
func (c *pipeServerConn) Close() error {
	return c.client.Close()
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// Compile-time interface checks.
var (
	_ ClientConn = (*Pipe)(nil)
	_ Conn       = (*pipeServerConn)(nil)
)
