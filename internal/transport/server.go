// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/wire"
)

// Server accepts TCP connections and dispatches envelopes to registered
// protocol handlers by tag.
type Server struct {
	addr     string
	handlers map[uint8]Handler
	listener net.Listener
	mu       sync.RWMutex
}

// NewServer creates a server listening on addr once Run is called.
func NewServer(addr string) *Server {
	return &Server{
		addr:     addr,
		handlers: make(map[uint8]Handler),
	}
}

// Register adds a protocol handler. Must be called before Run. Registering
// a second handler for the same tag is a programming error.
func (s *Server) Register(h Handler) error {
	if _, exists := s.handlers[h.Tag()]; exists {
		return oops.Code("TRANSPORT_TAG_TAKEN").
			With("tag", h.Tag()).
			Errorf("handler already registered for tag %d", h.Tag())
	}
	s.handlers[h.Tag()] = h
	return nil
}

// Addr returns the bound listen address, or "" before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("TRANSPORT_LISTEN_FAILED").
			With("addr", s.addr).
			Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("transport server started", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			slog.Debug("error closing listener", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn owns one connection: sequential envelope reads, dispatch by tag.
func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	conn := newServerConn(nc)
	defer func() {
		for _, h := range s.handlers {
			h.HandleDisconnect(ctx, conn)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Debug("error closing connection", "conn_id", conn.ID().String(), "error", err)
		}
	}()

	for _, h := range s.handlers {
		h.HandleConnect(ctx, conn)
	}

	for {
		env, err := readFrame(nc)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error",
					"conn_id", conn.ID().String(),
					"error", err,
				)
			}
			return
		}

		h, ok := s.handlers[env.Tag]
		if !ok {
			// Another protocol family's traffic; not ours to answer.
			slog.Debug("envelope for unregistered tag dropped",
				"conn_id", conn.ID().String(),
				"tag", env.Tag,
				"subject", env.Subject,
			)
			continue
		}
		h.HandleMessage(ctx, conn, env)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// serverConn wraps an accepted net.Conn.
type serverConn struct {
	nc     net.Conn
	id     ulid.ULID
	sendMu sync.Mutex
	closed bool
}

func newServerConn(nc net.Conn) *serverConn {
	return &serverConn{
		nc: nc,
		id: ulid.Make(),
	}
}

// ID returns the connection's unique identifier.
func (c *serverConn) ID() ulid.ULID { return c.id }

// RemoteAddr returns the peer address.
func (c *serverConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send writes an envelope to the peer.
func (c *serverConn) Send(env wire.Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return writeFrame(c.nc, env)
}

// Close terminates the connection.
func (c *serverConn) Close() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close() //nolint:wrapcheck // net.ErrClosed checks need the raw error
}

// Compile-time interface check.
var _ Conn = (*serverConn)(nil)
