// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/wire"
)

// TCPClient is a ClientConn over TCP.
type TCPClient struct {
	nc     net.Conn
	sendMu sync.Mutex
	bindMu sync.Mutex
	bound  bool
	closed bool
	done   chan struct{}
}

// Dial connects to a transport server.
func Dial(addr string) (*TCPClient, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, oops.Code("TRANSPORT_DIAL_FAILED").
			With("addr", addr).
			Wrap(err)
	}
	return &TCPClient{
		nc:   nc,
		done: make(chan struct{}),
	}, nil
}

// Send writes an envelope to the server.
func (c *TCPClient) Send(env wire.Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return writeFrame(c.nc, env)
}

// Bind registers the inbound listener and starts the receive loop. Only the
// first call succeeds; envelopes that fail to decode are logged and skipped
// by closing the connection, since a corrupt frame stream cannot be resynced.
func (c *TCPClient) Bind(receive func(env wire.Envelope)) error {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	if c.bound {
		return ErrAlreadyBound
	}
	c.bound = true

	go func() {
		defer close(c.done)
		for {
			env, err := readFrame(c.nc)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					slog.Debug("client read error", "error", err)
				}
				return
			}
			receive(env)
		}
	}()
	return nil
}

// Close terminates the connection and waits for the receive loop to stop.
func (c *TCPClient) Close() error {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return nil
	}
	c.closed = true
	c.sendMu.Unlock()

	err := c.nc.Close()

	c.bindMu.Lock()
	bound := c.bound
	c.bindMu.Unlock()
	if bound {
		<-c.done
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return oops.Code("TRANSPORT_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ ClientConn = (*TCPClient)(nil)
