// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/doorkeep/doorkeep/internal/transport"
	"github.com/doorkeep/doorkeep/internal/wire"
)

func TestRegister(t *testing.T) {
	t.Run("distinct tags register", func(t *testing.T) {
		s := transport.NewServer("127.0.0.1:0")
		require.NoError(t, s.Register(&echoHandler{tag: 1}))
		require.NoError(t, s.Register(&echoHandler{tag: 2}))
	})

	t.Run("duplicate tag is rejected", func(t *testing.T) {
		s := transport.NewServer("127.0.0.1:0")
		require.NoError(t, s.Register(&echoHandler{tag: 1}))
		err := s.Register(&echoHandler{tag: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})
}

func TestServerRunInvalidAddr(t *testing.T) {
	s := transport.NewServer("256.256.256.256:99999")
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

// startServer runs a server on an ephemeral port and returns its address and
// a stop function that blocks until Run returns.
func startServer(t *testing.T, handlers ...transport.Handler) (addr string, stop func()) {
	t.Helper()

	s := transport.NewServer("127.0.0.1:0")
	for _, h := range handlers {
		require.NoError(t, s.Register(h))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return s.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "server never bound")

	return s.Addr(), func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	}
}

func TestServerRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &echoHandler{tag: 1}
	addr, stop := startServer(t, h)
	defer stop()

	client, err := transport.Dial(addr)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, client.Close())
	}()

	replies := make(chan wire.Envelope, 1)
	require.NoError(t, client.Bind(func(env wire.Envelope) {
		replies <- env
	}))

	sent := wire.New(1, 0, wire.String("alice"), wire.String("HASH"))
	require.NoError(t, client.Send(sent))

	select {
	case got := <-replies:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply received")
	}
}

func TestServerDropsUnregisteredTag(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &echoHandler{tag: 1}
	addr, stop := startServer(t, h)
	defer stop()

	client, err := transport.Dial(addr)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, client.Close())
	}()

	replies := make(chan wire.Envelope, 2)
	require.NoError(t, client.Bind(func(env wire.Envelope) {
		replies <- env
	}))

	// Foreign tag first, then a matching one; only the second is echoed.
	require.NoError(t, client.Send(wire.New(9, 0)))
	require.NoError(t, client.Send(wire.New(1, 5, wire.Int32(0))))

	select {
	case got := <-replies:
		assert.Equal(t, uint8(1), got.Tag)
		assert.Equal(t, uint16(5), got.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply received")
	}
	assert.Empty(t, replies)
}

func TestServerConnectionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &echoHandler{tag: 1}
	addr, stop := startServer(t, h)
	defer stop()

	client, err := transport.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		connects, disconnects, _ := h.stats()
		return connects == 1 && disconnects == 1
	}, 2*time.Second, 10*time.Millisecond, "lifecycle hooks not observed")
}

func TestClientBindOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr, stop := startServer(t, &echoHandler{tag: 1})
	defer stop()

	client, err := transport.Dial(addr)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, client.Close())
	}()

	require.NoError(t, client.Bind(func(wire.Envelope) {}))
	err = client.Bind(func(wire.Envelope) {})
	assert.ErrorIs(t, err, transport.ErrAlreadyBound)
}

func TestClientSendAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr, stop := startServer(t, &echoHandler{tag: 1})
	defer stop()

	client, err := transport.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	err = client.Send(wire.New(1, 0))
	assert.ErrorIs(t, err, transport.ErrClosed)
}
