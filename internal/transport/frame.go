// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package transport

import (
	"encoding/binary"
	"io"

	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/wire"
)

// MaxFrameSize bounds a single envelope on the wire. Large enough for the
// biggest legal payload, small enough to reject garbage length prefixes.
const MaxFrameSize = 64 * 1024

// writeFrame writes a length-prefixed encoded envelope. The encoded size is
// checked against MaxFrameSize so a peer's readFrame never rejects what we
// sent.
func writeFrame(w io.Writer, env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return oops.Code("TRANSPORT_FRAME_TOO_LARGE").
			With("size", len(data)).
			With("max", MaxFrameSize).
			Errorf("frame exceeds maximum size")
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return oops.Code("TRANSPORT_WRITE_FAILED").Wrap(err)
	}
	if _, err := w.Write(data); err != nil {
		return oops.Code("TRANSPORT_WRITE_FAILED").Wrap(err)
	}
	return nil
}

// readFrame reads one length-prefixed envelope. io.EOF is passed through
// unchanged so callers can detect a clean close.
func readFrame(r io.Reader) (wire.Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return wire.Envelope{}, io.EOF
		}
		return wire.Envelope{}, oops.Code("TRANSPORT_READ_FAILED").Wrap(err)
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return wire.Envelope{}, oops.Code("TRANSPORT_FRAME_TOO_LARGE").
			With("size", size).
			With("max", MaxFrameSize).
			Errorf("frame exceeds maximum size")
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return wire.Envelope{}, oops.Code("TRANSPORT_READ_FAILED").Wrap(err)
	}
	return wire.Decode(data)
}
