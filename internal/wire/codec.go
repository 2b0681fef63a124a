// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/samber/oops"
)

// Encoding limits. A login payload is two short strings; anything near these
// bounds is malformed or hostile.
const (
	MaxFields    = 16
	MaxStringLen = 4096
)

// Binary layout (big-endian):
//
//	tag       uint8
//	subject   uint16
//	count     uint8
//	fields    count times: kind uint8, then value
//
// Value encodings: string = uint16 length + UTF-8 bytes, int32 = 4 bytes,
// bool = 1 byte (0 or 1).

// Encode serializes the envelope.
func Encode(e Envelope) ([]byte, error) {
	if len(e.Fields) > MaxFields {
		return nil, oops.Code("WIRE_TOO_MANY_FIELDS").
			With("field_count", len(e.Fields)).
			With("max", MaxFields).
			Errorf("envelope has too many fields")
	}

	var buf bytes.Buffer
	buf.WriteByte(e.Tag)
	var sub [2]byte
	binary.BigEndian.PutUint16(sub[:], e.Subject)
	buf.Write(sub[:])
	buf.WriteByte(uint8(len(e.Fields)))

	for i, f := range e.Fields {
		buf.WriteByte(uint8(f.Kind))
		switch f.Kind {
		case KindString:
			if len(f.Str) > MaxStringLen {
				return nil, oops.Code("WIRE_STRING_TOO_LONG").
					With("index", i).
					With("length", len(f.Str)).
					Errorf("string field exceeds %d bytes", MaxStringLen)
			}
			var l [2]byte
			binary.BigEndian.PutUint16(l[:], uint16(len(f.Str)))
			buf.Write(l[:])
			buf.WriteString(f.Str)
		case KindInt32:
			var v [4]byte
			binary.BigEndian.PutUint32(v[:], uint32(f.Int))
			buf.Write(v[:])
		case KindBool:
			if f.Bool {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default:
			return nil, oops.Code("WIRE_UNKNOWN_KIND").
				With("index", i).
				With("kind", uint8(f.Kind)).
				Errorf("unknown field kind")
		}
	}

	return buf.Bytes(), nil
}

// Decode parses an envelope from data. Trailing bytes after the declared
// field count are rejected.
func Decode(data []byte) (Envelope, error) {
	r := bytes.NewReader(data)

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Envelope{}, oops.Code("WIRE_TRUNCATED").
			With("length", len(data)).
			Errorf("envelope shorter than header")
	}

	e := Envelope{
		Tag:     hdr[0],
		Subject: binary.BigEndian.Uint16(hdr[1:3]),
	}
	count := int(hdr[3])
	if count > MaxFields {
		return Envelope{}, oops.Code("WIRE_TOO_MANY_FIELDS").
			With("field_count", count).
			With("max", MaxFields).
			Errorf("envelope declares too many fields")
	}

	e.Fields = make([]Field, 0, count)
	for i := 0; i < count; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return Envelope{}, truncated(i)
		}
		switch FieldKind(kind) {
		case KindString:
			var l [2]byte
			if _, err := io.ReadFull(r, l[:]); err != nil {
				return Envelope{}, truncated(i)
			}
			n := int(binary.BigEndian.Uint16(l[:]))
			if n > MaxStringLen {
				return Envelope{}, oops.Code("WIRE_STRING_TOO_LONG").
					With("index", i).
					With("length", n).
					Errorf("string field exceeds %d bytes", MaxStringLen)
			}
			s := make([]byte, n)
			if _, err := io.ReadFull(r, s); err != nil {
				return Envelope{}, truncated(i)
			}
			e.Fields = append(e.Fields, String(string(s)))
		case KindInt32:
			var v [4]byte
			if _, err := io.ReadFull(r, v[:]); err != nil {
				return Envelope{}, truncated(i)
			}
			e.Fields = append(e.Fields, Int32(int32(binary.BigEndian.Uint32(v[:])))) //nolint:gosec // two's complement round-trip of Encode
		case KindBool:
			b, err := r.ReadByte()
			if err != nil {
				return Envelope{}, truncated(i)
			}
			e.Fields = append(e.Fields, Bool(b != 0))
		default:
			return Envelope{}, oops.Code("WIRE_UNKNOWN_KIND").
				With("index", i).
				With("kind", kind).
				Errorf("unknown field kind")
		}
	}

	if r.Len() != 0 {
		return Envelope{}, oops.Code("WIRE_TRAILING_BYTES").
			With("trailing", r.Len()).
			Errorf("envelope has trailing bytes")
	}

	return e, nil
}

func truncated(index int) error {
	return oops.Code("WIRE_TRUNCATED").
		With("index", index).
		Errorf("envelope truncated inside field %d", index)
}
