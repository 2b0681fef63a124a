// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package wire defines the tagged envelope exchanged between client and
// server and its binary encoding.
package wire

import (
	"github.com/samber/oops"
)

// FieldKind identifies the type of a payload field.
type FieldKind uint8

// Supported payload field kinds.
const (
	KindString FieldKind = iota
	KindInt32
	KindBool
)

// String returns a human-readable name for the kind.
func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Field is a single typed payload value. Exactly one of the value members
// is meaningful, selected by Kind.
type Field struct {
	Kind FieldKind
	Str  string
	Int  int32
	Bool bool
}

// String creates a string field.
func String(s string) Field {
	return Field{Kind: KindString, Str: s}
}

// Int32 creates an int32 field.
func Int32(i int32) Field {
	return Field{Kind: KindInt32, Int: i}
}

// Bool creates a bool field.
func Bool(b bool) Field {
	return Field{Kind: KindBool, Bool: b}
}

// Envelope is the message unit of the protocol: a coarse tag selecting the
// protocol family, a subject selecting the operation within it, and an
// ordered list of typed fields. Envelopes are immutable once built.
type Envelope struct {
	Tag     uint8
	Subject uint16
	Fields  []Field
}

// New builds an envelope for the given tag and subject.
func New(tag uint8, subject uint16, fields ...Field) Envelope {
	return Envelope{Tag: tag, Subject: subject, Fields: fields}
}

// StringAt returns the string field at index i. A missing field or a field
// of a different kind is a protocol error.
func (e Envelope) StringAt(i int) (string, error) {
	f, err := e.fieldAt(i, KindString)
	if err != nil {
		return "", err
	}
	return f.Str, nil
}

// Int32At returns the int32 field at index i.
func (e Envelope) Int32At(i int) (int32, error) {
	f, err := e.fieldAt(i, KindInt32)
	if err != nil {
		return 0, err
	}
	return f.Int, nil
}

// BoolAt returns the bool field at index i.
func (e Envelope) BoolAt(i int) (bool, error) {
	f, err := e.fieldAt(i, KindBool)
	if err != nil {
		return false, err
	}
	return f.Bool, nil
}

func (e Envelope) fieldAt(i int, want FieldKind) (Field, error) {
	if i < 0 || i >= len(e.Fields) {
		return Field{}, oops.Code("WIRE_FIELD_MISSING").
			With("index", i).
			With("field_count", len(e.Fields)).
			Errorf("payload field %d is missing", i)
	}
	f := e.Fields[i]
	if f.Kind != want {
		return Field{}, oops.Code("WIRE_FIELD_TYPE").
			With("index", i).
			With("want", want.String()).
			With("got", f.Kind.String()).
			Errorf("payload field %d is %s, want %s", i, f.Kind, want)
	}
	return f, nil
}
