// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package types describes the SQL types understood by the execution engine.
// Only the small closed set of types that the vectorized engine can represent
// natively lives here; anything richer is decoded by readers before it reaches
// a batch.
package types

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Family identifies a group of types that share a value space.
type Family int32

const (
	// UnknownFamily is the family of the NULL-typed placeholder.
	UnknownFamily Family = iota
	// BoolFamily is the family of BOOL.
	BoolFamily
	// IntFamily is the family of INT2, INT4 and INT8.
	IntFamily
	// FloatFamily is the family of FLOAT4 and FLOAT8.
	FloatFamily
	// DecimalFamily is the family of DECIMAL.
	DecimalFamily
	// BytesFamily is the family of BYTES.
	BytesFamily
	// StringFamily is the family of STRING.
	StringFamily
)

var familyNames = [...]string{
	UnknownFamily: "unknown",
	BoolFamily:    "bool",
	IntFamily:     "int",
	FloatFamily:   "float",
	DecimalFamily: "decimal",
	BytesFamily:   "bytes",
	StringFamily:  "string",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", int32(f))
}

// SafeValue implements redact.SafeValue.
func (Family) SafeValue() {}

// IsNumeric returns whether values of the family are ordered numerically.
func (f Family) IsNumeric() bool {
	return f == IntFamily || f == FloatFamily || f == DecimalFamily
}

// T is a SQL type. Instances are immutable and are usually referenced through
// the package-level singletons.
type T struct {
	family Family
	width  int32
}

var (
	// Unknown is the type of an untyped NULL.
	Unknown = &T{family: UnknownFamily}
	// Bool is the BOOL type.
	Bool = &T{family: BoolFamily}
	// Int2 is the 16-bit INT type.
	Int2 = &T{family: IntFamily, width: 16}
	// Int4 is the 32-bit INT type.
	Int4 = &T{family: IntFamily, width: 32}
	// Int is the 64-bit INT type.
	Int = &T{family: IntFamily, width: 64}
	// Float4 is the 32-bit FLOAT type.
	Float4 = &T{family: FloatFamily, width: 32}
	// Float is the 64-bit FLOAT type.
	Float = &T{family: FloatFamily, width: 64}
	// Decimal is the arbitrary precision DECIMAL type.
	Decimal = &T{family: DecimalFamily}
	// Bytes is the BYTES type.
	Bytes = &T{family: BytesFamily}
	// String is the STRING type.
	String = &T{family: StringFamily}
)

// Scalar contains all types supported by the engine, in the order in which
// they are listed by the CLI.
var Scalar = []*T{Bool, Int2, Int4, Int, Float4, Float, Decimal, Bytes, String}

// Family returns the family of the type.
func (t *T) Family() Family { return t.family }

// Width returns the bit width of integer and float types, 0 otherwise.
func (t *T) Width() int32 { return t.width }

// Equivalent returns whether values of t and other can be compared and copied
// without conversion.
func (t *T) Equivalent(other *T) bool {
	if t.family == UnknownFamily || other.family == UnknownFamily {
		return true
	}
	return t.family == other.family
}

// Identical returns whether t and other are the exact same type.
func (t *T) Identical(other *T) bool {
	return t.family == other.family && t.width == other.width
}

// SQLString returns the canonical SQL spelling of the type.
func (t *T) SQLString() string {
	switch t.family {
	case BoolFamily:
		return "BOOL"
	case IntFamily:
		switch t.width {
		case 16:
			return "INT2"
		case 32:
			return "INT4"
		}
		return "INT8"
	case FloatFamily:
		if t.width == 32 {
			return "FLOAT4"
		}
		return "FLOAT8"
	case DecimalFamily:
		return "DECIMAL"
	case BytesFamily:
		return "BYTES"
	case StringFamily:
		return "STRING"
	}
	return "UNKNOWN"
}

func (t *T) String() string { return t.SQLString() }

// SafeFormat implements redact.SafeFormatter.
func (t *T) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(t.SQLString()))
}

var namesToTypes = map[string]*T{
	"BOOL":    Bool,
	"BOOLEAN": Bool,
	"INT2":    Int2,
	"INT4":    Int4,
	"INT":     Int,
	"INT8":    Int,
	"BIGINT":  Int,
	"FLOAT4":  Float4,
	"REAL":    Float4,
	"FLOAT":   Float,
	"FLOAT8":  Float,
	"DOUBLE":  Float,
	"DECIMAL": Decimal,
	"NUMERIC": Decimal,
	"BYTES":   Bytes,
	"BYTEA":   Bytes,
	"STRING":  String,
	"TEXT":    String,
	"VARCHAR": String,
}

// FromName resolves a SQL type name such as "INT8" or "string".
func FromName(name string) (*T, error) {
	if t, ok := namesToTypes[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return nil, errors.Newf("unknown type name %q", name)
}
