// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package typeconv

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/sql/types"
)

// TypeFamilyToCanonicalTypeFamily maps all type families that are supported by
// the vectorized engine to their "canonical" counterparts. "Canonical" type
// families are representatives from a set of "equivalent" type families where
// "equivalence" means having the same physical representation.
var TypeFamilyToCanonicalTypeFamily = map[types.Family]types.Family{
	types.BoolFamily:    types.BoolFamily,
	types.IntFamily:     types.IntFamily,
	types.FloatFamily:   types.FloatFamily,
	types.DecimalFamily: types.DecimalFamily,
	types.BytesFamily:   types.BytesFamily,
	types.StringFamily:  types.BytesFamily,
}

// CanonicalFamily returns the canonical family of t, or UnknownFamily if t is
// not supported.
func CanonicalFamily(t *types.T) types.Family {
	if f, ok := TypeFamilyToCanonicalTypeFamily[t.Family()]; ok {
		return f
	}
	return types.UnknownFamily
}

// IsTypeSupported returns whether t is supported by the vectorized engine.
func IsTypeSupported(t *types.T) bool {
	switch t.Family() {
	case types.BoolFamily, types.DecimalFamily:
		return true
	case types.BytesFamily, types.StringFamily:
		return true
	case types.IntFamily:
		switch t.Width() {
		case 16, 32, 64:
			return true
		}
		panic(fmt.Sprintf("integer with unknown width %d", t.Width()))
	case types.FloatFamily:
		return true
	}
	return false
}

// AreTypesSupported checks whether all types in typs are supported by the
// vectorized engine and returns an error if they are not.
func AreTypesSupported(typs []*types.T) error {
	for _, t := range typs {
		if !IsTypeSupported(t) {
			return errors.Errorf("unsupported type %s", t.String())
		}
	}
	return nil
}

// UnsafeFromGoType returns the type for a Go value, if applicable. Shouldn't
// be used at runtime. This method is unsafe because multiple logical types can
// be represented by the same physical type.
func UnsafeFromGoType(v interface{}) *types.T {
	switch t := v.(type) {
	case int16:
		return types.Int2
	case int32:
		return types.Int4
	case int, int64:
		return types.Int
	case bool:
		return types.Bool
	case float64:
		return types.Float
	case []byte:
		return types.Bytes
	case string:
		return types.String
	case apd.Decimal, *apd.Decimal:
		return types.Decimal
	default:
		panic(fmt.Sprintf("type %T not supported yet", t))
	}
}

// Comparable returns whether values of types a and b can be ordered against
// each other. Values of the same canonical family are comparable, and so are
// any two numeric values.
func Comparable(a, b *types.T) bool {
	fa, fb := CanonicalFamily(a), CanonicalFamily(b)
	if fa == types.UnknownFamily || fb == types.UnknownFamily {
		return false
	}
	return fa == fb || (fa.IsNumeric() && fb.IsNumeric())
}
