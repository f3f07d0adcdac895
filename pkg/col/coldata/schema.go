// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package coldata

import (
	"strings"

	"github.com/cockroachdb/vexec/pkg/sql/types"
)

// Field describes a single column of a batch.
type Field struct {
	Name     string
	Type     *types.T
	Nullable bool
}

func (f Field) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte(' ')
	b.WriteString(f.Type.SQLString())
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// Schema is the ordered list of columns of a batch. A Schema is treated as
// immutable once it has been handed to an operator; the With* methods return
// modified copies.
type Schema []Field

// Types returns the column types in order.
func (s Schema) Types() []*types.T {
	typs := make([]*types.T, len(s))
	for i := range s {
		typs[i] = s[i].Type
	}
	return typs
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i := range s {
		names[i] = s[i].Name
	}
	return names
}

// ColumnIndex returns the ordinal of the first column with the given name, or
// -1 if there is none. Names are matched case-insensitively.
func (s Schema) ColumnIndex(name string) int {
	for i := range s {
		if strings.EqualFold(s[i].Name, name) {
			return i
		}
	}
	return -1
}

// Equals returns whether both schemas have the same names, identical types
// and the same nullability in the same order.
func (s Schema) Equals(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Name != other[i].Name || s[i].Nullable != other[i].Nullable ||
			!s[i].Type.Identical(other[i].Type) {
			return false
		}
	}
	return true
}

// WithNullable returns a copy of the schema in which every column is nullable
// if nullable is true. When nullable is false, the copy keeps the original
// nullability.
func (s Schema) WithNullable(nullable bool) Schema {
	res := make(Schema, len(s))
	copy(res, s)
	if nullable {
		for i := range res {
			res[i].Nullable = true
		}
	}
	return res
}

// Concat returns a new schema with the columns of s followed by those of
// other.
func (s Schema) Concat(other Schema) Schema {
	res := make(Schema, 0, len(s)+len(other))
	res = append(res, s...)
	return append(res, other...)
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i := range s {
		parts[i] = s[i].String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
