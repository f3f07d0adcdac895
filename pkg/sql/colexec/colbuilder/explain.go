// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colbuilder

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
)

// ExplainVec renders the operator tree rooted at op, one operator per line,
// using the Go type of every operator. An operator reachable from more than
// one parent is expanded only the first time.
func ExplainVec(op execinfra.OpNode) []string {
	var rows []string
	seenOps := make(map[execinfra.OpNode]struct{})
	var format func(op execinfra.OpNode, depth int)
	format = func(op execinfra.OpNode, depth int) {
		var b strings.Builder
		if depth > 0 {
			b.WriteString(strings.Repeat("  ", depth-1))
			b.WriteString("└── ")
		}
		b.WriteString(reflect.TypeOf(op).String())
		rows = append(rows, b.String())
		if _, seen := seenOps[op]; seen {
			return
		}
		seenOps[op] = struct{}{}
		for i := 0; i < op.ChildCount(true /* verbose */); i++ {
			format(op.Child(i, true /* verbose */), depth+1)
		}
	}
	format(op, 0)
	return rows
}
