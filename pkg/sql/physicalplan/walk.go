// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrSkipChildren can be returned by a Walk callback to skip the children of
// the current operator.
var ErrSkipChildren = errors.New("skip children")

// Walk calls fn on op and then on its descendants, depth first and in child
// order. Walk stops at the first error other than ErrSkipChildren.
func Walk(op PhysicalOperator, fn func(op PhysicalOperator, depth int) error) error {
	return walk(op, 0, fn)
}

func walk(op PhysicalOperator, depth int, fn func(PhysicalOperator, int) error) error {
	if err := fn(op, depth); err != nil {
		if errors.Is(err, ErrSkipChildren) {
			return nil
		}
		return err
	}
	for child := range op.Children() {
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Format renders the tree rooted at op, one operator per line, with
// children indented below their parent.
func Format(op PhysicalOperator) string {
	var b strings.Builder
	_ = Walk(op, func(op PhysicalOperator, depth int) error {
		if depth > 0 {
			b.WriteString(strings.Repeat("  ", depth-1))
			b.WriteString("└── ")
		}
		b.WriteString(op.String())
		b.WriteByte(' ')
		b.WriteString(op.Schema().String())
		b.WriteByte('\n')
		return nil
	})
	return b.String()
}

// Replace rebuilds the tree rooted at op bottom-up, substituting every
// operator for which fn returns a non-nil replacement.
func Replace(
	op PhysicalOperator, fn func(PhysicalOperator) (PhysicalOperator, error),
) (PhysicalOperator, error) {
	var children []PhysicalOperator
	changed := false
	for child := range op.Children() {
		newChild, err := Replace(child, fn)
		if err != nil {
			return nil, err
		}
		changed = changed || newChild != child
		children = append(children, newChild)
	}
	if changed {
		var err error
		if op, err = op.WithChildren(children); err != nil {
			return nil, err
		}
	}
	repl, err := fn(op)
	if err != nil {
		return nil, err
	}
	if repl != nil {
		return repl, nil
	}
	return op, nil
}
