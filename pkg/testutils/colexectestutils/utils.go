// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colexectestutils contains helpers for testing columnar operators:
// tuple literals, inputs that replay tuples in batches and drivers that run
// operators to completion.
package colexectestutils

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/mon"
	"github.com/stretchr/testify/require"
)

// Tuple represents a row with any-type columns. NULL is nil, decimals are
// strings.
type Tuple []interface{}

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range t {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch v := t[i].(type) {
		case nil:
			sb.WriteString("NULL")
		case string:
			sb.WriteString("'" + v + "'")
		case []byte:
			fmt.Fprintf(&sb, "%q", v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Tuples represents a table with any-type columns.
type Tuples []Tuple

func (t Tuples) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range t {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t[i].String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Strings returns the string form of every tuple.
func (t Tuples) Strings() []string {
	res := make([]string, len(t))
	for i := range t {
		res[i] = t[i].String()
	}
	return res
}

// TuplesFromBatch extracts the rows of a batch.
func TuplesFromBatch(b coldata.Batch) Tuples {
	res := make(Tuples, b.Length())
	for i := range res {
		res[i] = make(Tuple, b.Width())
		for j := range res[i] {
			res[i][j] = b.ColVec(j).Get(i)
		}
	}
	return res
}

// ParseTuples parses rows of comma-separated values according to schema.
// NULL denotes a null value, and strings may be quoted with single quotes.
func ParseTuples(schema coldata.Schema, lines []string) (Tuples, error) {
	var res Tuples
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != len(schema) {
			return nil, errors.Newf("row %q has %d values, expected %d", line, len(fields), len(schema))
		}
		tup := make(Tuple, len(fields))
		for i, f := range fields {
			v, err := parseValue(schema[i].Type, strings.TrimSpace(f))
			if err != nil {
				return nil, errors.Wrapf(err, "row %q", line)
			}
			tup[i] = v
		}
		res = append(res, tup)
	}
	return res, nil
}

func parseValue(t *types.T, s string) (interface{}, error) {
	if strings.EqualFold(s, "NULL") {
		return nil, nil
	}
	switch t.Family() {
	case types.BoolFamily:
		return strconv.ParseBool(s)
	case types.IntFamily:
		return strconv.ParseInt(s, 10, 64)
	case types.FloatFamily:
		return strconv.ParseFloat(s, 64)
	case types.DecimalFamily:
		return s, nil
	case types.BytesFamily:
		return []byte(strings.Trim(s, "'")), nil
	case types.StringFamily:
		return strings.Trim(s, "'"), nil
	}
	return nil, errors.Newf("unsupported type %s", t)
}

// ParseSchema parses a schema of the form "name TYPE [NULL], ...".
func ParseSchema(s string) (coldata.Schema, error) {
	var res coldata.Schema
	for _, col := range strings.Split(s, ",") {
		parts := strings.Fields(col)
		if len(parts) < 2 || len(parts) > 3 {
			return nil, errors.Newf("invalid column %q", col)
		}
		t, err := types.FromName(parts[1])
		if err != nil {
			return nil, err
		}
		f := coldata.Field{Name: parts[0], Type: t}
		if len(parts) == 3 {
			if !strings.EqualFold(parts[2], "NULL") {
				return nil, errors.Newf("invalid column %q", col)
			}
			f.Nullable = true
		}
		res = append(res, f)
	}
	return res, nil
}

// AssertTuplesOrderedEqual asserts that both sets of tuples are equal,
// including their order.
func AssertTuplesOrderedEqual(t testing.TB, expected, actual Tuples) {
	t.Helper()
	require.Equal(t, expected.Strings(), actual.Strings())
}

// AssertTuplesSetEqual asserts that both sets of tuples are equal, ignoring
// their order.
func AssertTuplesSetEqual(t testing.TB, expected, actual Tuples) {
	t.Helper()
	e, a := expected.Strings(), actual.Strings()
	sort.Strings(e)
	sort.Strings(a)
	require.Equal(t, e, a)
}

// NewTestMonitor returns an unlimited monitor that fails the test if any
// memory is still accounted for at the end of the test.
func NewTestMonitor(t testing.TB) *mon.BytesMonitor {
	m := mon.NewMonitor("test", 0)
	t.Cleanup(func() {
		if used := m.AllocBytes(); used != 0 {
			t.Errorf("%d bytes still allocated at the end of the test", used)
		}
	})
	return m
}

// NewTestAllocator returns an allocator on an unlimited monitor. The
// allocator is closed at the end of the test.
func NewTestAllocator(t testing.TB) *colmem.Allocator {
	m := NewTestMonitor(t)
	a := colmem.NewAllocator(context.Background(), m)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

// Result is the output of an operator run to completion.
type Result struct {
	Tuples Tuples
	// Outcomes lists the outcomes of every Next call, NotYet included.
	Outcomes []colexecop.Outcome
	// Schemas lists every schema announced with OKNewSchema.
	Schemas []coldata.Schema
	// NotYet is the number of NotYet outcomes.
	NotYet int
}

// RunOperator initializes op and calls Next until it returns None or an
// error. NotYet outcomes are retried immediately. The operator is closed
// before returning.
func RunOperator(ctx context.Context, op colexecop.Operator) (res Result, retErr error) {
	defer func() {
		retErr = errors.CombineErrors(retErr, op.Close(ctx))
	}()
	if err := op.Init(ctx); err != nil {
		return res, err
	}
	for i := 0; ; i++ {
		if i > 1<<20 {
			return res, errors.AssertionFailedf("operator did not finish after %d calls", i)
		}
		b, outcome, err := op.Next()
		if err != nil {
			return res, err
		}
		res.Outcomes = append(res.Outcomes, outcome)
		switch outcome {
		case colexecop.None:
			return res, nil
		case colexecop.NotYet:
			res.NotYet++
			continue
		case colexecop.OKNewSchema:
			res.Schemas = append(res.Schemas, op.Schema())
		}
		res.Tuples = append(res.Tuples, TuplesFromBatch(b)...)
	}
}
