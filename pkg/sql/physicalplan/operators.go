// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
)

// Scan reads a table. It has no children.
type Scan struct {
	Spec *execinfrapb.ScanSpec

	// Projection maps each output column to its ordinal in the table schema.
	Projection  []int
	TableSchema coldata.Schema
	schema      coldata.Schema
	props       OpProps
}

var _ PhysicalOperator = &Scan{}

// NewScan returns a scan over the table described by spec. An empty column
// list in the spec projects every column.
func NewScan(spec *execinfrapb.ScanSpec, props OpProps) (*Scan, error) {
	tableSchema, err := spec.TableSchema()
	if err != nil {
		return nil, execerror.NewSetupError(err, "resolving scan schema", "table "+spec.TableName)
	}
	s := &Scan{Spec: spec, TableSchema: tableSchema, props: props}
	if len(spec.Columns) == 0 {
		s.Projection = make([]int, len(tableSchema))
		for i := range s.Projection {
			s.Projection[i] = i
		}
	} else {
		for _, name := range spec.Columns {
			idx := tableSchema.ColumnIndex(name)
			if idx < 0 {
				return nil, execerror.NewSetupErrorf("column %q not found in table %q", name, spec.TableName)
			}
			s.Projection = append(s.Projection, idx)
		}
	}
	for _, name := range spec.PartitionColumns {
		if tableSchema.ColumnIndex(name) < 0 {
			return nil, execerror.NewSetupErrorf("partition column %q not found in table %q", name, spec.TableName)
		}
	}
	s.schema = make(coldata.Schema, len(s.Projection))
	for i, idx := range s.Projection {
		s.schema[i] = tableSchema[idx]
	}
	return s, nil
}

// Children implements the PhysicalOperator interface.
func (s *Scan) Children() iter.Seq[PhysicalOperator] { return noChildren }

// WithChildren implements the PhysicalOperator interface.
func (s *Scan) WithChildren(children []PhysicalOperator) (PhysicalOperator, error) {
	if len(children) != 0 {
		return nil, NewArityError(s, 0, len(children))
	}
	c := *s
	return &c, nil
}

// Schema implements the PhysicalOperator interface.
func (s *Scan) Schema() coldata.Schema { return s.schema }

// Props implements the PhysicalOperator interface.
func (s *Scan) Props() OpProps { return s.props }

func (s *Scan) String() string {
	return fmt.Sprintf("scan %s", s.Spec.TableName)
}

// Project keeps a subset of the columns of its input, in the given order.
type Project struct {
	SingleInput
	Columns []int
	schema  coldata.Schema
}

var _ PhysicalOperator = &Project{}

// NewProject returns a projection of input.
func NewProject(input PhysicalOperator, columns []int, props OpProps) (*Project, error) {
	inSchema := input.Schema()
	schema := make(coldata.Schema, len(columns))
	for i, c := range columns {
		if c < 0 || c >= len(inSchema) {
			return nil, execerror.NewSetupErrorf("projection column %d out of range [0, %d)", c, len(inSchema))
		}
		schema[i] = inSchema[c]
	}
	return &Project{
		SingleInput: SingleInput{input: input, props: props},
		Columns:     slices.Clone(columns),
		schema:      schema,
	}, nil
}

// WithChildren implements the PhysicalOperator interface.
func (p *Project) WithChildren(children []PhysicalOperator) (PhysicalOperator, error) {
	return withSingleChild(p, children)
}

func (p *Project) withChild(child PhysicalOperator) (PhysicalOperator, error) {
	return NewProject(child, p.Columns, p.props)
}

// Schema implements the PhysicalOperator interface.
func (p *Project) Schema() coldata.Schema { return p.schema }

func (p *Project) String() string {
	return fmt.Sprintf("project %v", p.Columns)
}

// Limit skips Offset rows of its input and then emits at most Count rows.
type Limit struct {
	SingleInput
	Offset, Count int64
}

var _ PhysicalOperator = &Limit{}

// NewLimit returns a limit over input.
func NewLimit(input PhysicalOperator, offset, count int64, props OpProps) (*Limit, error) {
	if offset < 0 || count < 0 {
		return nil, execerror.NewSetupErrorf("invalid limit %d offset %d", count, offset)
	}
	return &Limit{SingleInput: SingleInput{input: input, props: props}, Offset: offset, Count: count}, nil
}

// WithChildren implements the PhysicalOperator interface.
func (l *Limit) WithChildren(children []PhysicalOperator) (PhysicalOperator, error) {
	return withSingleChild(l, children)
}

func (l *Limit) withChild(child PhysicalOperator) (PhysicalOperator, error) {
	return NewLimit(child, l.Offset, l.Count, l.props)
}

// Schema implements the PhysicalOperator interface.
func (l *Limit) Schema() coldata.Schema { return l.input.Schema() }

func (l *Limit) String() string {
	if l.Offset > 0 {
		return fmt.Sprintf("limit %d offset %d", l.Count, l.Offset)
	}
	return fmt.Sprintf("limit %d", l.Count)
}

// MergeJoin joins two inputs sorted on their key columns.
type MergeJoin struct {
	Left, Right PhysicalOperator
	Spec        execinfrapb.MergeJoinerSpec
	schema      coldata.Schema
	props       OpProps
}

var _ PhysicalOperator = &MergeJoin{}

// NewMergeJoin returns a merge join of left and right. At least one join
// condition is required, and the key columns of every condition must be
// comparable.
func NewMergeJoin(
	left, right PhysicalOperator, spec execinfrapb.MergeJoinerSpec, props OpProps,
) (*MergeJoin, error) {
	if len(spec.Conditions) == 0 {
		return nil, execerror.NewUnsupportedConfigurationErrorf("merge join without join conditions")
	}
	ls, rs := left.Schema(), right.Schema()
	for _, c := range spec.Conditions {
		if int(c.LeftColumn) >= len(ls) || int(c.RightColumn) >= len(rs) {
			return nil, execerror.NewSetupErrorf(
				"join condition on columns %d and %d out of range", c.LeftColumn, c.RightColumn)
		}
		lt, rt := ls[c.LeftColumn].Type, rs[c.RightColumn].Type
		if !typeconv.Comparable(lt, rt) {
			return nil, execerror.NewComparisonErrorf("cannot compare %s with %s", lt, rt)
		}
	}
	return &MergeJoin{
		Left:   left,
		Right:  right,
		Spec:   spec,
		schema: spec.Type.OutputSchema(ls, rs),
		props:  props,
	}, nil
}

// Children implements the PhysicalOperator interface.
func (j *MergeJoin) Children() iter.Seq[PhysicalOperator] {
	return func(yield func(PhysicalOperator) bool) {
		if !yield(j.Left) {
			return
		}
		yield(j.Right)
	}
}

// WithChildren implements the PhysicalOperator interface.
func (j *MergeJoin) WithChildren(children []PhysicalOperator) (PhysicalOperator, error) {
	if len(children) != 2 {
		return nil, NewArityError(j, 2, len(children))
	}
	return NewMergeJoin(children[0], children[1], j.Spec, j.props)
}

// Schema implements the PhysicalOperator interface.
func (j *MergeJoin) Schema() coldata.Schema { return j.schema }

// Props implements the PhysicalOperator interface.
func (j *MergeJoin) Props() OpProps { return j.props }

func (j *MergeJoin) String() string {
	conds := make([]string, len(j.Spec.Conditions))
	for i, c := range j.Spec.Conditions {
		op := "="
		if c.Comparator == execinfrapb.Comparator_IS_NOT_DISTINCT_FROM {
			op = "IS NOT DISTINCT FROM"
		}
		conds[i] = fmt.Sprintf("@%d %s @%d", c.LeftColumn, op, c.RightColumn)
	}
	return fmt.Sprintf("merge join (%s) on %s", strings.ToLower(j.Spec.Type.String()), strings.Join(conds, " AND "))
}

// UnionAll concatenates its inputs. The number of inputs is fixed at
// construction.
type UnionAll struct {
	Inputs []PhysicalOperator
	schema coldata.Schema
	props  OpProps
}

var _ PhysicalOperator = &UnionAll{}

// NewUnionAll returns the concatenation of inputs. All inputs must have the
// same number of columns with the same physical types; an output column is
// nullable if it is nullable in any input.
func NewUnionAll(inputs []PhysicalOperator, props OpProps) (*UnionAll, error) {
	if len(inputs) == 0 {
		return nil, execerror.NewSetupErrorf("union all without inputs")
	}
	schema := slices.Clone(inputs[0].Schema())
	for i, in := range inputs[1:] {
		s := in.Schema()
		if len(s) != len(schema) {
			return nil, execerror.NewSetupErrorf(
				"union all input %d has %d columns, expected %d", i+1, len(s), len(schema))
		}
		for c := range s {
			if typeconv.CanonicalFamily(s[c].Type) != typeconv.CanonicalFamily(schema[c].Type) {
				return nil, execerror.NewSetupError(
					errors.Newf("column %d: %s is incompatible with %s", c, s[c].Type, schema[c].Type),
					"union all input types mismatch")
			}
			schema[c].Nullable = schema[c].Nullable || s[c].Nullable
		}
	}
	return &UnionAll{Inputs: slices.Clone(inputs), schema: schema, props: props}, nil
}

// Children implements the PhysicalOperator interface.
func (u *UnionAll) Children() iter.Seq[PhysicalOperator] {
	return func(yield func(PhysicalOperator) bool) {
		for _, in := range u.Inputs {
			if !yield(in) {
				return
			}
		}
	}
}

// WithChildren implements the PhysicalOperator interface.
func (u *UnionAll) WithChildren(children []PhysicalOperator) (PhysicalOperator, error) {
	if len(children) != len(u.Inputs) {
		return nil, NewArityError(u, len(u.Inputs), len(children))
	}
	return NewUnionAll(children, u.props)
}

// Schema implements the PhysicalOperator interface.
func (u *UnionAll) Schema() coldata.Schema { return u.schema }

// Props implements the PhysicalOperator interface.
func (u *UnionAll) Props() OpProps { return u.props }

func (u *UnionAll) String() string {
	return fmt.Sprintf("union all (%d inputs)", len(u.Inputs))
}
