// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan_test

import (
	"testing"

	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/physicalplan"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/stretchr/testify/require"
)

func makeScan(t *testing.T, name string, cols ...*execinfrapb.ColumnSpec) *physicalplan.Scan {
	t.Helper()
	s, err := physicalplan.NewScan(&execinfrapb.ScanSpec{TableName: name, Schema: cols}, physicalplan.OpProps{})
	require.NoError(t, err)
	return s
}

func leftRight(t *testing.T) (*physicalplan.Scan, *physicalplan.Scan) {
	left := makeScan(t, "l",
		&execinfrapb.ColumnSpec{Name: "k", Type: "INT8"},
		&execinfrapb.ColumnSpec{Name: "v", Type: "STRING"})
	right := makeScan(t, "r",
		&execinfrapb.ColumnSpec{Name: "k", Type: "INT4"},
		&execinfrapb.ColumnSpec{Name: "w", Type: "STRING"})
	return left, right
}

func TestScanProjection(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	spec := &execinfrapb.ScanSpec{
		TableName: "t",
		Schema: []*execinfrapb.ColumnSpec{
			{Name: "a", Type: "INT8"}, {Name: "b", Type: "FLOAT8"}, {Name: "c", Type: "BYTES", Nullable: true},
		},
		Columns: []string{"C", "a"},
	}
	s, err := physicalplan.NewScan(spec, physicalplan.OpProps{})
	require.NoError(t, err)
	require.Equal(t, []int{2, 0}, s.Projection)
	require.Equal(t, []string{"c", "a"}, s.Schema().Names())
	require.Equal(t, 0, physicalplan.NumChildren(s))

	spec.Columns = []string{"zz"}
	_, err = physicalplan.NewScan(spec, physicalplan.OpProps{})
	require.True(t, execerror.IsSetupError(err))

	spec.Columns = nil
	spec.PartitionColumns = []string{"day"}
	_, err = physicalplan.NewScan(spec, physicalplan.OpProps{})
	require.True(t, execerror.IsSetupError(err))
}

func TestWithChildrenArity(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	proj, err := physicalplan.NewProject(left, []int{1}, physicalplan.OpProps{})
	require.NoError(t, err)
	join, err := physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
		Conditions: []*execinfrapb.JoinCondition{{LeftColumn: 0, RightColumn: 0}},
	}, physicalplan.OpProps{})
	require.NoError(t, err)
	union, err := physicalplan.NewUnionAll([]physicalplan.PhysicalOperator{left, left, left}, physicalplan.OpProps{})
	require.NoError(t, err)

	for _, tc := range []struct {
		op    physicalplan.PhysicalOperator
		arity int
	}{
		{left, 0},
		{proj, 1},
		{join, 2},
		{union, 3},
	} {
		t.Run(tc.op.String(), func(t *testing.T) {
			require.Equal(t, tc.arity, physicalplan.NumChildren(tc.op))
			for _, n := range []int{tc.arity - 1, tc.arity + 1} {
				if n < 0 {
					continue
				}
				children := make([]physicalplan.PhysicalOperator, n)
				for i := range children {
					children[i] = left
				}
				_, err := tc.op.WithChildren(children)
				require.True(t, execerror.IsArityError(err), "%d children: %v", n, err)
			}
			children := make([]physicalplan.PhysicalOperator, tc.arity)
			for i := range children {
				children[i] = left
			}
			if tc.op == join {
				children[1] = right
			}
			op, err := tc.op.WithChildren(children)
			require.NoError(t, err)
			require.NotSame(t, tc.op, op)
			require.Equal(t, tc.op.Schema(), op.Schema())
		})
	}
}

func TestChildrenIsRestartable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	join, err := physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
		Conditions: []*execinfrapb.JoinCondition{{}},
	}, physicalplan.OpProps{})
	require.NoError(t, err)
	collect := func() []physicalplan.PhysicalOperator {
		var res []physicalplan.PhysicalOperator
		for c := range join.Children() {
			res = append(res, c)
		}
		return res
	}
	first := collect()
	require.Equal(t, []physicalplan.PhysicalOperator{left, right}, first)
	require.Equal(t, first, collect())

	// Stopping early must not affect later iterations.
	for c := range join.Children() {
		require.Same(t, left, c)
		break
	}
	require.Equal(t, first, collect())
}

func TestSingleInputWithChild(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	limit, err := physicalplan.NewLimit(left, 1, 10, physicalplan.OpProps{OperatorID: 4})
	require.NoError(t, err)
	op, err := limit.WithChildren([]physicalplan.PhysicalOperator{right})
	require.NoError(t, err)
	newLimit := op.(*physicalplan.Limit)
	require.Same(t, right, newLimit.Input())
	require.Equal(t, int64(10), newLimit.Count)
	require.Equal(t, int32(4), newLimit.Props().OperatorID)
	require.Equal(t, right.Schema(), newLimit.Schema())
	// The original is unchanged.
	require.Same(t, left, limit.Input())

	// A projection that no longer fits the new child is rejected.
	proj, err := physicalplan.NewProject(left, []int{1}, physicalplan.OpProps{})
	require.NoError(t, err)
	narrow := makeScan(t, "n", &execinfrapb.ColumnSpec{Name: "x", Type: "INT8"})
	_, err = proj.WithChildren([]physicalplan.PhysicalOperator{narrow})
	require.True(t, execerror.IsSetupError(err))
}

func TestMergeJoinSchemaWidening(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	for _, tc := range []struct {
		typ                       execinfrapb.JoinType
		leftNullable, rightNullable bool
	}{
		{execinfrapb.JoinType_INNER, false, false},
		{execinfrapb.JoinType_LEFT_OUTER, false, true},
		{execinfrapb.JoinType_RIGHT_OUTER, true, false},
		{execinfrapb.JoinType_FULL_OUTER, true, true},
	} {
		t.Run(tc.typ.String(), func(t *testing.T) {
			j, err := physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
				Type:       tc.typ,
				Conditions: []*execinfrapb.JoinCondition{{LeftColumn: 0, RightColumn: 0}},
			}, physicalplan.OpProps{})
			require.NoError(t, err)
			s := j.Schema()
			require.Equal(t, []string{"k", "v", "k", "w"}, s.Names())
			require.Equal(t, tc.leftNullable, s[0].Nullable)
			require.Equal(t, tc.leftNullable, s[1].Nullable)
			require.Equal(t, tc.rightNullable, s[2].Nullable)
			require.Equal(t, tc.rightNullable, s[3].Nullable)
		})
	}
	// The input schemas are not modified.
	require.False(t, right.Schema()[1].Nullable)
}

func TestMergeJoinValidation(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	_, err := physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{}, physicalplan.OpProps{})
	require.True(t, execerror.IsUnsupportedConfigurationError(err))

	_, err = physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
		Conditions: []*execinfrapb.JoinCondition{{LeftColumn: 0, RightColumn: 1}},
	}, physicalplan.OpProps{})
	require.True(t, execerror.IsComparisonError(err))

	_, err = physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
		Conditions: []*execinfrapb.JoinCondition{{LeftColumn: 5, RightColumn: 0}},
	}, physicalplan.OpProps{})
	require.True(t, execerror.IsSetupError(err))
}

func TestUnionAllNullability(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	a := makeScan(t, "a", &execinfrapb.ColumnSpec{Name: "x", Type: "INT8"}, &execinfrapb.ColumnSpec{Name: "y", Type: "STRING"})
	b := makeScan(t, "b", &execinfrapb.ColumnSpec{Name: "x", Type: "INT4", Nullable: true}, &execinfrapb.ColumnSpec{Name: "y", Type: "BYTES"})
	u, err := physicalplan.NewUnionAll([]physicalplan.PhysicalOperator{a, b}, physicalplan.OpProps{})
	require.NoError(t, err)
	require.True(t, u.Schema()[0].Nullable)
	require.False(t, u.Schema()[1].Nullable)
	require.Equal(t, types.Int, u.Schema()[0].Type)

	c := makeScan(t, "c", &execinfrapb.ColumnSpec{Name: "x", Type: "FLOAT8"}, &execinfrapb.ColumnSpec{Name: "y", Type: "STRING"})
	_, err = physicalplan.NewUnionAll([]physicalplan.PhysicalOperator{a, c}, physicalplan.OpProps{})
	require.True(t, execerror.IsSetupError(err))
	d := makeScan(t, "d", &execinfrapb.ColumnSpec{Name: "x", Type: "INT8"})
	_, err = physicalplan.NewUnionAll([]physicalplan.PhysicalOperator{a, d}, physicalplan.OpProps{})
	require.True(t, execerror.IsSetupError(err))
}

func TestWalkFormatReplace(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left, right := leftRight(t)
	join, err := physicalplan.NewMergeJoin(left, right, execinfrapb.MergeJoinerSpec{
		Type:       execinfrapb.JoinType_LEFT_OUTER,
		Conditions: []*execinfrapb.JoinCondition{{LeftColumn: 0, RightColumn: 0}},
	}, physicalplan.OpProps{})
	require.NoError(t, err)
	proj, err := physicalplan.NewProject(join, []int{0, 3}, physicalplan.OpProps{})
	require.NoError(t, err)

	require.Equal(t, `project [0 3] (k INT8 NOT NULL, w STRING)
└── merge join (left_outer) on @0 = @0 (k INT8 NOT NULL, v STRING NOT NULL, k INT4, w STRING)
  └── scan l (k INT8 NOT NULL, v STRING NOT NULL)
  └── scan r (k INT4 NOT NULL, w STRING NOT NULL)
`, physicalplan.Format(proj))

	var visited []string
	require.NoError(t, physicalplan.Walk(proj, func(op physicalplan.PhysicalOperator, _ int) error {
		visited = append(visited, op.String())
		if _, ok := op.(*physicalplan.MergeJoin); ok {
			return physicalplan.ErrSkipChildren
		}
		return nil
	}))
	require.Len(t, visited, 2)

	// Replacing the right scan rebuilds every ancestor.
	other := makeScan(t, "r2",
		&execinfrapb.ColumnSpec{Name: "k", Type: "INT8"},
		&execinfrapb.ColumnSpec{Name: "w", Type: "STRING", Nullable: true})
	res, err := physicalplan.Replace(proj, func(op physicalplan.PhysicalOperator) (physicalplan.PhysicalOperator, error) {
		if op == physicalplan.PhysicalOperator(right) {
			return other, nil
		}
		return nil, nil
	})
	require.NoError(t, err)
	require.NotSame(t, proj, res)
	newJoin := res.(*physicalplan.Project).Input().(*physicalplan.MergeJoin)
	require.Same(t, other, newJoin.Right)
	require.Same(t, left, newJoin.Left)
	require.Equal(t, types.Int, res.Schema()[0].Type)
}

func TestScanSpecPool(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	s := physicalplan.NewScanSpec("t")
	s.Columns = append(s.Columns, "a")
	physicalplan.ReleaseScanSpec(s)
	s = physicalplan.NewScanSpec("u")
	require.Equal(t, "u", s.TableName)
	require.Empty(t, s.Columns)
}
