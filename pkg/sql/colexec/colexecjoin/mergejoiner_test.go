// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecjoin

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/testutils/colexectestutils"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

var (
	kv = coldata.Schema{{Name: "k", Type: types.Int}, {Name: "v", Type: types.String}}
	on = []*execinfrapb.JoinCondition{{LeftColumn: 0, RightColumn: 0}}
)

func setOutputBatchSize(t *testing.T, n int) {
	require.NoError(t, coldata.SetBatchSizeForTests(n))
	t.Cleanup(coldata.ResetBatchSizeForTests)
}

func newJoin(
	t *testing.T, typ execinfrapb.JoinType, conds []*execinfrapb.JoinCondition, left, right colexecop.Operator,
) *mergeJoinOp {
	op, err := NewMergeJoinOp(
		colexectestutils.NewTestAllocator(t),
		&execinfrapb.MergeJoinerSpec{Type: typ, Conditions: conds},
		left, right, nil /* stats */, nil, /* sink */
	)
	require.NoError(t, err)
	return op.(*mergeJoinOp)
}

// TestMergeJoinerInnerSingleMatch joins [(1,a),(2,b)] with [(1,x)].
func TestMergeJoinerInnerSingleMatch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left := colexectestutils.NewOpTestInput(kv, 4, colexectestutils.Tuples{{1, "a"}, {2, "b"}})
	right := colexectestutils.NewOpTestInput(kv, 4, colexectestutils.Tuples{{1, "x"}})
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	res, err := colexectestutils.RunOperator(context.Background(), m)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{{1, "a", 1, "x"}}, res.Tuples)
	require.Equal(t, []colexecop.Outcome{colexecop.OKNewSchema, colexecop.None}, res.Outcomes)
	require.Equal(t, noMoreData, m.status.outcome)
	require.Equal(t, 1, m.status.outPos)
}

// TestMergeJoinerLeftOuterWidensSchema is the left outer version of the test
// above; the right columns become nullable.
func TestMergeJoinerLeftOuterWidensSchema(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	left := colexectestutils.NewOpTestInput(kv, 4, colexectestutils.Tuples{{1, "a"}, {2, "b"}})
	right := colexectestutils.NewOpTestInput(kv, 4, colexectestutils.Tuples{{1, "x"}})
	m := newJoin(t, execinfrapb.JoinType_LEFT_OUTER, on, left, right)

	res, err := colexectestutils.RunOperator(context.Background(), m)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{
		{1, "a", 1, "x"},
		{2, "b", nil, nil},
	}, res.Tuples)
	require.Len(t, res.Schemas, 1)
	schema := res.Schemas[0]
	require.False(t, schema[0].Nullable)
	require.False(t, schema[1].Nullable)
	require.True(t, schema[2].Nullable)
	require.True(t, schema[3].Nullable)
}

func TestMergeJoinerEmptyInputsAnnounceSchema(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	for _, typ := range []execinfrapb.JoinType{
		execinfrapb.JoinType_INNER, execinfrapb.JoinType_FULL_OUTER,
	} {
		left := colexectestutils.NewOpTestInput(kv, 4, nil)
		right := colexectestutils.NewOpTestInput(kv, 4, colexectestutils.Tuples{{1, "x"}})
		m := newJoin(t, typ, on, left, right)
		res, err := colexectestutils.RunOperator(context.Background(), m)
		require.NoError(t, err)
		require.Equal(t, []colexecop.Outcome{colexecop.OKNewSchema, colexecop.None}, res.Outcomes, "%s", typ)
		if typ == execinfrapb.JoinType_INNER {
			require.Empty(t, res.Tuples)
		} else {
			colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{{nil, nil, 1, "x"}}, res.Tuples)
		}
	}
}

// TestMergeJoinerNotYetKeepsOutput checks that rows accumulated before an
// input asks to be retried are not lost.
func TestMergeJoinerNotYetKeepsOutput(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	setOutputBatchSize(t, 3)
	var lt, rt colexectestutils.Tuples
	var expected colexectestutils.Tuples
	for i := 0; i < 10; i++ {
		lt = append(lt, colexectestutils.Tuple{i, "l" + strconv.Itoa(i)})
		if i%2 == 0 {
			rt = append(rt, colexectestutils.Tuple{i, "r" + strconv.Itoa(i)})
			expected = append(expected, colexectestutils.Tuple{i, "l" + strconv.Itoa(i), i, "r" + strconv.Itoa(i)})
		}
	}
	left := colexectestutils.NewOpTestInput(kv, 1, lt, colexectestutils.WithNotYet())
	right := colexectestutils.NewOpTestInput(kv, 2, rt, colexectestutils.WithNotYet())
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	res, err := colexectestutils.RunOperator(context.Background(), m)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, expected, res.Tuples)
	require.Positive(t, res.NotYet)
	require.Len(t, res.Schemas, 1)
}

func TestMergeJoinerSchemaChange(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	nullable := kv.WithNullable(true)
	left := colexectestutils.NewOpTestInputWithSegments(2, []colexectestutils.Segment{
		{Schema: kv, Tuples: colexectestutils.Tuples{{1, "a"}, {2, "b"}}},
		{Schema: nullable, Tuples: colexectestutils.Tuples{{3, "c"}, {4, nil}}},
	})
	right := colexectestutils.NewOpTestInput(kv, 2, colexectestutils.Tuples{
		{1, "w"}, {2, "x"}, {3, "y"}, {4, "z"},
	})
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	res, err := colexectestutils.RunOperator(ctx, m)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{
		{1, "a", 1, "w"}, {2, "b", 2, "x"}, {3, "c", 3, "y"}, {4, nil, 4, "z"},
	}, res.Tuples)
	require.Equal(t, []colexecop.Outcome{
		colexecop.OKNewSchema, colexecop.OKNewSchema, colexecop.None,
	}, res.Outcomes)
	require.False(t, res.Schemas[0][1].Nullable)
	require.True(t, res.Schemas[1][1].Nullable)
}

func TestMergeJoinerIncompatibleSchemaChangeInGroup(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	intValues := coldata.Schema{{Name: "k", Type: types.Int}, {Name: "v", Type: types.Int}}
	left := colexectestutils.NewOpTestInput(kv, 2, colexectestutils.Tuples{{1, "a"}, {1, "b"}})
	right := colexectestutils.NewOpTestInputWithSegments(1, []colexectestutils.Segment{
		{Schema: kv, Tuples: colexectestutils.Tuples{{1, "x"}}},
		{Schema: intValues, Tuples: colexectestutils.Tuples{{1, 7}}},
	})
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)
	_, err := colexectestutils.RunOperator(context.Background(), m)
	require.True(t, execerror.IsUnsupportedConfigurationError(err), "%v", err)
}

func TestMergeJoinerFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	boom := errors.New("boom")
	rows := colexectestutils.Tuples{{1, "a"}, {2, "b"}, {3, "c"}}
	left := colexectestutils.NewOpTestInput(kv, 1, rows, colexectestutils.WithError(2, boom))
	right := colexectestutils.NewOpTestInput(kv, 1, rows)
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	_, err := colexectestutils.RunOperator(ctx, m)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, 1, left.Kills)
	require.Equal(t, 1, right.Kills)
	require.Empty(t, m.status.left.batches)
	require.Empty(t, m.status.right.batches)

	_, outcome, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.None, outcome)
}

func TestMergeJoinerKill(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	setOutputBatchSize(t, 1)
	rows := colexectestutils.Tuples{{1, "a"}, {1, "b"}, {1, "c"}}
	left := colexectestutils.NewOpTestInput(kv, 2, rows)
	right := colexectestutils.NewOpTestInput(kv, 2, rows)
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	require.NoError(t, m.Init(ctx))
	b, outcome, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OKNewSchema, outcome)
	require.Equal(t, 1, b.Length())
	require.NotEmpty(t, m.status.right.batches)

	m.Kill()
	require.Equal(t, 1, left.Kills)
	require.Equal(t, 1, right.Kills)
	_, outcome, err = m.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.None, outcome)
	require.Empty(t, m.status.left.batches)
	require.Empty(t, m.status.right.batches)
	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Close(ctx))
	require.Equal(t, 1, left.Closes)
	require.Equal(t, 1, right.Closes)
}

// TestMergeJoinerKillThenClose kills a join holding buffered batches and
// closes it without another Next, the way a fragment tears down.
func TestMergeJoinerKillThenClose(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	setOutputBatchSize(t, 1)
	rows := colexectestutils.Tuples{{1, "a"}, {1, "b"}, {1, "c"}}
	left := colexectestutils.NewOpTestInput(kv, 2, rows)
	right := colexectestutils.NewOpTestInput(kv, 2, rows)
	m := newJoin(t, execinfrapb.JoinType_INNER, on, left, right)

	require.NoError(t, m.Init(ctx))
	_, outcome, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OKNewSchema, outcome)
	require.NotEmpty(t, m.status.right.batches)

	m.Kill()
	require.NoError(t, m.Close(ctx))
	require.Empty(t, m.status.left.batches)
	require.Empty(t, m.status.right.batches)
	require.Nil(t, m.worker)
	require.Equal(t, 1, left.Closes)
	require.Equal(t, 1, right.Closes)
}

func TestMergeJoinerSetupErrors(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ints := coldata.Schema{{Name: "k", Type: types.Int}}
	strs := coldata.Schema{{Name: "k", Type: types.String}}
	newOp := func(conds []*execinfrapb.JoinCondition, l, r coldata.Schema) error {
		_, err := NewMergeJoinOp(
			colexectestutils.NewTestAllocator(t),
			&execinfrapb.MergeJoinerSpec{Conditions: conds},
			colexectestutils.NewOpTestInput(l, 1, nil),
			colexectestutils.NewOpTestInput(r, 1, nil),
			nil, nil,
		)
		return err
	}
	require.True(t, execerror.IsUnsupportedConfigurationError(newOp(nil, ints, ints)))
	require.True(t, execerror.IsComparisonError(newOp(on, ints, strs)))
	require.True(t, execerror.IsSetupError(newOp(
		[]*execinfrapb.JoinCondition{{LeftColumn: 3}}, ints, ints)))
}

func TestMergeJoinerStats(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	rows := colexectestutils.Tuples{{1, "a"}, {2, "b"}, {3, "c"}}
	sink := execstats.NewChannelSink(1)
	op, err := NewMergeJoinOp(
		colexectestutils.NewTestAllocator(t),
		&execinfrapb.MergeJoinerSpec{Type: execinfrapb.JoinType_INNER, Conditions: on},
		colexectestutils.NewOpTestInput(kv, 2, rows, colexectestutils.WithNotYet()),
		colexectestutils.NewOpTestInput(kv, 2, rows[1:]),
		nil, sink,
	)
	require.NoError(t, err)
	_, err = colexectestutils.RunOperator(context.Background(), op)
	require.NoError(t, err)

	cs := <-sink.C()
	require.Len(t, cs.Inputs, 2)
	require.Equal(t, uint64(3), cs.Inputs[0].NumTuples)
	require.Equal(t, uint64(2), cs.Inputs[1].NumTuples)
	require.Positive(t, cs.Inputs[0].NotYetCount)
	require.Zero(t, cs.Inputs[1].NotYetCount)
	require.Equal(t, uint64(2), cs.Output.NumTuples)
}

// TestMergeJoinerDataDriven runs the cases in testdata/merge_join. Every
// case is run twice: once as written, and once with inputs that return one
// row per batch and ask to be retried before every batch. Both runs must
// produce the same rows.
//
//	join type=<JoinType> on=(<left>=<right>,...) [not-distinct] [batch-size=N] [output-batch-size=N]
//	left
//	<schema>
//	<rows>
//	right
//	<schema>
//	<rows>
func TestMergeJoinerDataDriven(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	datadriven.RunTest(t, filepath.Join("testdata", "merge_join"), func(t *testing.T, d *datadriven.TestData) string {
		if d.Cmd != "join" {
			d.Fatalf(t, "unknown command %s", d.Cmd)
		}
		typ := execinfrapb.JoinType_INNER
		var conds []*execinfrapb.JoinCondition
		batchSize, outputBatchSize := 3, coldata.BatchSize()
		comparator := execinfrapb.Comparator_EQUALS
		for _, arg := range d.CmdArgs {
			switch arg.Key {
			case "type":
				v, ok := execinfrapb.JoinType_value[strings.ToUpper(arg.Vals[0])]
				if !ok {
					d.Fatalf(t, "unknown join type %s", arg.Vals[0])
				}
				typ = execinfrapb.JoinType(v)
			case "on":
				for _, val := range arg.Vals {
					var l, r uint32
					if _, err := fmt.Sscanf(val, "%d=%d", &l, &r); err != nil {
						d.Fatalf(t, "invalid condition %s: %v", val, err)
					}
					conds = append(conds, &execinfrapb.JoinCondition{LeftColumn: l, RightColumn: r})
				}
			case "not-distinct":
				comparator = execinfrapb.Comparator_IS_NOT_DISTINCT_FROM
			case "batch-size":
				d.ScanArgs(t, "batch-size", &batchSize)
			case "output-batch-size":
				d.ScanArgs(t, "output-batch-size", &outputBatchSize)
			}
		}
		for _, c := range conds {
			c.Comparator = comparator
		}
		leftSchema, leftRows, rightSchema, rightRows := parseJoinInput(t, d)

		run := func(batchSize int, opts ...colexectestutils.InputOption) (coldata.Schema, colexectestutils.Tuples) {
			require.NoError(t, coldata.SetBatchSizeForTests(outputBatchSize))
			defer coldata.ResetBatchSizeForTests()
			left := colexectestutils.NewOpTestInput(leftSchema, batchSize, leftRows, opts...)
			right := colexectestutils.NewOpTestInput(rightSchema, batchSize, rightRows, opts...)
			op, err := NewMergeJoinOp(
				colexectestutils.NewTestAllocator(t),
				&execinfrapb.MergeJoinerSpec{Type: typ, Conditions: conds},
				left, right, nil, nil,
			)
			if err != nil {
				d.Fatalf(t, "%v", err)
			}
			res, err := colexectestutils.RunOperator(context.Background(), op)
			if err != nil {
				d.Fatalf(t, "%v", err)
			}
			require.Len(t, res.Schemas, 1)
			return res.Schemas[0], res.Tuples
		}
		schema, tuples := run(batchSize)
		_, suspended := run(1, colexectestutils.WithNotYet())
		colexectestutils.AssertTuplesOrderedEqual(t, tuples, suspended)

		var sb strings.Builder
		sb.WriteString(schema.String())
		sb.WriteByte('\n')
		for _, tup := range tuples {
			sb.WriteString(tup.String())
			sb.WriteByte('\n')
		}
		return sb.String()
	})
}

func parseJoinInput(
	t *testing.T, d *datadriven.TestData,
) (leftSchema coldata.Schema, leftRows colexectestutils.Tuples, rightSchema coldata.Schema, rightRows colexectestutils.Tuples) {
	sections := map[string][]string{}
	var cur string
	for _, line := range strings.Split(d.Input, "\n") {
		switch line = strings.TrimSpace(line); line {
		case "left", "right":
			cur = line
		case "":
		default:
			if cur == "" {
				d.Fatalf(t, "row outside of a left or right section: %s", line)
			}
			sections[cur] = append(sections[cur], line)
		}
	}
	parse := func(lines []string) (coldata.Schema, colexectestutils.Tuples) {
		if len(lines) == 0 {
			d.Fatalf(t, "missing section")
		}
		schema, err := colexectestutils.ParseSchema(lines[0])
		if err != nil {
			d.Fatalf(t, "%v", err)
		}
		rows, err := colexectestutils.ParseTuples(schema, lines[1:])
		if err != nil {
			d.Fatalf(t, "%v", err)
		}
		return schema, rows
	}
	leftSchema, leftRows = parse(sections["left"])
	rightSchema, rightRows = parse(sections["right"])
	return leftSchema, leftRows, rightSchema, rightRows
}

// sortNullsLast sorts keys ascending with NULLs at the end.
func sortNullsLast(keys []*int64) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i] == nil || keys[j] == nil {
			return keys[j] == nil && keys[i] != nil
		}
		return *keys[i] < *keys[j]
	})
}

func keyTuples(keys []*int64, idBase int) colexectestutils.Tuples {
	res := make(colexectestutils.Tuples, len(keys))
	for i, k := range keys {
		var v interface{}
		if k != nil {
			v = *k
		}
		res[i] = colexectestutils.Tuple{v, idBase + i}
	}
	return res
}

// nestedLoopJoin is the reference implementation of the merge join.
func nestedLoopJoin(
	typ execinfrapb.JoinType, nullsEqual bool, left, right colexectestutils.Tuples,
) []string {
	match := func(a, b interface{}) bool {
		if a == nil || b == nil {
			return nullsEqual && a == nil && b == nil
		}
		return a.(int64) == b.(int64)
	}
	var res colexectestutils.Tuples
	rightMatched := make([]bool, len(right))
	for _, l := range left {
		matched := false
		for j, r := range right {
			if match(l[0], r[0]) {
				matched = true
				rightMatched[j] = true
				res = append(res, colexectestutils.Tuple{l[0], l[1], r[0], r[1]})
			}
		}
		if !matched && typ.EmitLeftUnmatched() {
			res = append(res, colexectestutils.Tuple{l[0], l[1], nil, nil})
		}
	}
	if typ.EmitRightUnmatched() {
		for j, r := range right {
			if !rightMatched[j] {
				res = append(res, colexectestutils.Tuple{nil, nil, r[0], r[1]})
			}
		}
	}
	s := res.Strings()
	sort.Strings(s)
	return s
}

// TestMergeJoinerMatchesNestedLoop compares the merge join against a nested
// loop join on random sorted inputs, for every join type and both NULL
// semantics.
func TestMergeJoinerMatchesNestedLoop(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	schema := coldata.Schema{
		{Name: "k", Type: types.Int, Nullable: true},
		{Name: "id", Type: types.Int},
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	keys := gen.SliceOf(gen.PtrOf(gen.Int64Range(0, 5)))
	properties.Property("merge join equals nested loop join", prop.ForAll(
		func(lk, rk []*int64, typ int, nullsEqual bool, batchSize, outBatchSize int) string {
			sortNullsLast(lk)
			sortNullsLast(rk)
			left, right := keyTuples(lk, 0), keyTuples(rk, 1000)
			comparator := execinfrapb.Comparator_EQUALS
			if nullsEqual {
				comparator = execinfrapb.Comparator_IS_NOT_DISTINCT_FROM
			}
			if err := coldata.SetBatchSizeForTests(outBatchSize); err != nil {
				return err.Error()
			}
			defer coldata.ResetBatchSizeForTests()
			op, err := NewMergeJoinOp(
				colexectestutils.NewTestAllocator(t),
				&execinfrapb.MergeJoinerSpec{
					Type:       execinfrapb.JoinType(typ),
					Conditions: []*execinfrapb.JoinCondition{{Comparator: comparator}},
				},
				colexectestutils.NewOpTestInput(schema, batchSize, left),
				colexectestutils.NewOpTestInput(schema, batchSize, right),
				nil, nil,
			)
			if err != nil {
				return err.Error()
			}
			res, err := colexectestutils.RunOperator(context.Background(), op)
			if err != nil {
				return err.Error()
			}
			actual := res.Tuples.Strings()
			sort.Strings(actual)
			expected := nestedLoopJoin(execinfrapb.JoinType(typ), nullsEqual, left, right)
			if strings.Join(actual, ",") != strings.Join(expected, ",") {
				return fmt.Sprintf("expected %v, got %v", expected, actual)
			}
			return ""
		},
		keys, keys, gen.IntRange(0, 3), gen.Bool(), gen.IntRange(1, 4), gen.IntRange(1, 5),
	))
	properties.TestingRun(t)
}
