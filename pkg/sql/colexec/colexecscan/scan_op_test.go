// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/testutils/colexectestutils"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/stretchr/testify/require"
)

func newScanOp(
	t *testing.T, spec *execinfrapb.ScanSpec, rlog *readerLog, rows int, sink execstats.Sink,
) *colexecscan.ScanOp {
	c := newCreator(t, spec, fakeRegistry(rlog, rows))
	return colexecscan.NewScanOp(c, colexectestutils.NewTestAllocator(t), nil /* stats */, sink)
}

func TestScanOpPartitionValuesAndFilter(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	rlog := newReaderLog()
	spec := makeSpec(t, &execinfrapb.TableXattr{}, makeSplits(1, 3)...)
	spec.Filter = &execinfrapb.ScanFilter{Conditions: []*execinfrapb.FilterCondition{
		{Column: "k", Op: execinfrapb.FilterOp_GE, Value: "1"},
	}}
	sink := execstats.NewChannelSink(1)
	op := newScanOp(t, spec, rlog, 3, sink)
	op.AddSplits(nil, true /* noMore */)

	res, err := colexectestutils.RunOperator(ctx, op)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{
		{1, 1, "p1"}, {1, 2, "p1"},
		{2, 1, "p0"}, {2, 2, "p0"},
		{3, 1, nil}, {3, 2, nil},
	}, res.Tuples)
	require.Equal(t, colexecop.OKNewSchema, res.Outcomes[0])
	require.Len(t, res.Schemas, 1)
	require.Equal(t, []string{"id", "k", "p"}, res.Schemas[0].Names())

	stats := <-sink.C()
	require.Equal(t, uint64(3), stats.Scan.NumReaders)
	require.Equal(t, uint64(3), stats.Scan.NumSplits)
	require.Equal(t, uint64(3), stats.Scan.RowsFiltered)
	require.Equal(t, uint64(6), stats.Output.NumTuples)
	require.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, rlog.closes)
}

func TestScanOpProjection(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	rlog := newReaderLog()
	spec := makeSpec(t, &execinfrapb.TableXattr{}, makeSplits(4, 1)...)
	spec.Columns = []string{"p", "k"}
	op := newScanOp(t, spec, rlog, 2, nil)
	op.AddSplits(nil, true)

	res, err := colexectestutils.RunOperator(context.Background(), op)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{
		{"p0", 0}, {"p0", 1},
	}, res.Tuples)
}

func TestScanOpNoSplits(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	op := newScanOp(t, makeSpec(t, &execinfrapb.TableXattr{}), newReaderLog(), 1, nil)
	op.AddSplits(nil, true)
	res, err := colexectestutils.RunOperator(context.Background(), op)
	require.NoError(t, err)
	require.Empty(t, res.Tuples)
	require.Equal(t, []colexecop.Outcome{colexecop.OKNewSchema, colexecop.None}, res.Outcomes)
}

func TestScanOpNotYetUntilLastSplit(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	rlog := newReaderLog()
	op := newScanOp(t, makeSpec(t, &execinfrapb.TableXattr{}, makeSplits(1, 1)...), rlog, 1, nil)
	require.NoError(t, op.Init(ctx))

	_, outcome, err := op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.NotYet, outcome)

	op.AddSplits(makeSplits(2, 1), false /* noMore */)
	b, outcome, err := op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OKNewSchema, outcome)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{{1, 0, "p1"}},
		colexectestutils.TuplesFromBatch(b))

	_, outcome, err = op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.NotYet, outcome)

	op.AddSplits(nil, true /* noMore */)
	b, outcome, err = op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OK, outcome)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{{2, 0, "p0"}},
		colexectestutils.TuplesFromBatch(b))

	_, outcome, err = op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.None, outcome)
	require.Equal(t, int64(2), op.Stats().GetLongStat(execstats.NotYetCount))
	require.NoError(t, op.Close(ctx))
}

func TestScanOpRuntimeFilterMidStream(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	rlog := newReaderLog()
	op := newScanOp(t, makeSpec(t, &execinfrapb.TableXattr{}, makeSplits(1, 2)...), rlog, 6, nil)
	op.AddSplits(nil, true)
	require.NoError(t, op.Init(ctx))

	b, outcome, err := op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OKNewSchema, outcome)
	require.Equal(t, 4, b.Length())

	f := intFilter(t, "k", 5)
	op.AddRuntimeFilter(f)
	op.AddRuntimeFilter(f)

	var rest colexectestutils.Tuples
	for {
		b, outcome, err = op.Next()
		require.NoError(t, err)
		if outcome == colexecop.None {
			break
		}
		require.Equal(t, colexecop.OK, outcome)
		rest = append(rest, colexectestutils.TuplesFromBatch(b)...)
	}
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{
		{1, 5, "p1"}, {2, 5, "p0"},
	}, rest)
	require.NoError(t, op.Close(ctx))
	require.Equal(t, int64(2), op.Stats().GetLongStat(execstats.ScanRuntimeFilters))
	require.Equal(t, int64(1+5), op.Stats().GetLongStat(execstats.ScanRowsFiltered))
	require.Len(t, rlog.filters[1], 1)
	require.Len(t, rlog.filters[2], 1)
}

// TestScanOpRuntimeFilterBeforeSplits hands a filter to a scan that is still
// waiting for its first split.
func TestScanOpRuntimeFilterBeforeSplits(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	rlog := newReaderLog()
	op := newScanOp(t, makeSpec(t, &execinfrapb.TableXattr{}), rlog, 6, nil)
	require.NoError(t, op.Init(ctx))

	_, outcome, err := op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.NotYet, outcome)

	op.AddRuntimeFilter(intFilter(t, "k", 5))
	_, outcome, err = op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.NotYet, outcome)

	op.AddSplits(makeSplits(1, 1), true /* noMore */)
	res, err := colexectestutils.RunOperator(ctx, op)
	require.NoError(t, err)
	colexectestutils.AssertTuplesOrderedEqual(t, colexectestutils.Tuples{{1, 5, "p1"}}, res.Tuples)
	require.Len(t, rlog.filters[1], 1)
}

func TestScanOpKill(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	rlog := newReaderLog()
	sink := execstats.NewChannelSink(2)
	op := newScanOp(t, makeSpec(t, &execinfrapb.TableXattr{}, makeSplits(1, 3)...), rlog, 8, sink)
	op.AddSplits(nil, true)
	require.NoError(t, op.Init(ctx))

	_, outcome, err := op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.OKNewSchema, outcome)

	op.Kill()
	_, outcome, err = op.Next()
	require.NoError(t, err)
	require.Equal(t, colexecop.None, outcome)

	require.NoError(t, op.Close(ctx))
	require.NoError(t, op.Close(ctx))
	// The current reader and the buffered one are closed exactly once, and
	// the last split was never opened.
	require.Equal(t, map[int64]int{1: 1, 2: 1}, rlog.closes)
	require.Equal(t, []int64{1, 2}, rlog.created)
	require.Len(t, sink.C(), 1)
}
