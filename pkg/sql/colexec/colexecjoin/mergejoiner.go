// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colexecjoin contains the sort-merge join operator.
package colexecjoin

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexeccmp"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/util/log"
)

// mergeJoinOp joins two inputs that are sorted ascending on their key
// columns, with NULLs last. Only the rows of the current group of equal keys
// are held in memory.
//
// The operator is driven by a joinWorker built for the current pair of input
// schemas. When an input announces a different schema the worker is
// discarded and rebuilt; rows already produced under the old schema are
// returned first.
type mergeJoinOp struct {
	colexecop.TwoInputNode
	colexecop.InitHelper
	colexecop.CloserHelper
	colexecop.KillHelper

	spec      *execinfrapb.MergeJoinerSpec
	keyCols   []colexeccmp.KeyColumn
	alloc     *colmem.Allocator
	batchSize int
	schema    coldata.Schema
	stats     *execstats.OperatorStats
	sink      execstats.Sink

	status joinStatus
	worker *joinWorker
	// returned is set when the output batch was handed to the caller and must
	// be reset before more rows are produced.
	returned bool
	done     bool
}

var _ colexecop.Operator = &mergeJoinOp{}

// NewMergeJoinOp returns a merge join of left and right. The operator owns
// the allocator and closes it. stats and sink may be nil.
func NewMergeJoinOp(
	alloc *colmem.Allocator,
	spec *execinfrapb.MergeJoinerSpec,
	left, right colexecop.Operator,
	stats *execstats.OperatorStats,
	sink execstats.Sink,
) (colexecop.Operator, error) {
	if len(spec.Conditions) == 0 {
		return nil, execerror.NewUnsupportedConfigurationErrorf(
			"merge join does not support cartesian joins; the join was configured with 0 conditions")
	}
	keyCols := make([]colexeccmp.KeyColumn, len(spec.Conditions))
	for i, c := range spec.Conditions {
		keyCols[i] = colexeccmp.KeyColumn{
			Left:       int(c.LeftColumn),
			Right:      int(c.RightColumn),
			NullsEqual: c.Comparator == execinfrapb.Comparator_IS_NOT_DISTINCT_FROM,
		}
	}
	if _, err := colexeccmp.MakeKeyComparator(left.Schema(), right.Schema(), keyCols); err != nil {
		return nil, err
	}
	if stats == nil {
		stats = execstats.NewOperatorStats("merge join")
	}
	m := &mergeJoinOp{
		TwoInputNode: colexecop.NewTwoInputNode(left, right),
		spec:         spec,
		keyCols:      keyCols,
		alloc:        alloc,
		batchSize:    coldata.BatchSize(),
		schema:       spec.Type.OutputSchema(left.Schema(), right.Schema()),
		stats:        stats,
		sink:         sink,
	}
	m.status = joinStatus{
		left:  newSideIterator("left", left, alloc),
		right: newSideIterator("right", right, alloc),
	}
	return m, nil
}

// Schema implements the colexecop.Operator interface.
func (m *mergeJoinOp) Schema() coldata.Schema { return m.schema }

// Init implements the colexecop.Operator interface.
func (m *mergeJoinOp) Init(ctx context.Context) error {
	if !m.InitHelper.Init(logtags.AddTag(ctx, "mergejoin", m.spec.Type)) {
		return nil
	}
	return colexecop.InitAll(m.Ctx, m.InputOne, m.InputTwo)
}

func (m *mergeJoinOp) newWorker() error {
	l, r := m.status.left.schema, m.status.right.schema
	keys, err := colexeccmp.MakeKeyComparator(l, r, m.keyCols)
	if err != nil {
		return err
	}
	schema := m.spec.Type.OutputSchema(l, r)
	output, err := m.alloc.NewMemBatch(schema, m.batchSize)
	if err != nil {
		return err
	}
	if m.worker != nil {
		m.alloc.ReleaseBatch(m.worker.output)
	}
	m.worker = &joinWorker{
		joinType:  m.spec.Type,
		keys:      keys,
		leftWidth: len(l),
		output:    output,
	}
	m.schema = schema
	log.VEventf(m.Ctx, 2, "built merge join worker for %s", schema)
	return nil
}

// Next implements the colexecop.Operator interface.
func (m *mergeJoinOp) Next() (coldata.Batch, colexecop.Outcome, error) {
	if m.Killed() {
		m.clearInflightBatches()
		return coldata.ZeroBatch, colexecop.None, nil
	}
	if m.done {
		return coldata.ZeroBatch, colexecop.None, nil
	}
	m.stats.StartWatch()
	defer m.stats.StopWatch()
	if m.returned {
		m.returned = false
		m.status.outPos = 0
	}
	for {
		if m.worker == nil || m.worker.stale {
			if err := m.newWorker(); err != nil {
				return m.fail(err)
			}
		}
		w := m.worker
		var st joinStatus
		if err := m.alloc.PerformOperation(w.output.ColVecs(), func() {
			st = w.doJoin(m.status)
		}); err != nil {
			return m.fail(err)
		}
		m.status = st

		switch st.outcome {
		case batchReturned:
			return m.emit()
		case noMoreData:
			m.done = true
			if st.outPos > 0 || !w.announced {
				return m.emit()
			}
			return coldata.ZeroBatch, colexecop.None, nil
		case schemaChanged:
			w.stale = true
			if st.outPos > 0 {
				// Flush the rows built under the previous schema.
				return m.emit()
			}
		case waiting:
			return coldata.ZeroBatch, colexecop.NotYet, nil
		case failure:
			return m.fail(st.err)
		default:
			return m.fail(errors.AssertionFailedf("unexpected join outcome %d", st.outcome))
		}
	}
}

func (m *mergeJoinOp) emit() (coldata.Batch, colexecop.Outcome, error) {
	w := m.worker
	w.output.SetLength(m.status.outPos)
	m.returned = true
	m.stats.AddLongStat(execstats.OutputBatches, 1)
	m.stats.AddLongStat(execstats.OutputTuples, int64(m.status.outPos))
	m.stats.MaxLongStat(execstats.MaxAllocatedMem, m.alloc.Used())
	if !w.announced {
		w.announced = true
		return w.output, colexecop.OKNewSchema, nil
	}
	return w.output, colexecop.OK, nil
}

// fail clears the in-flight batches, kills both inputs and returns err. All
// later calls to Next return None.
func (m *mergeJoinOp) fail(err error) (coldata.Batch, colexecop.Outcome, error) {
	m.done = true
	m.clearInflightBatches()
	colexecop.KillAll(m.InputOne, m.InputTwo)
	log.VEventf(m.Ctx, 1, "merge join failed: %v", err)
	return nil, 0, err
}

func (m *mergeJoinOp) clearInflightBatches() {
	m.status.left.clearInflightBatches()
	m.status.right.clearInflightBatches()
}

// Kill implements the colexecop.Operator interface. Buffered batches are
// discarded by the next call to Next or by Close.
func (m *mergeJoinOp) Kill() {
	colexecop.KillAll(m.InputOne, m.InputTwo)
	m.MarkKilled()
}

// Close implements the colexecop.Operator interface.
func (m *mergeJoinOp) Close(ctx context.Context) error {
	if !m.CloserHelper.Close() {
		return nil
	}
	m.clearInflightBatches()
	if m.worker != nil {
		m.alloc.ReleaseBatch(m.worker.output)
		m.worker = nil
	}
	left, right := m.status.left, m.status.right
	m.stats.SetLongStat(execstats.InputTuples, left.tuples)
	m.stats.SetLongStat(execstats.RightInputTuples, right.tuples)
	m.stats.SetLongStat(execstats.NotYetCount, left.notYet)
	m.stats.SetLongStat(execstats.RightNotYetCount, right.notYet)
	err := colexecop.CloseAll(ctx, m.InputOne, m.InputTwo)
	m.alloc.Close(ctx)
	if m.sink != nil {
		m.sink.Report(ctx, m.stats.ToComponentStats(2 /* numInputs */))
	}
	return err
}
