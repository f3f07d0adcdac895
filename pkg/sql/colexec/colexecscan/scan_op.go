// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
)

type filteredRowsReporter interface {
	FilteredRows() int64
}

// ScanOp is the leaf operator of a table scan. It pulls readers from the
// iterator of a ScanCreator and returns their batches, one reader at a time.
//
// Splits and runtime filters may be handed to a ScanOp from any goroutine;
// they are applied at the next call to Next.
type ScanOp struct {
	colexecop.ZeroInputNode
	colexecop.InitHelper
	colexecop.CloserHelper
	colexecop.KillHelper

	creator *ScanCreator
	alloc   *colmem.Allocator
	schema  coldata.Schema
	stats   *execstats.OperatorStats
	sink    execstats.Sink

	cur       RecordReader
	announced bool
	empty     coldata.Batch

	mu struct {
		syncutil.Mutex
		splits       [][]*execinfrapb.Split
		filters      []*runtimefilter.Filter
		noMoreSplits bool
	}
}

var _ colexecop.Operator = &ScanOp{}

// NewScanOp returns a scan over the readers of creator. The operator owns
// the allocator and closes it. sink may be nil.
func NewScanOp(
	creator *ScanCreator,
	alloc *colmem.Allocator,
	stats *execstats.OperatorStats,
	sink execstats.Sink,
) *ScanOp {
	if stats == nil {
		stats = execstats.NewOperatorStats("scan " + creator.Config().TableName)
	}
	return &ScanOp{
		creator: creator,
		alloc:   alloc,
		schema:  creator.Config().OutputSchema,
		stats:   stats,
		sink:    sink,
	}
}

// Schema implements the colexecop.Operator interface.
func (s *ScanOp) Schema() coldata.Schema { return s.schema }

// Stats returns the statistics of the scan.
func (s *ScanOp) Stats() *execstats.OperatorStats { return s.stats }

// TableName returns the name of the scanned table.
func (s *ScanOp) TableName() string { return s.creator.Config().TableName }

// Init implements the colexecop.Operator interface.
func (s *ScanOp) Init(ctx context.Context) error {
	if !s.InitHelper.Init(logtags.AddTag(ctx, "scan", s.TableName())) {
		return nil
	}
	b, err := s.alloc.NewMemBatch(s.schema, 0 /* capacity */)
	if err != nil {
		return err
	}
	s.empty = b
	return nil
}

// AddSplits schedules more splits. noMore signals that no splits follow.
func (s *ScanOp) AddSplits(splits []*execinfrapb.Split, noMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(splits) > 0 {
		s.mu.splits = append(s.mu.splits, splits)
	}
	s.mu.noMoreSplits = s.mu.noMoreSplits || noMore
}

// AddRuntimeFilter hands f to the current reader and to every later one.
func (s *ScanOp) AddRuntimeFilter(f *runtimefilter.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.filters = append(s.mu.filters, f)
}

func (s *ScanOp) drainPending(ctx context.Context) error {
	s.mu.Lock()
	splits, filters, noMore := s.mu.splits, s.mu.filters, s.mu.noMoreSplits
	s.mu.splits, s.mu.filters = nil, nil
	s.mu.Unlock()

	for _, round := range splits {
		if err := s.creator.AddSplits(ctx, round); err != nil {
			return err
		}
	}
	for _, f := range filters {
		s.stats.AddLongStat(execstats.ScanRuntimeFilters, 1)
		log.VEventf(ctx, 1, "received %s", f)
		s.creator.AddRuntimeFilter(f)
		if s.cur != nil {
			s.cur.AddRuntimeFilter(f)
		}
	}
	if noMore && s.creator.MoreSplitsExpected() {
		s.creator.ProduceFromBuffered(true)
	}
	return nil
}

func (s *ScanOp) closeReader(ctx context.Context) error {
	if s.cur == nil {
		return nil
	}
	if r, ok := s.cur.(filteredRowsReporter); ok {
		s.stats.AddLongStat(execstats.ScanRowsFiltered, r.FilteredRows())
	}
	err := s.cur.Close(ctx)
	s.cur = nil
	return err
}

// Next implements the colexecop.Operator interface.
func (s *ScanOp) Next() (coldata.Batch, colexecop.Outcome, error) {
	if s.Killed() || s.Closed() {
		return coldata.ZeroBatch, colexecop.None, nil
	}
	ctx := s.Ctx
	s.stats.StartWatch()
	defer s.stats.StopWatch()
	if err := s.drainPending(ctx); err != nil {
		return nil, 0, err
	}
	for {
		if s.cur == nil {
			it := s.creator.Iterator()
			if !it.HasNext() {
				if s.creator.MoreSplitsExpected() {
					s.stats.AddLongStat(execstats.NotYetCount, 1)
					return coldata.ZeroBatch, colexecop.NotYet, nil
				}
				if !s.announced {
					s.announced = true
					return s.empty, colexecop.OKNewSchema, nil
				}
				return coldata.ZeroBatch, colexecop.None, nil
			}
			r, err := it.Next(ctx)
			if err != nil {
				return nil, 0, err
			}
			s.cur = r
			if err := r.Setup(ctx, s.alloc); err != nil {
				return nil, 0, errors.CombineErrors(err, s.closeReader(ctx))
			}
			s.stats.AddLongStat(execstats.ScanReaders, 1)
		}
		b, err := s.cur.Next(ctx)
		if err != nil {
			return nil, 0, errors.CombineErrors(err, s.closeReader(ctx))
		}
		if b.Length() == 0 {
			if err := s.closeReader(ctx); err != nil {
				return nil, 0, err
			}
			continue
		}
		s.stats.AddLongStat(execstats.OutputBatches, 1)
		s.stats.AddLongStat(execstats.OutputTuples, int64(b.Length()))
		s.stats.MaxLongStat(execstats.MaxAllocatedMem, s.alloc.Used())
		outcome := colexecop.OK
		if !s.announced {
			s.announced = true
			outcome = colexecop.OKNewSchema
		}
		return b, outcome, nil
	}
}

// Kill implements the colexecop.Operator interface.
func (s *ScanOp) Kill() {
	s.MarkKilled()
}

// Close implements the colexecop.Operator interface. It closes the current
// reader and the iterator, reports the statistics and releases all memory.
func (s *ScanOp) Close(ctx context.Context) error {
	if !s.CloserHelper.Close() {
		return nil
	}
	err := errors.CombineErrors(s.closeReader(ctx), s.creator.Close(ctx))
	s.stats.MaxLongStat(execstats.MaxAllocatedMem, s.alloc.Used())
	s.alloc.Close(ctx)
	if s.sink != nil {
		s.sink.Report(ctx, s.stats.ToComponentStats(0 /* numInputs */))
	}
	return err
}
