// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execstats collects per-operator statistics and hands them to
// sinks. Reporting never blocks execution.
package execstats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/util/metric"
)

// MetricID identifies one long statistic of an operator.
type MetricID int

const (
	// ScanFileFormats is a bitmask of the execinfrapb.FileFormat ordinals
	// scheduled by a scan.
	ScanFileFormats MetricID = iota
	ScanSplits
	ScanReaders
	ScanRuntimeFilters
	ScanRowsFiltered
	InputTuples
	RightInputTuples
	NotYetCount
	RightNotYetCount
	OutputBatches
	OutputTuples
	MaxAllocatedMem
	numMetrics
)

// OperatorStats holds the long statistics of one operator. All methods are
// safe for concurrent use.
type OperatorStats struct {
	Component string

	longs   [numMetrics]int64
	started int64 // atomic, unix nanos
	elapsed int64 // atomic, nanos
}

// NewOperatorStats returns empty statistics for the named component.
func NewOperatorStats(component string) *OperatorStats {
	return &OperatorStats{Component: component}
}

// SetLongStat sets the statistic to v.
func (s *OperatorStats) SetLongStat(id MetricID, v int64) {
	atomic.StoreInt64(&s.longs[id], v)
}

// GetLongStat returns the current value of the statistic.
func (s *OperatorStats) GetLongStat(id MetricID) int64 {
	return atomic.LoadInt64(&s.longs[id])
}

// AddLongStat adds delta to the statistic.
func (s *OperatorStats) AddLongStat(id MetricID, delta int64) {
	atomic.AddInt64(&s.longs[id], delta)
}

// OrLongStat sets the bits of mask in the statistic.
func (s *OperatorStats) OrLongStat(id MetricID, mask int64) {
	for {
		old := atomic.LoadInt64(&s.longs[id])
		if atomic.CompareAndSwapInt64(&s.longs[id], old, old|mask) {
			return
		}
	}
}

// MaxLongStat raises the statistic to v if v is larger.
func (s *OperatorStats) MaxLongStat(id MetricID, v int64) {
	for {
		old := atomic.LoadInt64(&s.longs[id])
		if v <= old || atomic.CompareAndSwapInt64(&s.longs[id], old, v) {
			return
		}
	}
}

// StartWatch marks the beginning of a timed section.
func (s *OperatorStats) StartWatch() {
	atomic.StoreInt64(&s.started, time.Now().UnixNano())
}

// StopWatch adds the time since the matching StartWatch to the execution
// time.
func (s *OperatorStats) StopWatch() {
	if started := atomic.SwapInt64(&s.started, 0); started != 0 {
		atomic.AddInt64(&s.elapsed, time.Now().UnixNano()-started)
	}
}

// ToComponentStats converts the statistics for reporting.
func (s *OperatorStats) ToComponentStats(numInputs int) *execinfrapb.ComponentStats {
	u := func(id MetricID) uint64 { return uint64(s.GetLongStat(id)) }
	cs := &execinfrapb.ComponentStats{
		Component: s.Component,
		Exec: execinfrapb.ExecStats{
			ExecTime:        time.Duration(atomic.LoadInt64(&s.elapsed)),
			MaxAllocatedMem: u(MaxAllocatedMem),
		},
		Output: execinfrapb.OutputStats{
			NumBatches: u(OutputBatches),
			NumTuples:  u(OutputTuples),
		},
		Scan: execinfrapb.ScanStats{
			FileFormats:    u(ScanFileFormats),
			NumSplits:      u(ScanSplits),
			NumReaders:     u(ScanReaders),
			RuntimeFilters: u(ScanRuntimeFilters),
			RowsFiltered:   u(ScanRowsFiltered),
		},
	}
	if numInputs >= 1 {
		cs.Inputs = append(cs.Inputs, execinfrapb.InputStats{NumTuples: u(InputTuples), NotYetCount: u(NotYetCount)})
	}
	if numInputs >= 2 {
		cs.Inputs = append(cs.Inputs, execinfrapb.InputStats{NumTuples: u(RightInputTuples), NotYetCount: u(RightNotYetCount)})
	}
	return cs
}

// Sink receives component statistics. Report must not block.
type Sink interface {
	Report(ctx context.Context, stats *execinfrapb.ComponentStats)
}

// ChannelSink delivers statistics on a buffered channel. When the channel is
// full, statistics are dropped and counted.
type ChannelSink struct {
	ch      chan *execinfrapb.ComponentStats
	dropped int64
}

var _ Sink = &ChannelSink{}

// NewChannelSink returns a sink buffering up to capacity reports.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{ch: make(chan *execinfrapb.ComponentStats, capacity)}
}

// Report implements the Sink interface.
func (s *ChannelSink) Report(_ context.Context, stats *execinfrapb.ComponentStats) {
	select {
	case s.ch <- stats:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// C returns the channel the reports are delivered on.
func (s *ChannelSink) C() <-chan *execinfrapb.ComponentStats {
	return s.ch
}

// Dropped returns the number of reports that did not fit in the channel.
func (s *ChannelSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// MetricSink folds statistics into process-wide counters.
type MetricSink struct {
	FileFormats    *metric.Counter
	Splits         *metric.Counter
	Readers        *metric.Counter
	RuntimeFilters *metric.Counter
	RowsFiltered   *metric.Counter
	OutputTuples   *metric.Counter
	NotYet         *metric.Counter
}

var _ Sink = &MetricSink{}

var (
	metaScanFileFormats = metric.Metadata{
		Name: "sql.exec.scan.file_formats",
		Help: "Number of distinct file formats scheduled by scans",
		Unit: "count",
	}
	metaScanSplits = metric.Metadata{
		Name: "sql.exec.scan.splits",
		Help: "Number of splits scheduled by scans",
		Unit: "count",
	}
	metaScanReaders = metric.Metadata{
		Name: "sql.exec.scan.readers",
		Help: "Number of readers opened by scans",
		Unit: "count",
	}
	metaRuntimeFilters = metric.Metadata{
		Name: "sql.exec.scan.runtime_filters",
		Help: "Number of runtime filters received by scans",
		Unit: "count",
	}
	metaRowsFiltered = metric.Metadata{
		Name: "sql.exec.scan.rows_filtered",
		Help: "Number of rows removed by scan and runtime filters",
		Unit: "count",
	}
	metaOutputTuples = metric.Metadata{
		Name: "sql.exec.output_tuples",
		Help: "Number of tuples produced by operators",
		Unit: "count",
	}
	metaNotYet = metric.Metadata{
		Name: "sql.exec.not_yet",
		Help: "Number of times an input was not ready",
		Unit: "count",
	}
)

// NewMetricSink registers the sink's counters in reg.
func NewMetricSink(reg *metric.Registry) *MetricSink {
	return &MetricSink{
		FileFormats:    reg.Counter(metaScanFileFormats),
		Splits:         reg.Counter(metaScanSplits),
		Readers:        reg.Counter(metaScanReaders),
		RuntimeFilters: reg.Counter(metaRuntimeFilters),
		RowsFiltered:   reg.Counter(metaRowsFiltered),
		OutputTuples:   reg.Counter(metaOutputTuples),
		NotYet:         reg.Counter(metaNotYet),
	}
}

// Report implements the Sink interface.
func (s *MetricSink) Report(_ context.Context, stats *execinfrapb.ComponentStats) {
	s.FileFormats.Inc(int64(len(execinfrapb.FileFormatNames(stats.Scan.FileFormats))))
	s.Splits.Inc(int64(stats.Scan.NumSplits))
	s.Readers.Inc(int64(stats.Scan.NumReaders))
	s.RuntimeFilters.Inc(int64(stats.Scan.RuntimeFilters))
	s.RowsFiltered.Inc(int64(stats.Scan.RowsFiltered))
	s.OutputTuples.Inc(int64(stats.Output.NumTuples))
	var notYet uint64
	for _, in := range stats.Inputs {
		notYet += in.NotYetCount
	}
	s.NotYet.Inc(int64(notYet))
}

// MultiSink reports to every sink in order.
type MultiSink []Sink

// Report implements the Sink interface.
func (m MultiSink) Report(ctx context.Context, stats *execinfrapb.ComponentStats) {
	for _, s := range m {
		s.Report(ctx, stats)
	}
}
