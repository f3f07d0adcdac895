// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package flowinfra runs fragments: single-threaded pipelines of operators
// that push their output to a receiver.
package flowinfra

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/metric"
	"github.com/cockroachdb/vexec/pkg/util/retry"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
	"github.com/cockroachdb/vexec/pkg/util/timeutil"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ErrFragmentKilled is returned by Run when the fragment was killed.
var ErrFragmentKilled = errors.New("fragment killed")

// ConsumerStatus is the state of a receiver after it was handed a batch.
type ConsumerStatus uint32

const (
	// NeedMoreRows indicates that the receiver accepts more batches.
	NeedMoreRows ConsumerStatus = iota
	// ConsumerClosed indicates that the receiver does not want more batches.
	// The fragment stops and releases its operators.
	ConsumerClosed
)

// BatchReceiver is the consumer of the output of a fragment.
type BatchReceiver interface {
	// PushBatch hands a batch to the receiver. schema is non-nil when the
	// batch is the first one of a new schema, possibly empty. The batch is
	// only valid until PushBatch returns.
	PushBatch(ctx context.Context, b coldata.Batch, schema coldata.Schema) ConsumerStatus
}

// maxNotYetBackoff bounds the backoff between polls of a root that is not
// ready.
const maxNotYetBackoff = 100 * time.Millisecond

// Fragment is one single-threaded pipeline of operators.
type Fragment struct {
	ID      uuid.UUID
	Root    colexecop.Operator
	flowCtx *execinfra.FlowCtx

	killCh   chan struct{}
	killOnce sync.Once

	mu struct {
		syncutil.Mutex
		scans []*colexecscan.ScanOp
		// filters are the runtime filters received so far. They are replayed to
		// scans registered later.
		filters []*runtimefilter.Filter
	}
}

// NewFragment returns a fragment running root. scans are the scans of the
// operator tree rooted at root that accept splits and runtime filters.
func NewFragment(
	flowCtx *execinfra.FlowCtx, root colexecop.Operator, scans ...*colexecscan.ScanOp,
) *Fragment {
	f := &Fragment{
		ID:      uuid.New(),
		Root:    root,
		flowCtx: flowCtx,
		killCh:  make(chan struct{}),
	}
	f.mu.scans = scans
	return f
}

// Scans returns the scans registered on the fragment.
func (f *Fragment) Scans() []*colexecscan.ScanOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*colexecscan.ScanOp(nil), f.mu.scans...)
}

// RegisterScan adds a scan to the fragment and hands it every runtime filter
// received so far.
func (f *Fragment) RegisterScan(s *colexecscan.ScanOp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mu.scans = append(f.mu.scans, s)
	for _, rf := range f.mu.filters {
		s.AddRuntimeFilter(rf)
	}
}

// AddRuntimeFilter hands rf to every scan of the fragment, including scans
// registered later. It may be called from any goroutine.
func (f *Fragment) AddRuntimeFilter(rf *runtimefilter.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mu.filters = append(f.mu.filters, rf)
	for _, s := range f.mu.scans {
		s.AddRuntimeFilter(rf)
	}
}

// RuntimeFilters returns the runtime filters received so far.
func (f *Fragment) RuntimeFilters() []*runtimefilter.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*runtimefilter.Filter(nil), f.mu.filters...)
}

// Kill stops the fragment. It may be called from any goroutine and more than
// once. Run returns ErrFragmentKilled after releasing the operators.
func (f *Fragment) Kill() {
	f.killOnce.Do(func() {
		close(f.killCh)
		f.Root.Kill()
	})
}

func (f *Fragment) killed() bool {
	select {
	case <-f.killCh:
		return true
	default:
		return false
	}
}

type fragmentMetrics struct {
	started, notYet, batches *metric.Counter
	running                  *metric.Gauge
}

func (f *Fragment) metrics() fragmentMetrics {
	reg := f.flowCtx.Cfg.Metrics
	return fragmentMetrics{
		started: reg.Counter(metric.Metadata{Name: "sql.exec.fragments.started", Help: "Number of fragments started", Unit: "fragments"}),
		notYet:  reg.Counter(metric.Metadata{Name: "sql.exec.fragments.not_yet", Help: "Number of polls of a fragment that was not ready", Unit: "polls"}),
		batches: reg.Counter(metric.Metadata{Name: "sql.exec.fragments.batches", Help: "Number of batches produced by fragments", Unit: "batches"}),
		running: reg.Gauge(metric.Metadata{Name: "sql.exec.fragments.running", Help: "Number of running fragments", Unit: "fragments"}),
	}
}

// Run drives the root operator until it is exhausted, pushing every batch to
// receiver. When the root is not ready Run backs off before polling it
// again. The operators are closed before Run returns, and an error is
// returned at most once.
func (f *Fragment) Run(ctx context.Context, receiver BatchReceiver) (retErr error) {
	ctx = logtags.AddTag(ctx, "frag", f.ID.String()[:8])
	m := f.metrics()
	m.started.Inc(1)
	m.running.Inc(1)
	start := timeutil.Now()
	defer func() {
		m.running.Dec(1)
		retErr = errors.CombineErrors(retErr, f.Root.Close(ctx))
		if f.killed() && retErr == nil {
			retErr = ErrFragmentKilled
		}
		log.VEventf(ctx, 1, "fragment finished in %s, peak flow memory %s: %v",
			timeutil.Since(start), humanize.IBytes(uint64(f.flowCtx.Cfg.Monitor.MaximumBytes())), retErr)
	}()

	if err := f.Root.Init(ctx); err != nil {
		return err
	}
	r := retry.StartWithCtx(ctx, retry.Options{
		InitialBackoff: execinfra.NotYetBackoff.Get(f.flowCtx.Cfg.Settings),
		MaxBackoff:     maxNotYetBackoff,
		Multiplier:     2,
		Closer:         f.killCh,
	})
	// The first attempt of a retry loop never waits.
	r.Next()
	for {
		if err := ctx.Err(); err != nil {
			f.Kill()
			return err
		}
		b, outcome, err := f.Root.Next()
		if err != nil {
			f.Root.Kill()
			return err
		}
		switch outcome {
		case colexecop.None:
			return nil
		case colexecop.NotYet:
			m.notYet.Inc(1)
			if !r.Next() {
				// Killed or canceled while waiting.
				continue
			}
		case colexecop.OK, colexecop.OKNewSchema:
			m.batches.Inc(1)
			var schema coldata.Schema
			if outcome == colexecop.OKNewSchema {
				schema = f.Root.Schema()
			}
			if receiver.PushBatch(ctx, b, schema) == ConsumerClosed {
				log.VEventf(ctx, 1, "receiver closed, stopping fragment")
				f.Root.Kill()
				return nil
			}
			r.Reset()
			r.Next()
		default:
			f.Root.Kill()
			return errors.AssertionFailedf("unexpected outcome %s", outcome)
		}
	}
}
