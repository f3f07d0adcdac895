// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package mon implements memory accounting. A BytesMonitor is a thread-safe
// pool of bytes with an optional limit, shared by every fragment of a flow.
// Operators draw from it through BoundAccounts, which are not thread-safe and
// are owned by exactly one operator.
package mon

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/metric"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
	"github.com/dustin/go-humanize"
)

// ErrBudgetExceeded is the sentinel returned (wrapped) when a reservation
// would take a monitor past its limit.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// BytesMonitor defines an object that can track and limit memory usage by
// other monitors or by BoundAccounts.
type BytesMonitor struct {
	mu struct {
		syncutil.Mutex

		// curAllocated tracks the current amount of memory allocated at this
		// monitor by its client components.
		curAllocated int64

		// maxAllocated tracks the high water mark of allocations.
		maxAllocated int64

		// numAccounts is the number of open accounts drawing from this monitor.
		numAccounts int64
	}

	name  redact.SafeString
	limit int64

	curBytesCount *metric.Gauge
	maxBytesCount *metric.Gauge
}

// NewMonitor creates a new monitor. A limit of zero or less means unlimited.
func NewMonitor(name redact.SafeString, limit int64) *BytesMonitor {
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &BytesMonitor{name: name, limit: limit}
}

// SetMetrics attaches gauges tracking the current and maximum usage.
func (mm *BytesMonitor) SetMetrics(cur, hw *metric.Gauge) {
	mm.curBytesCount = cur
	mm.maxBytesCount = hw
}

// Name returns the name of the monitor.
func (mm *BytesMonitor) Name() redact.SafeString {
	return mm.name
}

// Limit returns the limit of the monitor.
func (mm *BytesMonitor) Limit() int64 {
	return mm.limit
}

// AllocBytes returns the current number of allocated bytes in this monitor.
func (mm *BytesMonitor) AllocBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.curAllocated
}

// MaximumBytes returns the maximum number of bytes that were allocated by
// this monitor at one time since it was started.
func (mm *BytesMonitor) MaximumBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.maxAllocated
}

// Stop completes a monitoring region. Any bytes still allocated are reported
// and forgotten; the returned value is the number of leaked bytes.
func (mm *BytesMonitor) Stop(ctx context.Context) int64 {
	mm.mu.Lock()
	leaked := mm.mu.curAllocated
	mm.mu.curAllocated = 0
	accounts := mm.mu.numAccounts
	mm.mu.Unlock()
	if leaked != 0 || accounts != 0 {
		log.Errorf(ctx, "%s: unexpected %s leftover from %d open accounts",
			mm.name, redact.SafeString(humanize.IBytes(uint64(leaked))), accounts)
	}
	if mm.curBytesCount != nil {
		mm.curBytesCount.Update(0)
	}
	return leaked
}

// reserveBytes declares that the caller will use x more bytes.
func (mm *BytesMonitor) reserveBytes(ctx context.Context, x int64) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.mu.curAllocated > mm.limit-x {
		return errors.Wrapf(ErrBudgetExceeded, "%s: cannot allocate %s with %s already allocated (limit %s)",
			mm.name,
			redact.SafeString(humanize.IBytes(uint64(x))),
			redact.SafeString(humanize.IBytes(uint64(mm.mu.curAllocated))),
			redact.SafeString(humanize.IBytes(uint64(mm.limit))))
	}
	mm.mu.curAllocated += x
	if mm.curBytesCount != nil {
		mm.curBytesCount.Inc(x)
	}
	if mm.mu.maxAllocated < mm.mu.curAllocated {
		mm.mu.maxAllocated = mm.mu.curAllocated
		if mm.maxBytesCount != nil {
			mm.maxBytesCount.Update(mm.mu.maxAllocated)
		}
	}
	if log.V(3) {
		log.Infof(ctx, "%s: now at %d bytes (+%d)", mm.name, mm.mu.curAllocated, x)
	}
	return nil
}

// releaseBytes releases memory previously successfully registered via
// reserveBytes().
func (mm *BytesMonitor) releaseBytes(ctx context.Context, sz int64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.mu.curAllocated < sz {
		log.Errorf(ctx, "%s: no bytes to release, current %d, free %d", mm.name, mm.mu.curAllocated, sz)
		sz = mm.mu.curAllocated
	}
	mm.mu.curAllocated -= sz
	if mm.curBytesCount != nil {
		mm.curBytesCount.Dec(sz)
	}
}

// BoundAccount tracks the cumulated allocations for one client of a pool or
// monitor. A BoundAccount is not thread-safe; it must be used by exactly one
// goroutine at a time.
type BoundAccount struct {
	used int64
	mon  *BytesMonitor
}

// MakeBoundAccount creates a BoundAccount connected to the given monitor.
func (mm *BytesMonitor) MakeBoundAccount() BoundAccount {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.mu.numAccounts++
	return BoundAccount{mon: mm}
}

// Monitor returns the monitor the account draws from.
func (b *BoundAccount) Monitor() *BytesMonitor {
	return b.mon
}

// Used returns the number of bytes currently allocated through this account.
func (b *BoundAccount) Used() int64 {
	return b.used
}

// Grow is an accessor for b.mon.GrowAccount.
func (b *BoundAccount) Grow(ctx context.Context, x int64) error {
	if x < 0 {
		return errors.AssertionFailedf("cannot grow account by negative amount %d", x)
	}
	if err := b.mon.reserveBytes(ctx, x); err != nil {
		return err
	}
	b.used += x
	return nil
}

// Shrink releases part of the cumulated allocations by the specified size.
func (b *BoundAccount) Shrink(ctx context.Context, delta int64) {
	if b.used < delta {
		log.Errorf(ctx, "%s: no bytes in account to release, current %d, free %d",
			b.mon.name, b.used, delta)
		delta = b.used
	}
	b.used -= delta
	b.mon.releaseBytes(ctx, delta)
}

// Resize requests a size change for an object already registered in an
// account. The reservation is not modified if the new allocation is refused.
func (b *BoundAccount) Resize(ctx context.Context, oldSz, newSz int64) error {
	delta := newSz - oldSz
	switch {
	case delta > 0:
		return b.Grow(ctx, delta)
	case delta < 0:
		b.Shrink(ctx, -delta)
	}
	return nil
}

// Clear releases all the cumulated allocations of an account at once and
// primes it for reuse.
func (b *BoundAccount) Clear(ctx context.Context) {
	if b.mon == nil {
		return
	}
	b.mon.releaseBytes(ctx, b.used)
	b.used = 0
}

// Close releases all the cumulated allocations of an account at once and
// detaches it from the monitor. Closing an account twice is a no-op.
func (b *BoundAccount) Close(ctx context.Context) {
	if b.mon == nil {
		return
	}
	b.Clear(ctx)
	b.mon.mu.Lock()
	b.mon.mu.numAccounts--
	b.mon.mu.Unlock()
	b.mon = nil
}
