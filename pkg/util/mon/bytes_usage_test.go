// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package mon

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/metric"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestBoundAccountGrowShrink(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := NewMonitor("test", 100)
	acc := m.MakeBoundAccount()

	require.NoError(t, acc.Grow(ctx, 60))
	require.Equal(t, int64(60), m.AllocBytes())
	err := acc.Grow(ctx, 50)
	require.True(t, errors.Is(err, ErrBudgetExceeded), "%v", err)
	require.Equal(t, int64(60), acc.Used(), "a refused reservation must not change the account")

	acc.Shrink(ctx, 20)
	require.NoError(t, acc.Resize(ctx, 40, 90))
	require.Equal(t, int64(90), m.AllocBytes())
	require.Equal(t, int64(90), m.MaximumBytes())

	acc.Close(ctx)
	acc.Close(ctx)
	require.Zero(t, m.AllocBytes())
	require.Zero(t, m.Stop(ctx))
}

func TestMonitorStopReportsLeaks(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sc := log.Scope(t)
	defer sc.Close(t)
	ctx := context.Background()
	m := NewMonitor("leaky", 0)
	acc := m.MakeBoundAccount()
	require.NoError(t, acc.Grow(ctx, 2048))
	require.Equal(t, int64(2048), m.Stop(ctx))
	require.Contains(t, sc.Contents(), "leaky: unexpected 2.0 KiB leftover")
}

func TestMonitorMetrics(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	r := metric.NewRegistry()
	cur := r.Gauge(metric.Metadata{Name: "sql.mem.current"})
	hw := r.Gauge(metric.Metadata{Name: "sql.mem.max"})
	m := NewMonitor("metrics", 0)
	m.SetMetrics(cur, hw)
	acc := m.MakeBoundAccount()
	require.NoError(t, acc.Grow(ctx, 10))
	acc.Shrink(ctx, 4)
	require.Equal(t, float64(6), cur.Value())
	require.Equal(t, float64(10), hw.Value())
	acc.Close(ctx)
	require.Zero(t, cur.Value())
}

// TestMonitorConcurrentAccounts exercises one monitor shared by accounts on
// independent goroutines.
func TestMonitorConcurrentAccounts(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	m := NewMonitor("shared", 1<<20)
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			acc := m.MakeBoundAccount()
			defer acc.Close(gCtx)
			for j := 0; j < 1000; j++ {
				if err := acc.Grow(gCtx, 16); err != nil {
					return err
				}
				acc.Shrink(gCtx, 8)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Zero(t, m.AllocBytes())
	require.LessOrEqual(t, m.MaximumBytes(), int64(8*1000*8+8*8))
}
