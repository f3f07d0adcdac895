// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colmem_test

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/mon"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testSchema = coldata.Schema{
	{Name: "a", Type: types.Int},
	{Name: "b", Type: types.Bytes, Nullable: true},
}

func TestAcquireRelease(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("test", 0)
	a := colmem.NewAllocator(ctx, m)

	b1, err := a.Acquire(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 100, b1.Len())
	b2, err := a.Acquire(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, int64(150), a.Used())
	require.Equal(t, 2, a.Outstanding())

	require.NoError(t, a.Release(ctx, b1))
	require.Error(t, a.Release(ctx, b1), "double release must be rejected")
	require.Equal(t, int64(50), m.AllocBytes())

	other := colmem.NewAllocator(ctx, m)
	require.Error(t, other.Release(ctx, b2), "foreign buffers must be rejected")
	other.Close(ctx)

	a.Close(ctx)
	a.Close(ctx)
	require.Zero(t, m.AllocBytes())
	require.Zero(t, m.Stop(ctx))
}

func TestAllocationFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("small", 1024)
	a := colmem.NewAllocator(ctx, m)
	defer a.Close(ctx)

	_, err := a.Acquire(ctx, 512)
	require.NoError(t, err)
	_, err = a.NewMemBatch(testSchema, coldata.BatchSize())
	require.True(t, execerror.IsAllocationError(err), "%v", err)
	require.Equal(t, 1, a.Outstanding(), "a failed call must not leave anything behind")

	a.ReleaseAll(ctx)
	require.Zero(t, m.AllocBytes())
	b, err := a.NewMemBatch(testSchema, 4)
	require.NoError(t, err)
	require.Equal(t, colmem.EstimateBatchSizeBytes(testSchema.Types(), 4), a.Used())
	a.ReleaseBatch(b)
	require.Zero(t, a.Used())
}

func TestPerformOperation(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("test", 0)
	a := colmem.NewAllocator(ctx, m)
	defer a.Close(ctx)

	b, err := a.NewMemBatch(testSchema, 2)
	require.NoError(t, err)
	base := a.Used()
	require.NoError(t, a.PerformOperation(b.ColVecs(), func() {
		b.ColVec(1).Set(0, make([]byte, 64))
	}))
	require.GreaterOrEqual(t, a.Used(), base+64)
}

func TestArrowAllocator(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("arrow", 0)
	a := colmem.NewAllocator(ctx, m)
	aa := colmem.NewArrowAllocator(a)

	bld := array.NewInt64Builder(aa)
	for i := 0; i < 1000; i++ {
		bld.Append(int64(i))
	}
	arr := bld.NewArray()
	bld.Release()
	require.Greater(t, a.Used(), int64(0))
	require.Equal(t, arrow.INT64, arr.DataType().ID())
	arr.Release()
	require.Zero(t, a.Used())
	require.NoError(t, aa.Err())
	a.Close(ctx)
}

func TestArrowAllocatorRecordsFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("tiny", 16)
	a := colmem.NewAllocator(ctx, m)
	defer a.Close(ctx)
	aa := colmem.NewArrowAllocator(a)
	buf := aa.Allocate(1 << 10)
	require.Len(t, buf, 1<<10)
	require.True(t, execerror.IsAllocationError(aa.Err()))
	aa.Free(buf)
}

// TestSharedMonitor runs allocators of independent fragments concurrently
// against one monitor.
func TestSharedMonitor(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	m := mon.NewMonitor("shared", 0)
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			a := colmem.NewAllocator(gCtx, m)
			defer a.Close(gCtx)
			for j := 0; j < 100; j++ {
				buf, err := a.Acquire(gCtx, 128)
				if err != nil {
					return err
				}
				if err := a.Release(gCtx, buf); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Zero(t, m.AllocBytes())
}
