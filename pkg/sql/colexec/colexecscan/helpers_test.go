// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/protoutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// readerLog records the life cycle of the fake readers of a test.
type readerLog struct {
	created []int64
	closes  map[int64]int
	// filters maps each closed reader to the IDs of the filters it applied,
	// in order.
	filters map[int64][]uuid.UUID
	kinds   map[int64]string
}

func newReaderLog() *readerLog {
	return &readerLog{
		closes:  make(map[int64]int),
		filters: make(map[int64][]uuid.UUID),
		kinds:   make(map[int64]string),
	}
}

// fakeReader produces a fixed number of rows per split. The "id" column holds
// the split ID and the "k" column the row ordinal within the split.
type fakeReader struct {
	colexecscan.ReaderBase
	rlog   *readerLog
	rows  int
	next  int
	batch coldata.Batch
}

func (r *fakeReader) Setup(_ context.Context, alloc *colmem.Allocator) error {
	b, err := alloc.NewMemBatch(r.Cfg.OutputSchema, r.Cfg.BatchSize)
	if err != nil {
		return err
	}
	r.batch = b
	return nil
}

func (r *fakeReader) Next(context.Context) (coldata.Batch, error) {
	for {
		r.batch.Reset()
		if r.next >= r.rows {
			return r.batch, nil
		}
		n := 0
		for ; n < r.batch.Capacity() && r.next < r.rows; n++ {
			for _, idx := range r.Cfg.FileColumns {
				vec := r.batch.ColVec(idx)
				switch r.Cfg.OutputSchema[idx].Name {
				case "id":
					vec.Set(n, r.Split.SplitId)
				case "k":
					vec.Set(n, int64(r.next))
				default:
					vec.Set(n, nil)
				}
			}
			r.next++
		}
		r.batch.SetLength(n)
		if err := r.FinishBatch(r.batch); err != nil {
			return nil, err
		}
		if r.batch.Length() > 0 {
			return r.batch, nil
		}
	}
}

func (r *fakeReader) Close(context.Context) error {
	id := r.Split.SplitId
	if r.rlog.closes[id] == 0 {
		for _, f := range r.RuntimeFilters() {
			r.rlog.filters[id] = append(r.rlog.filters[id], f.ID)
		}
	}
	r.rlog.closes[id]++
	return nil
}

func fakeFactory(rlog *readerLog, kind string, rows int) colexecscan.ReaderFactory {
	return func(cfg *colexecscan.ReaderConfig, split *execinfrapb.Split) (colexecscan.RecordReader, error) {
		if split.Path == "bad" {
			return nil, errors.New("cannot open")
		}
		rlog.created = append(rlog.created, split.SplitId)
		rlog.kinds[split.SplitId] = kind
		return &fakeReader{ReaderBase: colexecscan.MakeReaderBase(cfg, split), rlog: rlog, rows: rows}, nil
	}
}

func fakeRegistry(rlog *readerLog, rows int) colexecscan.Registry {
	return colexecscan.Registry{
		execinfrapb.ReaderType_NATIVE_PARQUET: fakeFactory(rlog, "native", rows),
		execinfrapb.ReaderType_BASIC:          fakeFactory(rlog, "generic", rows),
	}
}

func makeXattr(t testing.TB, xattr *execinfrapb.TableXattr) []byte {
	data, err := protoutil.Marshal(xattr)
	require.NoError(t, err)
	return data
}

func makeSpec(t testing.TB, xattr *execinfrapb.TableXattr, splits ...*execinfrapb.Split) *execinfrapb.ScanSpec {
	return &execinfrapb.ScanSpec{
		TableName: "t",
		Schema: []*execinfrapb.ColumnSpec{
			{Name: "id", Type: "INT8"},
			{Name: "k", Type: "INT8"},
			{Name: "p", Type: "STRING", Nullable: true},
		},
		PartitionColumns: []string{"p"},
		ExtendedProperty: makeXattr(t, xattr),
		Splits:           splits,
	}
}

// makeSplits returns splits with consecutive IDs starting at first.
func makeSplits(first, n int) []*execinfrapb.Split {
	splits := make([]*execinfrapb.Split, n)
	for i := range splits {
		id := int64(first + i)
		splits[i] = &execinfrapb.Split{
			SplitId: id,
			Path:    fmt.Sprintf("/data/t/part-%d", id),
			PartitionValues: []*execinfrapb.PartitionValue{
				{Column: "p", Value: fmt.Sprintf("p%d", id%2), IsValid: id%3 != 0},
			},
		}
	}
	return splits
}

func newCreator(
	t testing.TB, spec *execinfrapb.ScanSpec, registry colexecscan.Registry,
) *colexecscan.ScanCreator {
	cfg, err := colexecscan.NewReaderConfig(spec, nil /* fs */, nil /* openFiles */, 4 /* batchSize */)
	require.NoError(t, err)
	c, err := colexecscan.NewScanCreator(context.Background(), spec, cfg, registry, nil /* classifier */, nil /* stats */)
	require.NoError(t, err)
	return c
}

func intFilter(t testing.TB, column string, vals ...int64) *runtimefilter.Filter {
	vec := coldata.NewVec(types.Int, len(vals))
	for i, v := range vals {
		vec.Set(i, v)
	}
	b := runtimefilter.NewBuilder(column, types.Int, 0)
	require.NoError(t, b.Add(vec, len(vals)))
	return b.Build(1)
}

// drain pulls and closes every reader the iterator can produce now, and
// returns the split IDs in order.
func drain(t testing.TB, it colexecscan.ReaderIterator, max int) []int64 {
	ctx := context.Background()
	var ids []int64
	for i := 0; (max < 0 || i < max) && it.HasNext(); i++ {
		r, err := it.Next(ctx)
		require.NoError(t, err)
		fr := r.(*fakeReader)
		ids = append(ids, fr.Split.SplitId)
		require.NoError(t, r.Close(ctx))
	}
	return ids
}
