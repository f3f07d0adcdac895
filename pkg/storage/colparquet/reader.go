// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colparquet implements the native scan reader: parquet files decoded
// into arrow records by pqarrow, then converted into batches.
package colparquet

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v11/parquet/file"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/colserde"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/spf13/afero"
)

// Register adds the parquet reader to the registry as the native reader.
func Register(r colexecscan.Registry) {
	r[execinfrapb.ReaderType_NATIVE_PARQUET] = NewReader
}

type reader struct {
	colexecscan.ReaderBase

	alloc *colmem.Allocator
	mem   *colmem.ArrowAllocator
	f     afero.File
	pf    *file.Reader
	rr    pqarrow.RecordReader
	batch coldata.Batch

	// rowsLeft is used instead of rr when no file column is projected.
	rowsLeft int64
	holdsFD  bool
	done     bool
	closed   bool
}

var _ colexecscan.RecordReader = &reader{}

// NewReader returns an unopened reader of a parquet split. Only the row
// groups whose first page starts inside [Start, Start+Length) are read; a
// zero Length selects the whole file.
func NewReader(
	cfg *colexecscan.ReaderConfig, split *execinfrapb.Split,
) (colexecscan.RecordReader, error) {
	if split.Path == "" {
		return nil, errors.New("split has no path")
	}
	if cfg.FS == nil {
		return nil, errors.AssertionFailedf("no filesystem configured")
	}
	return &reader{ReaderBase: colexecscan.MakeReaderBase(cfg, split)}, nil
}

func (r *reader) setupErr(err error, what string) error {
	return execerror.NewSetupError(err, what, r.Split.Path)
}

// Setup implements the colexecscan.RecordReader interface.
func (r *reader) Setup(ctx context.Context, alloc *colmem.Allocator) (retErr error) {
	defer func() {
		if retErr != nil {
			retErr = errors.CombineErrors(retErr, r.Close(ctx))
		}
	}()
	r.alloc = alloc
	if sem := r.Cfg.OpenFiles; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		r.holdsFD = true
	}
	var err error
	if r.f, err = r.Cfg.FS.Open(r.Split.Path); err != nil {
		return r.setupErr(err, "opening parquet file")
	}
	if r.pf, err = file.NewParquetReader(r.f); err != nil {
		return r.setupErr(err, "reading parquet footer")
	}
	rowGroups, numRows, err := r.selectRowGroups()
	if err != nil {
		return r.setupErr(err, "selecting row groups")
	}
	if r.batch, err = alloc.NewMemBatch(r.Cfg.OutputSchema, r.Cfg.BatchSize); err != nil {
		return err
	}
	log.VEventf(ctx, 2, "%s: %d of %d row groups selected", redact.Safe(r.Split.SplitId), len(rowGroups), r.pf.NumRowGroups())
	if len(rowGroups) == 0 {
		r.done = true
		return nil
	}
	if len(r.Cfg.FileColumns) == 0 {
		r.rowsLeft = numRows
		return nil
	}

	r.mem = colmem.NewArrowAllocator(alloc)
	fr, err := pqarrow.NewFileReader(r.pf, pqarrow.ArrowReadProperties{BatchSize: int64(r.Cfg.BatchSize)}, r.mem)
	if err != nil {
		return r.setupErr(err, "creating arrow reader")
	}
	cols, err := r.resolveColumns(fr)
	if err != nil {
		return r.setupErr(err, "resolving columns")
	}
	if r.rr, err = fr.GetRecordReader(ctx, cols, rowGroups); err != nil {
		return r.setupErr(err, "creating record reader")
	}
	return nil
}

// resolveColumns returns the leaf indices of the projected file columns.
// Column names match case-insensitively.
func (r *reader) resolveColumns(fr *pqarrow.FileReader) ([]int, error) {
	schema, err := fr.Schema()
	if err != nil {
		return nil, err
	}
	fields := schema.Fields()
	cols := make([]int, 0, len(r.Cfg.FileColumns))
	for _, f := range r.Cfg.FileSchema() {
		idx := -1
		for i := range fields {
			if strings.EqualFold(fields[i].Name, f.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.Newf("column %q not found in file", f.Name)
		}
		cols = append(cols, idx)
	}
	return cols, nil
}

func (r *reader) selectRowGroups() (rowGroups []int, numRows int64, _ error) {
	md := r.pf.MetaData()
	for i := 0; i < r.pf.NumRowGroups(); i++ {
		rg := md.RowGroup(i)
		if r.Split.Length > 0 {
			cc, err := rg.ColumnChunk(0)
			if err != nil {
				return nil, 0, err
			}
			off := cc.DataPageOffset()
			if cc.HasDictionaryPage() && cc.DictionaryPageOffset() > 0 && cc.DictionaryPageOffset() < off {
				off = cc.DictionaryPageOffset()
			}
			if off < r.Split.Start || off >= r.Split.Start+r.Split.Length {
				continue
			}
		}
		rowGroups = append(rowGroups, i)
		numRows += rg.NumRows()
	}
	return rowGroups, numRows, nil
}

// Next implements the colexecscan.RecordReader interface.
func (r *reader) Next(ctx context.Context) (coldata.Batch, error) {
	for {
		if r.done {
			r.batch.Reset()
			return r.batch, nil
		}
		if err := r.read(); err != nil {
			return nil, err
		}
		if r.done {
			continue
		}
		if err := r.FinishBatch(r.batch); err != nil {
			return nil, err
		}
		if r.batch.Length() > 0 {
			return r.batch, nil
		}
	}
}

func (r *reader) read() error {
	if r.rr == nil {
		n := int64(r.batch.Capacity())
		if r.rowsLeft < n {
			n = r.rowsLeft
		}
		r.rowsLeft -= n
		r.batch.Reset()
		r.batch.SetLength(int(n))
		r.done = n == 0
		return nil
	}
	rec, err := r.rr.Read()
	if errors.Is(err, io.EOF) || (err == nil && rec == nil) {
		r.done = true
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s", r.Split.Path)
	}
	var decodeErr error
	if err := r.alloc.PerformOperation(r.batch.ColVecs(), func() {
		decodeErr = colserde.ArrowToBatchColumns(rec, r.batch, r.Cfg.FileColumns)
	}); err != nil {
		return err
	}
	if decodeErr != nil {
		return decodeErr
	}
	return r.mem.Err()
}

// Close implements the colexecscan.RecordReader interface.
func (r *reader) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}
	var err error
	if r.pf != nil {
		err = ignoreClosed(r.pf.Close())
		r.pf = nil
	}
	if r.f != nil {
		err = errors.CombineErrors(err, ignoreClosed(r.f.Close()))
		r.f = nil
	}
	if r.batch != nil {
		r.alloc.ReleaseBatch(r.batch)
		r.batch = nil
	}
	if r.holdsFD {
		r.Cfg.OpenFiles.Release(1)
		r.holdsFD = false
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, afero.ErrFileClosed) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
