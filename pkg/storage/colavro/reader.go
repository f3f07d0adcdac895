// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colavro implements the generic scan reader over avro object
// container files. Records are decoded by goavro and copied into batches row
// by row.
package colavro

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/linkedin/goavro/v2"
	"github.com/spf13/afero"
)

const readBufferSize = 64 << 10

// Register adds the avro reader to the registry as the generic reader.
func Register(r colexecscan.Registry) {
	r[execinfrapb.ReaderType_BASIC] = NewReader
}

type reader struct {
	colexecscan.ReaderBase

	alloc *colmem.Allocator
	f     afero.File
	ocf   *goavro.OCFReader
	batch coldata.Batch
	// fieldNameToIdx maps the normalized names of the file columns to their
	// ordinals in the output batch.
	fieldNameToIdx map[string]int

	holdsFD bool
	done    bool
	closed  bool
}

var _ colexecscan.RecordReader = &reader{}

// NewReader returns an unopened reader of an avro split. Object container
// files are not splittable, so only the split starting at offset zero reads
// the file; the others produce no rows.
func NewReader(
	cfg *colexecscan.ReaderConfig, split *execinfrapb.Split,
) (colexecscan.RecordReader, error) {
	if split.Path == "" {
		return nil, errors.New("split has no path")
	}
	if cfg.FS == nil {
		return nil, errors.AssertionFailedf("no filesystem configured")
	}
	r := &reader{
		ReaderBase:     colexecscan.MakeReaderBase(cfg, split),
		fieldNameToIdx: make(map[string]int, len(cfg.FileColumns)),
	}
	for _, idx := range cfg.FileColumns {
		r.fieldNameToIdx[strings.ToLower(cfg.OutputSchema[idx].Name)] = idx
	}
	return r, nil
}

// Setup implements the colexecscan.RecordReader interface.
func (r *reader) Setup(ctx context.Context, alloc *colmem.Allocator) (retErr error) {
	defer func() {
		if retErr != nil {
			retErr = errors.CombineErrors(retErr, r.Close(ctx))
		}
	}()
	r.alloc = alloc
	var err error
	if r.batch, err = alloc.NewMemBatch(r.Cfg.OutputSchema, r.Cfg.BatchSize); err != nil {
		return err
	}
	if r.Split.Start != 0 {
		log.VEventf(ctx, 2, "%s: avro files are read by the split at offset 0", redact.Safe(r.Split.SplitId))
		r.done = true
		return nil
	}
	if sem := r.Cfg.OpenFiles; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		r.holdsFD = true
	}
	if r.f, err = r.Cfg.FS.Open(r.Split.Path); err != nil {
		return execerror.NewSetupError(err, "opening avro file", r.Split.Path)
	}
	if r.ocf, err = goavro.NewOCFReader(bufio.NewReaderSize(r.f, readBufferSize)); err != nil {
		return execerror.NewSetupError(err, "reading avro header", r.Split.Path)
	}
	return nil
}

// Next implements the colexecscan.RecordReader interface.
func (r *reader) Next(ctx context.Context) (coldata.Batch, error) {
	for {
		if r.done {
			r.batch.Reset()
			return r.batch, nil
		}
		var fillErr error
		if err := r.alloc.PerformOperation(r.batch.ColVecs(), func() {
			fillErr = r.fill()
		}); err != nil {
			return nil, err
		}
		if fillErr != nil {
			return nil, fillErr
		}
		if r.batch.Length() == 0 {
			r.done = true
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

func (r *reader) fill() error {
	r.batch.Reset()
	n := 0
	for n < r.batch.Capacity() && r.ocf.Scan() {
		native, err := r.ocf.Read()
		if err != nil {
			return errors.Wrapf(err, "reading %s", r.Split.Path)
		}
		if err := r.convertNative(native, n); err != nil {
			return err
		}
		n++
	}
	if err := r.ocf.Err(); err != nil {
		return errors.Wrapf(err, "reading %s", r.Split.Path)
	}
	r.batch.SetLength(n)
	return nil
}

// convertNative copies an avro record into row i of the batch. Columns
// absent from the record are NULL.
func (r *reader) convertNative(x interface{}, i int) error {
	record, ok := x.(map[string]interface{})
	if !ok {
		return errors.Newf("unexpected native type; expected map[string]interface{} found %T instead", x)
	}
	for _, idx := range r.Cfg.FileColumns {
		r.batch.ColVec(idx).Nulls().SetNull(i)
	}
	for f, v := range record {
		idx, ok := r.fieldNameToIdx[strings.ToLower(f)]
		if !ok {
			continue
		}
		vec := r.batch.ColVec(idx)
		val, err := nativeToValue(v, vec.Type())
		if err != nil {
			return errors.Wrapf(err, "field %s", f)
		}
		vec.Set(i, val)
	}
	return nil
}

// familyToAvroT lists, per type family, the avro type names whose values
// can be stored in a column of that family, in order of preference.
var familyToAvroT = map[types.Family][]string{
	types.BoolFamily:    {"boolean", "string"},
	types.IntFamily:     {"long", "int", "string"},
	types.FloatFamily:   {"double", "float", "long", "int", "string"},
	types.DecimalFamily: {"bytes.decimal", "fixed.decimal", "string", "double", "long", "int"},
	types.StringFamily:  {"string", "bytes"},
	types.BytesFamily:   {"bytes", "string"},
}

// nativeToValue converts a value decoded by goavro to the form accepted by
// coldata.Vec.Set for t. Union members arrive wrapped in a single-entry map
// keyed by the avro type name.
func nativeToValue(x interface{}, t *types.T) (interface{}, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		for _, name := range familyToAvroT[t.Family()] {
			if val, ok := v[name]; ok {
				return nativeToValue(val, t)
			}
		}
		if len(v) == 1 {
			for name := range v {
				return nil, errors.Newf("cannot convert avro %s to %s", name, t)
			}
		}
		return nil, errors.Newf("cannot convert avro map to %s", t)
	case string:
		switch t.Family() {
		case types.StringFamily:
			return v, nil
		case types.BytesFamily:
			return []byte(v), nil
		}
		return colexecscan.ParseConstant(t, v)
	case []byte:
		switch t.Family() {
		case types.BytesFamily:
			// goavro may return slices of its read buffer.
			return append([]byte(nil), v...), nil
		case types.StringFamily:
			return string(v), nil
		}
	case *big.Rat:
		if t.Family() == types.DecimalFamily {
			return ratString(v), nil
		}
	}

	switch t.Family() {
	case types.BoolFamily:
		if b, ok := x.(bool); ok {
			return b, nil
		}
	case types.IntFamily:
		switch v := x.(type) {
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		}
	case types.FloatFamily:
		switch v := x.(type) {
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case types.DecimalFamily:
		switch v := x.(type) {
		case float32, float64, int32, int64:
			return fmt.Sprint(v), nil
		}
	}
	return nil, errors.Newf("cannot handle type %T when converting to %s", x, t)
}

// ratString formats an exact rational produced by the avro decimal logical
// type. Avro decimals have a power-of-ten denominator, so 40 fractional
// digits are enough to represent them exactly.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(40)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Close implements the colexecscan.RecordReader interface.
func (r *reader) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.f != nil {
		if err = r.f.Close(); errors.Is(err, afero.ErrFileClosed) || errors.Is(err, os.ErrClosed) {
			err = nil
		}
		r.f = nil
	}
	r.ocf = nil
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
