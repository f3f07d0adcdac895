// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colserde

import (
	"bytes"
	"io"

	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
)

// FileSerializer converts our in-mem columnar batch representation into the
// arrow specification's file format. All batches serialized to a file must have
// the same schema.
type FileSerializer struct {
	w  *ipc.FileWriter
	a  *ArrowBatchConverter
	nb int
}

// NewFileSerializer creates a FileSerializer for the given schema. The caller
// is responsible for closing the given writer.
func NewFileSerializer(
	w io.Writer, schema coldata.Schema, mem memory.Allocator,
) (*FileSerializer, error) {
	a, err := NewArrowBatchConverter(schema, mem)
	if err != nil {
		return nil, err
	}
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(a.ArrowSchema()), ipc.WithAllocator(a.mem))
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow file writer")
	}
	return &FileSerializer{w: fw, a: a}, nil
}

// AppendBatch adds one batch of columnar data to the file.
func (s *FileSerializer) AppendBatch(batch coldata.Batch) error {
	if s.w == nil {
		return errors.New("AppendBatch called after Finish")
	}
	rec, err := s.a.BatchToArrow(batch)
	if err != nil {
		return err
	}
	defer rec.Release()
	if err := s.w.Write(rec); err != nil {
		return errors.Wrap(err, "writing arrow record batch")
	}
	s.nb++
	return nil
}

// NumBatches returns the number of batches appended so far.
func (s *FileSerializer) NumBatches() int {
	return s.nb
}

// Finish writes the footer metadata described by the arrow spec. Nothing can
// be called after Finish.
func (s *FileSerializer) Finish() error {
	if s.w == nil {
		return nil
	}
	defer func() {
		s.w = nil
	}()
	return errors.Wrap(s.w.Close(), "writing arrow file footer")
}

// FileDeserializer decodes columnar data batches from files encoded according
// to the arrow spec.
type FileDeserializer struct {
	r      *ipc.FileReader
	schema coldata.Schema
}

// NewFileDeserializerFromBytes constructs a FileDeserializer for an in-memory
// buffer.
func NewFileDeserializerFromBytes(buf []byte, mem memory.Allocator) (*FileDeserializer, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	r, err := ipc.NewFileReader(bytes.NewReader(buf), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "verifying arrow file")
	}
	schema, err := SchemaFromArrow(r.Schema())
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &FileDeserializer{r: r, schema: schema}, nil
}

// Close releases any resources held by this deserializer.
func (d *FileDeserializer) Close() error {
	return d.r.Close()
}

// Schema returns the schema of the data stored in this file.
func (d *FileDeserializer) Schema() coldata.Schema {
	return d.schema
}

// NumBatches returns the number of record batches stored in this file.
func (d *FileDeserializer) NumBatches() int {
	return d.r.NumRecords()
}

// GetBatch fills in the given in-mem batch with the requested on-disk data.
func (d *FileDeserializer) GetBatch(batchIdx int, b coldata.Batch) error {
	// The record is owned by the reader and stays valid until the next call.
	rec, err := d.r.Record(batchIdx)
	if err != nil {
		return errors.Wrapf(err, "reading record batch %d", batchIdx)
	}
	return ArrowToBatch(rec, b)
}
