// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexeccmp"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/marusama/semaphore"
	"github.com/spf13/afero"
)

// RecordReader produces the batches of one split.
type RecordReader interface {
	// Setup opens the split. Memory for the batches returned by Next is
	// accounted against the allocator.
	Setup(ctx context.Context, alloc *colmem.Allocator) error
	// Next returns the next batch of the split. A zero-length batch means
	// the split is exhausted. The batch is valid until the next call.
	Next(ctx context.Context) (coldata.Batch, error)
	// AddRuntimeFilter registers a filter that applies to every batch
	// returned afterwards. A filter whose ID was already added is ignored.
	AddRuntimeFilter(f *runtimefilter.Filter)
	// Close releases the split. It is idempotent.
	Close(ctx context.Context) error
}

// ReaderFactory creates an unopened reader for a split.
type ReaderFactory func(cfg *ReaderConfig, split *execinfrapb.Split) (RecordReader, error)

// Registry maps each reader type to the factory of its readers.
type Registry map[execinfrapb.ReaderType]ReaderFactory

// ReaderConfig is the per-scan configuration shared by all readers of a
// scan.
type ReaderConfig struct {
	TableName string
	// TableSchema is the schema of the whole table.
	TableSchema coldata.Schema
	// OutputSchema is the schema of the batches returned by readers.
	OutputSchema coldata.Schema
	// FileColumns are the ordinals in OutputSchema of the columns stored in
	// the files. The remaining columns are partition columns.
	FileColumns []int

	FS        afero.Fs
	OpenFiles semaphore.Semaphore
	BatchSize int

	partitionCols []int
	conditions    []condition
}

// NewReaderConfig resolves the columns and filter of the scan.
func NewReaderConfig(
	spec *execinfrapb.ScanSpec, fs afero.Fs, openFiles semaphore.Semaphore, batchSize int,
) (*ReaderConfig, error) {
	tableSchema, err := spec.TableSchema()
	if err != nil {
		return nil, execerror.NewSetupError(err, "resolving table schema", spec.TableName)
	}
	cfg := &ReaderConfig{
		TableName:   spec.TableName,
		TableSchema: tableSchema,
		FS:          fs,
		OpenFiles:   openFiles,
		BatchSize:   batchSize,
	}

	partitioned := mapset.NewThreadUnsafeSet[string]()
	for _, name := range spec.PartitionColumns {
		if tableSchema.ColumnIndex(name) < 0 {
			return nil, execerror.NewSetupErrorf("partition column %q not found in table %s", name, spec.TableName)
		}
		partitioned.Add(strings.ToLower(name))
	}

	columns := spec.Columns
	if len(columns) == 0 {
		columns = tableSchema.Names()
	}
	for i, name := range columns {
		idx := tableSchema.ColumnIndex(name)
		if idx < 0 {
			return nil, execerror.NewSetupErrorf("column %q not found in table %s", name, spec.TableName)
		}
		cfg.OutputSchema = append(cfg.OutputSchema, tableSchema[idx])
		if partitioned.Contains(strings.ToLower(name)) {
			cfg.partitionCols = append(cfg.partitionCols, i)
		} else {
			cfg.FileColumns = append(cfg.FileColumns, i)
		}
	}

	if spec.Filter != nil {
		for _, c := range spec.Filter.Conditions {
			cond, err := makeCondition(cfg.OutputSchema, c)
			if err != nil {
				return nil, execerror.NewSetupError(err, "compiling scan filter", spec.TableName)
			}
			cfg.conditions = append(cfg.conditions, cond)
		}
	}
	return cfg, nil
}

// FileSchema returns the schema of the columns stored in the files.
func (c *ReaderConfig) FileSchema() coldata.Schema {
	s := make(coldata.Schema, len(c.FileColumns))
	for i, idx := range c.FileColumns {
		s[i] = c.OutputSchema[idx]
	}
	return s
}

// Finish fills the partition columns of a decoded batch with the constants
// of the split and applies the scan filter. It returns the number of rows
// removed by the filter.
func (c *ReaderConfig) Finish(split *execinfrapb.Split, b coldata.Batch) (int, error) {
	n := b.Length()
	for _, idx := range c.partitionCols {
		vec := b.ColVec(idx)
		f := c.OutputSchema[idx]
		v, err := partitionValue(split, f)
		if err != nil {
			return 0, err
		}
		if v == nil {
			vec.Nulls().SetNullRange(0, n)
			continue
		}
		vec.Nulls().UnsetNullRange(0, n)
		for i := 0; i < n; i++ {
			vec.Set(i, v)
		}
	}
	if len(c.conditions) == 0 || n == 0 {
		return 0, nil
	}
	return coldata.Compact(b, func(i int) bool {
		for j := range c.conditions {
			if !c.conditions[j].eval(b, i) {
				return false
			}
		}
		return true
	}), nil
}

func partitionValue(split *execinfrapb.Split, f coldata.Field) (interface{}, error) {
	for _, pv := range split.PartitionValues {
		if !strings.EqualFold(pv.Column, f.Name) {
			continue
		}
		if !pv.IsValid {
			return nil, nil
		}
		v, err := ParseConstant(f.Type, pv.Value)
		if err != nil {
			return nil, execerror.NewSetupError(err, "parsing partition value", redactableSplit(split))
		}
		return v, nil
	}
	return nil, nil
}

func redactableSplit(split *execinfrapb.Split) string {
	return "split " + strconv.FormatInt(split.SplitId, 10) + " " + split.Path
}

// ParseConstant parses s as a value of type t, in the form accepted by
// coldata.Vec.Set.
func ParseConstant(t *types.T, s string) (interface{}, error) {
	switch t.Family() {
	case types.BoolFamily:
		return strconv.ParseBool(s)
	case types.IntFamily:
		return strconv.ParseInt(s, 10, int(t.Width()))
	case types.FloatFamily:
		return strconv.ParseFloat(s, 64)
	case types.DecimalFamily:
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid decimal %q", s)
		}
		return d, nil
	case types.BytesFamily:
		return []byte(s), nil
	case types.StringFamily:
		return s, nil
	}
	return nil, errors.Errorf("unsupported constant type %s", t)
}

// condition is one compiled conjunct of a scan filter.
type condition struct {
	col int
	op  execinfrapb.FilterOp
	val coldata.Vec
	cmp colexeccmp.CompareFunc
}

func makeCondition(schema coldata.Schema, c *execinfrapb.FilterCondition) (condition, error) {
	idx := schema.ColumnIndex(c.Column)
	if idx < 0 {
		return condition{}, errors.Errorf("filter column %q is not scanned", c.Column)
	}
	cond := condition{col: idx, op: c.Op}
	if c.Op == execinfrapb.FilterOp_IS_NULL || c.Op == execinfrapb.FilterOp_IS_NOT_NULL {
		return cond, nil
	}
	t := schema[idx].Type
	v, err := ParseConstant(t, c.Value)
	if err != nil {
		return condition{}, errors.Wrapf(err, "filter on %q", c.Column)
	}
	cond.val = coldata.NewVec(t, 1)
	cond.val.Set(0, v)
	if cond.cmp, err = colexeccmp.MakeCompareFunc(t, t); err != nil {
		return condition{}, err
	}
	return cond, nil
}

func (c *condition) eval(b coldata.Batch, i int) bool {
	vec := b.ColVec(c.col)
	isNull := vec.Nulls().NullAt(i)
	switch c.op {
	case execinfrapb.FilterOp_IS_NULL:
		return isNull
	case execinfrapb.FilterOp_IS_NOT_NULL:
		return !isNull
	}
	if isNull {
		return false
	}
	r := c.cmp(vec, i, c.val, 0)
	switch c.op {
	case execinfrapb.FilterOp_EQ:
		return r == 0
	case execinfrapb.FilterOp_NE:
		return r != 0
	case execinfrapb.FilterOp_LT:
		return r < 0
	case execinfrapb.FilterOp_LE:
		return r <= 0
	case execinfrapb.FilterOp_GT:
		return r > 0
	case execinfrapb.FilterOp_GE:
		return r >= 0
	}
	return false
}

// filterList is an ordered list of runtime filters without duplicate IDs.
type filterList struct {
	ids     mapset.Set[uuid.UUID]
	filters []*runtimefilter.Filter
}

// add appends f and returns true if its ID was not seen before.
func (l *filterList) add(f *runtimefilter.Filter) bool {
	if l.ids == nil {
		l.ids = mapset.NewThreadUnsafeSet[uuid.UUID]()
	}
	if l.ids.Contains(f.ID) {
		return false
	}
	l.ids.Add(f.ID)
	l.filters = append(l.filters, f)
	return true
}

// all returns the filters in insertion order. The result is never nil.
func (l *filterList) all() []*runtimefilter.Filter {
	res := make([]*runtimefilter.Filter, len(l.filters))
	copy(res, l.filters)
	return res
}

func (l *filterList) reset() {
	l.ids = nil
	l.filters = nil
}

// ReaderBase implements the filter bookkeeping shared by readers. Readers
// embed it and call FinishBatch on every decoded batch.
type ReaderBase struct {
	Cfg   *ReaderConfig
	Split *execinfrapb.Split

	filters filterList
	// RowsFiltered counts the rows removed by the scan filter and runtime
	// filters.
	RowsFiltered int64
}

// MakeReaderBase returns a ReaderBase for the split.
func MakeReaderBase(cfg *ReaderConfig, split *execinfrapb.Split) ReaderBase {
	return ReaderBase{Cfg: cfg, Split: split}
}

// AddRuntimeFilter implements the RecordReader interface.
func (r *ReaderBase) AddRuntimeFilter(f *runtimefilter.Filter) {
	r.filters.add(f)
}

// RuntimeFilters returns the filters applied by this reader.
func (r *ReaderBase) RuntimeFilters() []*runtimefilter.Filter {
	return r.filters.all()
}

// FinishBatch post-processes a decoded batch: partition constants, the scan
// filter, then every runtime filter.
func (r *ReaderBase) FinishBatch(b coldata.Batch) error {
	removed, err := r.Cfg.Finish(r.Split, b)
	if err != nil {
		return err
	}
	r.RowsFiltered += int64(removed)
	for _, f := range r.filters.filters {
		if b.Length() == 0 {
			break
		}
		r.RowsFiltered += int64(f.Apply(b))
	}
	return nil
}

// FilteredRows returns RowsFiltered.
func (r *ReaderBase) FilteredRows() int64 { return r.RowsFiltered }
