// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colserde

import (
	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/types"
)

// ArrowBatchConverter converts batches to arrow records and back. Batches
// produced by ArrowToBatch never alias arrow buffers, so records can be
// released as soon as the conversion returns.
type ArrowBatchConverter struct {
	schema      coldata.Schema
	arrowSchema *arrow.Schema
	mem         memory.Allocator
}

// NewArrowBatchConverter converts batches with the given schema. Arrow
// buffers allocated by BatchToArrow come from mem; a nil mem uses the default
// Go allocator.
func NewArrowBatchConverter(
	schema coldata.Schema, mem memory.Allocator,
) (*ArrowBatchConverter, error) {
	if err := typeconv.AreTypesSupported(schema.Types()); err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fields := make([]arrow.Field, len(schema))
	for i := range schema {
		dt, err := ToArrowType(schema[i].Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{
			Name:     schema[i].Name,
			Type:     dt,
			Nullable: schema[i].Nullable,
			Metadata: arrow.NewMetadata([]string{sqlTypeKey}, []string{schema[i].Type.SQLString()}),
		}
	}
	return &ArrowBatchConverter{
		schema:      schema,
		arrowSchema: arrow.NewSchema(fields, nil /* metadata */),
		mem:         mem,
	}, nil
}

// ArrowSchema returns the arrow schema matching the converter's batches.
func (c *ArrowBatchConverter) ArrowSchema() *arrow.Schema {
	return c.arrowSchema
}

// sqlTypeKey is the arrow field metadata key under which the SQL type of a
// column is recorded, so that files written by FileSerializer decode back to
// the same types.
const sqlTypeKey = "vexec.sql_type"

// ToArrowType returns the arrow type used to represent t. Decimals travel as
// their text representation.
func ToArrowType(t *types.T) (arrow.DataType, error) {
	switch t.Family() {
	case types.BoolFamily:
		return arrow.FixedWidthTypes.Boolean, nil
	case types.IntFamily:
		switch t.Width() {
		case 16:
			return arrow.PrimitiveTypes.Int16, nil
		case 32:
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case types.FloatFamily:
		if t.Width() == 32 {
			return arrow.PrimitiveTypes.Float32, nil
		}
		return arrow.PrimitiveTypes.Float64, nil
	case types.DecimalFamily:
		return arrow.BinaryTypes.String, nil
	case types.BytesFamily:
		return arrow.BinaryTypes.Binary, nil
	case types.StringFamily:
		return arrow.BinaryTypes.String, nil
	}
	return nil, errors.Errorf("unsupported type %s", t)
}

// FromArrowType returns the SQL type that values of the arrow type decode to.
func FromArrowType(dt arrow.DataType) (*types.T, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return types.Bool, nil
	case arrow.INT8, arrow.INT16, arrow.UINT8:
		return types.Int2, nil
	case arrow.INT32, arrow.UINT16:
		return types.Int4, nil
	case arrow.INT64, arrow.UINT32:
		return types.Int, nil
	case arrow.FLOAT32:
		return types.Float4, nil
	case arrow.FLOAT64:
		return types.Float, nil
	case arrow.DECIMAL128:
		return types.Decimal, nil
	case arrow.STRING:
		return types.String, nil
	case arrow.BINARY, arrow.FIXED_SIZE_BINARY:
		return types.Bytes, nil
	}
	return nil, errors.Errorf("unsupported arrow type %s", dt)
}

// SchemaFromArrow derives a batch schema from an arrow schema.
func SchemaFromArrow(s *arrow.Schema) (coldata.Schema, error) {
	res := make(coldata.Schema, len(s.Fields()))
	for i, f := range s.Fields() {
		if idx := f.Metadata.FindKey(sqlTypeKey); idx >= 0 {
			t, err := types.FromName(f.Metadata.Values()[idx])
			if err != nil {
				return nil, errors.Wrapf(err, "column %q", f.Name)
			}
			res[i] = coldata.Field{Name: f.Name, Type: t, Nullable: f.Nullable}
			continue
		}
		t, err := FromArrowType(f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", f.Name)
		}
		res[i] = coldata.Field{Name: f.Name, Type: t, Nullable: f.Nullable}
	}
	return res, nil
}

// BatchToArrow converts the first b.Length() rows of the batch into an arrow
// record. The caller owns the record and must Release it.
func (c *ArrowBatchConverter) BatchToArrow(b coldata.Batch) (arrow.Record, error) {
	if b.Width() != len(c.schema) {
		return nil, errors.AssertionFailedf(
			"mismatched batch width and schema length: %d != %d", b.Width(), len(c.schema))
	}
	rb := array.NewRecordBuilder(c.mem, c.arrowSchema)
	defer rb.Release()
	n := b.Length()
	for colIdx, vec := range b.ColVecs() {
		nulls := vec.Nulls()
		switch fb := rb.Field(colIdx).(type) {
		case *array.BooleanBuilder:
			col := vec.Bool()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(col[i])
				}
			}
		case *array.Int16Builder:
			col := vec.Int64()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(int16(col[i]))
				}
			}
		case *array.Int32Builder:
			col := vec.Int64()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(int32(col[i]))
				}
			}
		case *array.Int64Builder:
			col := vec.Int64()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(col[i])
				}
			}
		case *array.Float32Builder:
			col := vec.Float64()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(float32(col[i]))
				}
			}
		case *array.Float64Builder:
			col := vec.Float64()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(col[i])
				}
			}
		case *array.StringBuilder:
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else if vec.CanonicalTypeFamily() == types.DecimalFamily {
					fb.Append(vec.Decimal()[i].String())
				} else {
					fb.Append(string(vec.Bytes()[i]))
				}
			}
		case *array.BinaryBuilder:
			col := vec.Bytes()
			for i := 0; i < n; i++ {
				if nulls.NullAt(i) {
					fb.AppendNull()
				} else {
					fb.Append(col[i])
				}
			}
		default:
			return nil, errors.AssertionFailedf("unexpected arrow builder %T", fb)
		}
	}
	return rb.NewRecord(), nil
}

// ArrowToBatch copies the record into b, which must have one column per
// record column with a matching canonical family and enough capacity. The
// batch length is set to the number of rows in the record.
func (c *ArrowBatchConverter) ArrowToBatch(rec arrow.Record, b coldata.Batch) error {
	return ArrowToBatch(rec, b)
}

// ArrowToBatch is the schema-agnostic form of ArrowBatchConverter.ArrowToBatch,
// used by readers that learn the arrow schema from the file.
func ArrowToBatch(rec arrow.Record, b coldata.Batch) error {
	if int(rec.NumCols()) != b.Width() {
		return errors.AssertionFailedf(
			"mismatched record width and batch width: %d != %d", rec.NumCols(), b.Width())
	}
	cols := make([]int, b.Width())
	for i := range cols {
		cols[i] = i
	}
	return ArrowToBatchColumns(rec, b, cols)
}

// ArrowToBatchColumns decodes column i of the record into column cols[i] of
// the batch. The other columns of the batch are reset and left for the
// caller to fill.
func ArrowToBatchColumns(rec arrow.Record, b coldata.Batch, cols []int) error {
	n := int(rec.NumRows())
	if int(rec.NumCols()) != len(cols) {
		return errors.AssertionFailedf(
			"mismatched record width and column count: %d != %d", rec.NumCols(), len(cols))
	}
	if n > b.Capacity() {
		return errors.AssertionFailedf("record of %d rows exceeds batch capacity %d", n, b.Capacity())
	}
	b.Reset()
	for i, colIdx := range cols {
		if err := arrowToVec(rec.Column(i), b.ColVec(colIdx), n); err != nil {
			return errors.Wrapf(err, "column %q", rec.ColumnName(i))
		}
	}
	b.SetLength(n)
	return nil
}

func arrowToVec(arr arrow.Array, vec coldata.Vec, n int) error {
	from, err := FromArrowType(arr.DataType())
	if err != nil {
		return err
	}
	if fromFamily := typeconv.CanonicalFamily(from); fromFamily != vec.CanonicalTypeFamily() &&
		!(from.Family() == types.StringFamily && vec.CanonicalTypeFamily() == types.DecimalFamily) {
		return errors.Errorf("cannot decode %s into a %s column", arr.DataType(), vec.Type())
	}
	nulls := vec.Nulls()
	if arr.NullN() > 0 {
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				nulls.SetNull(i)
			}
		}
	}
	switch a := arr.(type) {
	case *array.Boolean:
		col := vec.Bool()
		for i := 0; i < n; i++ {
			col[i] = a.Value(i)
		}
	case *array.Int8:
		col := vec.Int64()
		for i := 0; i < n; i++ {
			col[i] = int64(a.Value(i))
		}
	case *array.Uint8:
		col := vec.Int64()
		for i := 0; i < n; i++ {
			col[i] = int64(a.Value(i))
		}
	case *array.Int16:
		col := vec.Int64()
		for i, v := range a.Int16Values()[:n] {
			col[i] = int64(v)
		}
	case *array.Uint16:
		col := vec.Int64()
		for i, v := range a.Uint16Values()[:n] {
			col[i] = int64(v)
		}
	case *array.Int32:
		col := vec.Int64()
		for i, v := range a.Int32Values()[:n] {
			col[i] = int64(v)
		}
	case *array.Uint32:
		col := vec.Int64()
		for i, v := range a.Uint32Values()[:n] {
			col[i] = int64(v)
		}
	case *array.Int64:
		copy(vec.Int64(), a.Int64Values()[:n])
	case *array.Float32:
		col := vec.Float64()
		for i, v := range a.Float32Values()[:n] {
			col[i] = float64(v)
		}
	case *array.Float64:
		copy(vec.Float64(), a.Float64Values()[:n])
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		col := vec.Decimal()
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				continue
			}
			coeff := new(apd.BigInt).SetMathBigInt(a.Value(i).BigInt())
			col[i].Set(apd.NewWithBigInt(coeff, -scale))
		}
	case *array.String:
		if vec.CanonicalTypeFamily() == types.DecimalFamily {
			col := vec.Decimal()
			for i := 0; i < n; i++ {
				if arr.IsNull(i) {
					continue
				}
				if _, _, err := col[i].SetString(a.Value(i)); err != nil {
					return errors.Wrapf(err, "parsing decimal at row %d", i)
				}
			}
			break
		}
		col := vec.Bytes()
		for i := 0; i < n; i++ {
			col[i] = append(col[i][:0], a.Value(i)...)
		}
	case *array.Binary:
		col := vec.Bytes()
		for i := 0; i < n; i++ {
			col[i] = append(col[i][:0], a.Value(i)...)
		}
	case *array.FixedSizeBinary:
		col := vec.Bytes()
		for i := 0; i < n; i++ {
			col[i] = append(col[i][:0], a.Value(i)...)
		}
	default:
		return errors.Errorf("unsupported arrow array %s", arr.DataType())
	}
	return nil
}
