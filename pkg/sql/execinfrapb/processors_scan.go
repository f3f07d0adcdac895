// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execinfrapb

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/gogo/protobuf/proto"
)

// ColumnSpec describes one column of a table.
type ColumnSpec struct {
	Name     string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Type     string `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	Nullable bool   `protobuf:"varint,3,opt,name=nullable,proto3" json:"nullable,omitempty"`
}

func (m *ColumnSpec) Reset()         { *m = ColumnSpec{} }
func (m *ColumnSpec) String() string { return proto.CompactTextString(m) }
func (*ColumnSpec) ProtoMessage()    {}

// TablePath is the fully qualified name of a table, one element per
// namespace level.
type TablePath struct {
	Parts []string `protobuf:"bytes,1,rep,name=parts" json:"parts,omitempty"`
}

func (m *TablePath) Reset()         { *m = TablePath{} }
func (m *TablePath) String() string { return strings.Join(m.Parts, ".") }
func (*TablePath) ProtoMessage()    {}

// FilterOp is the comparison of a FilterCondition.
type FilterOp int32

const (
	FilterOp_EQ          FilterOp = 0
	FilterOp_NE          FilterOp = 1
	FilterOp_LT          FilterOp = 2
	FilterOp_LE          FilterOp = 3
	FilterOp_GT          FilterOp = 4
	FilterOp_GE          FilterOp = 5
	FilterOp_IS_NULL     FilterOp = 6
	FilterOp_IS_NOT_NULL FilterOp = 7
)

var FilterOp_name = map[int32]string{
	0: "EQ",
	1: "NE",
	2: "LT",
	3: "LE",
	4: "GT",
	5: "GE",
	6: "IS_NULL",
	7: "IS_NOT_NULL",
}

var FilterOp_value = map[string]int32{
	"EQ":          0,
	"NE":          1,
	"LT":          2,
	"LE":          3,
	"GT":          4,
	"GE":          5,
	"IS_NULL":     6,
	"IS_NOT_NULL": 7,
}

func (x FilterOp) String() string {
	return proto.EnumName(FilterOp_name, int32(x))
}

// FilterCondition compares one column against a constant. The constant is
// parsed according to the column's type.
type FilterCondition struct {
	Column string   `protobuf:"bytes,1,opt,name=column,proto3" json:"column,omitempty"`
	Op     FilterOp `protobuf:"varint,2,opt,name=op,proto3,enum=vexec.execinfrapb.FilterOp" json:"op,omitempty"`
	Value  string   `protobuf:"bytes,3,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *FilterCondition) Reset()         { *m = FilterCondition{} }
func (m *FilterCondition) String() string { return proto.CompactTextString(m) }
func (*FilterCondition) ProtoMessage()    {}

// ScanFilter is a conjunction of conditions pushed into the readers.
type ScanFilter struct {
	Conditions []*FilterCondition `protobuf:"bytes,1,rep,name=conditions" json:"conditions,omitempty"`
}

func (m *ScanFilter) Reset()         { *m = ScanFilter{} }
func (m *ScanFilter) String() string { return proto.CompactTextString(m) }
func (*ScanFilter) ProtoMessage()    {}

// ScanSpec is the configuration of a table scan.
type ScanSpec struct {
	TableName string `protobuf:"bytes,1,opt,name=table_name,json=tableName,proto3" json:"table_name,omitempty"`
	// Schema is the full schema of the table, partition columns included.
	Schema           []*ColumnSpec `protobuf:"bytes,2,rep,name=schema" json:"schema,omitempty"`
	ReferencedTables []*TablePath  `protobuf:"bytes,3,rep,name=referenced_tables,json=referencedTables" json:"referenced_tables,omitempty"`
	// Columns is the projection, in output order. Empty means all columns.
	Columns          []string    `protobuf:"bytes,4,rep,name=columns" json:"columns,omitempty"`
	PartitionColumns []string    `protobuf:"bytes,5,rep,name=partition_columns,json=partitionColumns" json:"partition_columns,omitempty"`
	Filter           *ScanFilter `protobuf:"bytes,6,opt,name=filter" json:"filter,omitempty"`
	// ExtendedProperty is a serialized TableXattr.
	ExtendedProperty []byte   `protobuf:"bytes,7,opt,name=extended_property,json=extendedProperty,proto3" json:"extended_property,omitempty"`
	Splits           []*Split `protobuf:"bytes,8,rep,name=splits" json:"splits,omitempty"`
}

func (m *ScanSpec) Reset()         { *m = ScanSpec{} }
func (m *ScanSpec) String() string { return proto.CompactTextString(m) }
func (*ScanSpec) ProtoMessage()    {}

// TableSchema resolves the column specs into a schema.
func (m *ScanSpec) TableSchema() (coldata.Schema, error) {
	if len(m.Schema) == 0 {
		return nil, errors.Newf("table %q has no columns", m.TableName)
	}
	s := make(coldata.Schema, len(m.Schema))
	for i, c := range m.Schema {
		t, err := types.FromName(c.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", c.Name)
		}
		s[i] = coldata.Field{Name: c.Name, Type: t, Nullable: c.Nullable}
	}
	return s, nil
}

func init() {
	proto.RegisterEnum("vexec.execinfrapb.FilterOp", FilterOp_name, FilterOp_value)
	proto.RegisterType((*ColumnSpec)(nil), "vexec.execinfrapb.ColumnSpec")
	proto.RegisterType((*TablePath)(nil), "vexec.execinfrapb.TablePath")
	proto.RegisterType((*FilterCondition)(nil), "vexec.execinfrapb.FilterCondition")
	proto.RegisterType((*ScanFilter)(nil), "vexec.execinfrapb.ScanFilter")
	proto.RegisterType((*ScanSpec)(nil), "vexec.execinfrapb.ScanSpec")
}
