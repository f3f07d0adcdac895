// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execinfrapb contains the descriptors that travel with a physical
// plan: scan specs, splits and the extended table properties that select a
// reader. The messages are plain gogo/protobuf messages.
package execinfrapb

import (
	"github.com/cockroachdb/redact"
	"github.com/gogo/protobuf/proto"
)

// ReaderType selects how the splits of a table are read.
type ReaderType int32

const (
	// ReaderType_NATIVE_PARQUET reads every split with the native parquet
	// reader.
	ReaderType_NATIVE_PARQUET ReaderType = 0
	// ReaderType_BASIC picks a reader per split based on its input format.
	ReaderType_BASIC ReaderType = 1
)

var ReaderType_name = map[int32]string{
	0: "NATIVE_PARQUET",
	1: "BASIC",
}

var ReaderType_value = map[string]int32{
	"NATIVE_PARQUET": 0,
	"BASIC":          1,
}

func (x ReaderType) String() string {
	return proto.EnumName(ReaderType_name, int32(x))
}

// SafeValue implements redact.SafeValue.
func (ReaderType) SafeValue() {}

// FileFormat is the physical format of the files of a table or partition. The
// ordinal of a format is its bit in the scan's file format statistic.
type FileFormat int32

const (
	FileFormat_UNKNOWN FileFormat = 0
	FileFormat_PARQUET FileFormat = 1
	FileFormat_AVRO    FileFormat = 2
	FileFormat_ORC     FileFormat = 3
	FileFormat_TEXT    FileFormat = 4
)

var FileFormat_name = map[int32]string{
	0: "UNKNOWN",
	1: "PARQUET",
	2: "AVRO",
	3: "ORC",
	4: "TEXT",
}

var FileFormat_value = map[string]int32{
	"UNKNOWN": 0,
	"PARQUET": 1,
	"AVRO":    2,
	"ORC":     3,
	"TEXT":    4,
}

func (x FileFormat) String() string {
	return proto.EnumName(FileFormat_name, int32(x))
}

// SafeValue implements redact.SafeValue.
func (FileFormat) SafeValue() {}

// PartitionValue is the value of one partition column for the files of a
// split. An absent value denotes NULL.
type PartitionValue struct {
	Column  string `protobuf:"bytes,1,opt,name=column,proto3" json:"column,omitempty"`
	Value   string `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
	IsValid bool   `protobuf:"varint,3,opt,name=is_valid,json=isValid,proto3" json:"is_valid,omitempty"`
}

func (m *PartitionValue) Reset()         { *m = PartitionValue{} }
func (m *PartitionValue) String() string { return proto.CompactTextString(m) }
func (*PartitionValue) ProtoMessage()    {}

// PartitionXattr carries the extended properties of one partition.
type PartitionXattr struct {
	InputFormat FileFormat `protobuf:"varint,1,opt,name=input_format,json=inputFormat,proto3,enum=vexec.execinfrapb.FileFormat" json:"input_format,omitempty"`
}

func (m *PartitionXattr) Reset()         { *m = PartitionXattr{} }
func (m *PartitionXattr) String() string { return proto.CompactTextString(m) }
func (*PartitionXattr) ProtoMessage()    {}

// Split is one unit of scan work: a byte range of a file plus the partition
// it belongs to. A split is consumed by exactly one reader.
type Split struct {
	SplitId         int64             `protobuf:"varint,1,opt,name=split_id,json=splitId,proto3" json:"split_id,omitempty"`
	Path            string            `protobuf:"bytes,2,opt,name=path,proto3" json:"path,omitempty"`
	Start           int64             `protobuf:"varint,3,opt,name=start,proto3" json:"start,omitempty"`
	Length          int64             `protobuf:"varint,4,opt,name=length,proto3" json:"length,omitempty"`
	PartitionValues []*PartitionValue `protobuf:"bytes,5,rep,name=partition_values,json=partitionValues" json:"partition_values,omitempty"`
	PartitionXattr  *PartitionXattr   `protobuf:"bytes,6,opt,name=partition_xattr,json=partitionXattr" json:"partition_xattr,omitempty"`
}

func (m *Split) Reset()         { *m = Split{} }
func (m *Split) String() string { return proto.CompactTextString(m) }
func (*Split) ProtoMessage()    {}

// SafeFormat implements redact.SafeFormatter. The path is user data.
func (m *Split) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("split %d %s", redact.Safe(m.SplitId), m.Path)
}

// TableXattr carries the extended properties of a table. It is stored
// serialized in ScanSpec.ExtendedProperty.
type TableXattr struct {
	ReaderType  ReaderType `protobuf:"varint,1,opt,name=reader_type,json=readerType,proto3,enum=vexec.execinfrapb.ReaderType" json:"reader_type,omitempty"`
	InputFormat FileFormat `protobuf:"varint,2,opt,name=input_format,json=inputFormat,proto3,enum=vexec.execinfrapb.FileFormat" json:"input_format,omitempty"`
}

func (m *TableXattr) Reset()         { *m = TableXattr{} }
func (m *TableXattr) String() string { return proto.CompactTextString(m) }
func (*TableXattr) ProtoMessage()    {}

// PartitionInputFormat returns the input format of the partition if it has
// one, and the input format of the table otherwise.
func (m *TableXattr) PartitionInputFormat(p *PartitionXattr) FileFormat {
	if p != nil && p.InputFormat != FileFormat_UNKNOWN {
		return p.InputFormat
	}
	return m.InputFormat
}

func init() {
	proto.RegisterEnum("vexec.execinfrapb.ReaderType", ReaderType_name, ReaderType_value)
	proto.RegisterEnum("vexec.execinfrapb.FileFormat", FileFormat_name, FileFormat_value)
	proto.RegisterType((*PartitionValue)(nil), "vexec.execinfrapb.PartitionValue")
	proto.RegisterType((*PartitionXattr)(nil), "vexec.execinfrapb.PartitionXattr")
	proto.RegisterType((*Split)(nil), "vexec.execinfrapb.Split")
	proto.RegisterType((*TableXattr)(nil), "vexec.execinfrapb.TableXattr")
}
