// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execinfrapb

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/gogo/protobuf/proto"
)

// JoinType is the type of a join.
type JoinType int32

const (
	JoinType_INNER       JoinType = 0
	JoinType_LEFT_OUTER  JoinType = 1
	JoinType_RIGHT_OUTER JoinType = 2
	JoinType_FULL_OUTER  JoinType = 3
)

var JoinType_name = map[int32]string{
	0: "INNER",
	1: "LEFT_OUTER",
	2: "RIGHT_OUTER",
	3: "FULL_OUTER",
}

var JoinType_value = map[string]int32{
	"INNER":       0,
	"LEFT_OUTER":  1,
	"RIGHT_OUTER": 2,
	"FULL_OUTER":  3,
}

func (x JoinType) String() string {
	return proto.EnumName(JoinType_name, int32(x))
}

// SafeValue implements redact.SafeValue.
func (JoinType) SafeValue() {}

// EmitLeftUnmatched returns whether left rows without a match are emitted.
func (x JoinType) EmitLeftUnmatched() bool {
	return x == JoinType_LEFT_OUTER || x == JoinType_FULL_OUTER
}

// EmitRightUnmatched returns whether right rows without a match are emitted.
func (x JoinType) EmitRightUnmatched() bool {
	return x == JoinType_RIGHT_OUTER || x == JoinType_FULL_OUTER
}

// OutputSchema returns the schema of the join output: the left columns
// followed by the right columns. Columns of a side that may be absent from an
// output row are nullable regardless of their source nullability.
func (x JoinType) OutputSchema(left, right coldata.Schema) coldata.Schema {
	return left.WithNullable(x.EmitRightUnmatched()).Concat(right.WithNullable(x.EmitLeftUnmatched()))
}

// Comparator is the comparison semantic of a join condition.
type Comparator int32

const (
	// Comparator_EQUALS follows SQL semantics: NULL never equals anything.
	Comparator_EQUALS Comparator = 0
	// Comparator_IS_NOT_DISTINCT_FROM considers two NULLs equal.
	Comparator_IS_NOT_DISTINCT_FROM Comparator = 1
)

var Comparator_name = map[int32]string{
	0: "EQUALS",
	1: "IS_NOT_DISTINCT_FROM",
}

var Comparator_value = map[string]int32{
	"EQUALS":               0,
	"IS_NOT_DISTINCT_FROM": 1,
}

func (x Comparator) String() string {
	return proto.EnumName(Comparator_name, int32(x))
}

// JoinCondition pairs a left key column with a right key column.
type JoinCondition struct {
	LeftColumn  uint32     `protobuf:"varint,1,opt,name=left_column,json=leftColumn,proto3" json:"left_column,omitempty"`
	RightColumn uint32     `protobuf:"varint,2,opt,name=right_column,json=rightColumn,proto3" json:"right_column,omitempty"`
	Comparator  Comparator `protobuf:"varint,3,opt,name=comparator,proto3,enum=vexec.execinfrapb.Comparator" json:"comparator,omitempty"`
}

func (m *JoinCondition) Reset()         { *m = JoinCondition{} }
func (m *JoinCondition) String() string { return proto.CompactTextString(m) }
func (*JoinCondition) ProtoMessage()    {}

// MergeJoinerSpec is the configuration of a merge join. Both inputs must be
// sorted ascending on their key columns, with NULLs last.
type MergeJoinerSpec struct {
	Type       JoinType         `protobuf:"varint,1,opt,name=type,proto3,enum=vexec.execinfrapb.JoinType" json:"type,omitempty"`
	Conditions []*JoinCondition `protobuf:"bytes,2,rep,name=conditions" json:"conditions,omitempty"`
}

func (m *MergeJoinerSpec) Reset()         { *m = MergeJoinerSpec{} }
func (m *MergeJoinerSpec) String() string { return proto.CompactTextString(m) }
func (*MergeJoinerSpec) ProtoMessage()    {}

func init() {
	proto.RegisterEnum("vexec.execinfrapb.JoinType", JoinType_name, JoinType_value)
	proto.RegisterEnum("vexec.execinfrapb.Comparator", Comparator_name, Comparator_value)
	proto.RegisterType((*JoinCondition)(nil), "vexec.execinfrapb.JoinCondition")
	proto.RegisterType((*MergeJoinerSpec)(nil), "vexec.execinfrapb.MergeJoinerSpec")
}
