// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/physicalplan"
	"github.com/cockroachdb/vexec/pkg/util/protoutil"
	"gopkg.in/yaml.v2"
)

// planFile is the YAML document read by "vexec run". It declares the tables
// and the plan that reads them, for example:
//
//	tables:
//	  orders:
//	    reader: basic
//	    format: parquet
//	    columns:
//	      - {name: id, type: INT8}
//	      - {name: note, type: STRING, nullable: true}
//	    files:
//	      - path: /data/orders/0.parquet
//	plan:
//	  limit:
//	    count: 10
//	    input:
//	      scan: {table: orders}
type planFile struct {
	Tables   map[string]*tableDef `yaml:"tables"`
	Plan     *planNode            `yaml:"plan"`
	Settings map[string]string    `yaml:"settings"`
}

type columnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

type fileDef struct {
	Path   string `yaml:"path"`
	Start  int64  `yaml:"start"`
	Length int64  `yaml:"length"`
	// Format overrides the format of the table for this file.
	Format string `yaml:"format"`
	// Partition maps partition columns to their value in this file. A
	// partition column missing from the map is NULL.
	Partition map[string]string `yaml:"partition"`
}

type tableDef struct {
	Reader           string      `yaml:"reader"`
	Format           string      `yaml:"format"`
	Columns          []columnDef `yaml:"columns"`
	PartitionColumns []string    `yaml:"partition_columns"`
	Files            []fileDef   `yaml:"files"`
}

type filterDef struct {
	Column string `yaml:"column"`
	Op     string `yaml:"op"`
	Value  string `yaml:"value"`
}

type scanNode struct {
	Table   string      `yaml:"table"`
	Columns []string    `yaml:"columns"`
	Filter  []filterDef `yaml:"filter"`
}

type projectNode struct {
	Columns []int     `yaml:"columns"`
	Input   *planNode `yaml:"input"`
}

type limitNode struct {
	Offset int64     `yaml:"offset"`
	Count  int64     `yaml:"count"`
	Input  *planNode `yaml:"input"`
}

type joinCondDef struct {
	Left        uint32 `yaml:"left"`
	Right       uint32 `yaml:"right"`
	NotDistinct bool   `yaml:"not_distinct"`
}

type mergeJoinNode struct {
	Type  string        `yaml:"type"`
	On    []joinCondDef `yaml:"on"`
	Left  *planNode     `yaml:"left"`
	Right *planNode     `yaml:"right"`
}

// planNode holds exactly one operator.
type planNode struct {
	Scan      *scanNode      `yaml:"scan"`
	Project   *projectNode   `yaml:"project"`
	Limit     *limitNode     `yaml:"limit"`
	MergeJoin *mergeJoinNode `yaml:"merge_join"`
	UnionAll  []*planNode    `yaml:"union_all"`
}

func parsePlanFile(data []byte) (*planFile, error) {
	var pf planFile
	if err := yaml.UnmarshalStrict(data, &pf); err != nil {
		return nil, errors.Wrap(err, "parsing plan file")
	}
	if pf.Plan == nil {
		return nil, errors.New("plan file has no plan")
	}
	return &pf, nil
}

func enumValue(kind string, values map[string]int32, s string) (int32, error) {
	v, ok := values[strings.ToUpper(s)]
	if !ok {
		return 0, errors.Newf("unknown %s %q", kind, s)
	}
	return v, nil
}

// planBuilder turns plan nodes into physical operators. Every operator gets
// a distinct ID in build order.
type planBuilder struct {
	tables map[string]*tableDef
	nextID int32
}

func (pf *planFile) physicalPlan() (physicalplan.PhysicalOperator, error) {
	b := &planBuilder{tables: pf.Tables}
	return b.build(pf.Plan)
}

func (b *planBuilder) props() physicalplan.OpProps {
	b.nextID++
	return physicalplan.OpProps{OperatorID: b.nextID}
}

func (b *planBuilder) build(n *planNode) (physicalplan.PhysicalOperator, error) {
	if n == nil {
		return nil, errors.New("missing plan node")
	}
	set := 0
	for _, isSet := range []bool{n.Scan != nil, n.Project != nil, n.Limit != nil, n.MergeJoin != nil, n.UnionAll != nil} {
		if isSet {
			set++
		}
	}
	if set != 1 {
		return nil, errors.Newf("a plan node must have exactly one operator, found %d", set)
	}
	switch {
	case n.Scan != nil:
		spec, err := b.scanSpec(n.Scan)
		if err != nil {
			return nil, err
		}
		return physicalplan.NewScan(spec, b.props())

	case n.Project != nil:
		input, err := b.build(n.Project.Input)
		if err != nil {
			return nil, err
		}
		return physicalplan.NewProject(input, n.Project.Columns, b.props())

	case n.Limit != nil:
		input, err := b.build(n.Limit.Input)
		if err != nil {
			return nil, err
		}
		return physicalplan.NewLimit(input, n.Limit.Offset, n.Limit.Count, b.props())

	case n.MergeJoin != nil:
		j := n.MergeJoin
		left, err := b.build(j.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.build(j.Right)
		if err != nil {
			return nil, err
		}
		spec := execinfrapb.MergeJoinerSpec{}
		if j.Type != "" {
			typ, err := enumValue("join type", execinfrapb.JoinType_value, j.Type)
			if err != nil {
				return nil, err
			}
			spec.Type = execinfrapb.JoinType(typ)
		}
		for _, c := range j.On {
			cmp := execinfrapb.Comparator_EQUALS
			if c.NotDistinct {
				cmp = execinfrapb.Comparator_IS_NOT_DISTINCT_FROM
			}
			spec.Conditions = append(spec.Conditions, &execinfrapb.JoinCondition{
				LeftColumn: c.Left, RightColumn: c.Right, Comparator: cmp,
			})
		}
		return physicalplan.NewMergeJoin(left, right, spec, b.props())

	default:
		inputs := make([]physicalplan.PhysicalOperator, len(n.UnionAll))
		for i, in := range n.UnionAll {
			var err error
			if inputs[i], err = b.build(in); err != nil {
				return nil, err
			}
		}
		return physicalplan.NewUnionAll(inputs, b.props())
	}
}

func (b *planBuilder) scanSpec(n *scanNode) (*execinfrapb.ScanSpec, error) {
	t, ok := b.tables[n.Table]
	if !ok {
		return nil, errors.Newf("unknown table %q", n.Table)
	}
	spec := physicalplan.NewScanSpec(n.Table)
	for _, c := range t.Columns {
		spec.Schema = append(spec.Schema, &execinfrapb.ColumnSpec{Name: c.Name, Type: c.Type, Nullable: c.Nullable})
	}
	spec.Columns = append(spec.Columns, n.Columns...)
	spec.PartitionColumns = t.PartitionColumns

	xattr := &execinfrapb.TableXattr{ReaderType: execinfrapb.ReaderType_BASIC}
	if t.Reader != "" {
		v, err := enumValue("reader type", execinfrapb.ReaderType_value, t.Reader)
		if err != nil {
			return nil, err
		}
		xattr.ReaderType = execinfrapb.ReaderType(v)
	}
	if t.Format != "" {
		v, err := enumValue("file format", execinfrapb.FileFormat_value, t.Format)
		if err != nil {
			return nil, err
		}
		xattr.InputFormat = execinfrapb.FileFormat(v)
	}
	var err error
	if spec.ExtendedProperty, err = protoutil.Marshal(xattr); err != nil {
		return nil, err
	}

	if len(n.Filter) > 0 {
		spec.Filter = &execinfrapb.ScanFilter{}
		for _, f := range n.Filter {
			op, err := enumValue("filter op", execinfrapb.FilterOp_value, f.Op)
			if err != nil {
				return nil, err
			}
			spec.Filter.Conditions = append(spec.Filter.Conditions, &execinfrapb.FilterCondition{
				Column: f.Column, Op: execinfrapb.FilterOp(op), Value: f.Value,
			})
		}
	}

	for i, f := range t.Files {
		split := &execinfrapb.Split{SplitId: int64(i + 1), Path: f.Path, Start: f.Start, Length: f.Length}
		if f.Format != "" {
			v, err := enumValue("file format", execinfrapb.FileFormat_value, f.Format)
			if err != nil {
				return nil, err
			}
			split.PartitionXattr = &execinfrapb.PartitionXattr{InputFormat: execinfrapb.FileFormat(v)}
		}
		for _, col := range t.PartitionColumns {
			v, ok := f.Partition[col]
			split.PartitionValues = append(split.PartitionValues, &execinfrapb.PartitionValue{
				Column: col, Value: v, IsValid: ok,
			})
		}
		spec.Splits = append(spec.Splits, split)
	}
	return spec, nil
}
