// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colbuilder turns a physical plan into a tree of executable
// operators.
package colbuilder

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/sql/colexec"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecbase"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecjoin"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexecscan"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/sql/physicalplan"
	"github.com/cockroachdb/vexec/pkg/storage/colavro"
	"github.com/cockroachdb/vexec/pkg/storage/colparquet"
	"github.com/cockroachdb/vexec/pkg/util/log"
)

// DefaultRegistry returns the readers available to every scan: the native
// parquet reader and the generic avro reader.
func DefaultRegistry() colexecscan.Registry {
	reg := colexecscan.Registry{}
	colparquet.Register(reg)
	colavro.Register(reg)
	return reg
}

// opBuilder accumulates the operators created for one plan so that they can
// be released if a later operator fails to build.
type opBuilder struct {
	flowCtx  *execinfra.FlowCtx
	registry colexecscan.Registry
	built    []colexecop.Operator
	scans    []*colexecscan.ScanOp
}

// NewColOperator builds the executable operator tree of plan. It returns the
// root and the scans of the tree, in plan order, so that the caller can hand
// them more splits and runtime filters. On error every operator built so far
// is closed.
func NewColOperator(
	ctx context.Context, flowCtx *execinfra.FlowCtx, plan physicalplan.PhysicalOperator,
) (colexecop.Operator, []*colexecscan.ScanOp, error) {
	return NewColOperatorWithRegistry(ctx, flowCtx, plan, DefaultRegistry())
}

// NewColOperatorWithRegistry is like NewColOperator but resolves readers in
// the given registry.
func NewColOperatorWithRegistry(
	ctx context.Context,
	flowCtx *execinfra.FlowCtx,
	plan physicalplan.PhysicalOperator,
	registry colexecscan.Registry,
) (colexecop.Operator, []*colexecscan.ScanOp, error) {
	b := &opBuilder{flowCtx: flowCtx, registry: registry}
	root, err := b.build(ctx, plan)
	if err != nil {
		for i := len(b.built) - 1; i >= 0; i-- {
			if closeErr := b.built[i].Close(ctx); closeErr != nil {
				log.Warningf(ctx, "closing %T after failed build: %v", b.built[i], closeErr)
			}
		}
		return nil, nil, err
	}
	log.VEventf(ctx, 1, "built operator tree for plan\n%s", physicalplan.Format(plan))
	return root, b.scans, nil
}

func componentName(op physicalplan.PhysicalOperator) string {
	if id := op.Props().OperatorID; id != 0 {
		return fmt.Sprintf("%s #%d", op, id)
	}
	return op.String()
}

func (b *opBuilder) build(
	ctx context.Context, op physicalplan.PhysicalOperator,
) (colexecop.Operator, error) {
	var inputs []colexecop.Operator
	for child := range op.Children() {
		in, err := b.build(ctx, child)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	if n := physicalplan.NumChildren(op); len(inputs) != n {
		return nil, physicalplan.NewArityError(op, n, len(inputs))
	}

	sink := b.flowCtx.Cfg.StatsSink
	var result colexecop.Operator
	switch op := op.(type) {
	case *physicalplan.Scan:
		s, err := b.buildScan(ctx, op, sink)
		if err != nil {
			return nil, err
		}
		b.scans = append(b.scans, s)
		result = s

	case *physicalplan.Project:
		p, err := colexecbase.NewSimpleProjectOp(inputs[0], op.Columns)
		if err != nil {
			return nil, err
		}
		if p == inputs[0] {
			return p, nil
		}
		result = p

	case *physicalplan.Limit:
		result = colexecbase.NewLimitOp(inputs[0], op.Offset, op.Count)

	case *physicalplan.MergeJoin:
		spec := op.Spec
		alloc := b.flowCtx.NewAllocator(ctx)
		j, err := colexecjoin.NewMergeJoinOp(
			alloc, &spec, inputs[0], inputs[1], execstats.NewOperatorStats(componentName(op)), sink,
		)
		if err != nil {
			alloc.Close(ctx)
			return nil, err
		}
		result = j

	case *physicalplan.UnionAll:
		u, err := colexec.NewSerialUnorderedSynchronizer(inputs)
		if err != nil {
			return nil, err
		}
		result = u

	default:
		return nil, errors.AssertionFailedf("unsupported physical operator %T", op)
	}
	b.built = append(b.built, result)
	return result, nil
}

func (b *opBuilder) buildScan(
	ctx context.Context, op *physicalplan.Scan, sink execstats.Sink,
) (*colexecscan.ScanOp, error) {
	cfg := b.flowCtx.Cfg
	readerCfg, err := colexecscan.NewReaderConfig(op.Spec, cfg.FS, cfg.OpenFiles, b.flowCtx.BatchSize())
	if err != nil {
		return nil, err
	}
	stats := execstats.NewOperatorStats(componentName(op))
	creator, err := colexecscan.NewScanCreator(ctx, op.Spec, readerCfg, b.registry, nil /* classifier */, stats)
	if err != nil {
		return nil, err
	}
	return colexecscan.NewScanOp(creator, b.flowCtx.NewAllocator(ctx), stats, sink), nil
}
