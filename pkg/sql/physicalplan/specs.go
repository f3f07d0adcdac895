// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"sync"

	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
)

var scanSpecPool = sync.Pool{
	New: func() interface{} {
		return &execinfrapb.ScanSpec{}
	},
}

// NewScanSpec returns a new ScanSpec, which may have non-zero capacity in its
// slice fields.
func NewScanSpec(tableName string) *execinfrapb.ScanSpec {
	spec := scanSpecPool.Get().(*execinfrapb.ScanSpec)
	spec.TableName = tableName
	return spec
}

// ReleaseScanSpec puts this ScanSpec back into its sync pool. It may not be
// used again after Release returns.
func ReleaseScanSpec(s *execinfrapb.ScanSpec) {
	*s = execinfrapb.ScanSpec{
		Schema:  s.Schema[:0],
		Columns: s.Columns[:0],
		Splits:  s.Splits[:0],
	}
	scanSpecPool.Put(s)
}
