// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execinfrapb

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ComponentStats are the statistics collected for one operator of a flow.
// Zero values are treated as unset and are not reported.
type ComponentStats struct {
	Component string

	Inputs []InputStats
	Exec   ExecStats
	Output OutputStats
	Scan   ScanStats
}

// InputStats are the statistics of one input of an operator.
type InputStats struct {
	NumTuples uint64
	// NotYetCount is the number of times the input asked to be retried.
	NotYetCount uint64
}

// ExecStats are statistics about the execution of the operator itself.
type ExecStats struct {
	ExecTime        time.Duration
	MaxAllocatedMem uint64
}

// OutputStats are statistics about the output of the operator.
type OutputStats struct {
	NumBatches uint64
	NumTuples  uint64
}

// ScanStats are statistics specific to table scans.
type ScanStats struct {
	// FileFormats is a bitmask with bit i set if a file of FileFormat i was
	// scheduled.
	FileFormats    uint64
	NumSplits      uint64
	NumReaders     uint64
	RuntimeFilters uint64
	RowsFiltered   uint64
}

// FileFormatNames returns the names of the formats set in the bitmask, in
// ordinal order.
func FileFormatNames(mask uint64) []string {
	var res []string
	for ord := range FileFormat_name {
		if mask&(1<<uint(ord)) != 0 {
			res = append(res, FileFormat(ord).String())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return FileFormat_value[res[i]] < FileFormat_value[res[j]]
	})
	return res
}

// Stats returns the statistics as a map keyed by lowercase, dotted names.
func (s *ComponentStats) Stats() map[string]string {
	result := make(map[string]string, 4)
	s.formatStats(func(key string, value interface{}) {
		key = strings.ToLower(strings.ReplaceAll(key, " ", "."))
		result[key] = fmt.Sprint(value)
	})
	return result
}

// StatsForQueryPlan returns the statistics as "key: value" lines, in a fixed
// order.
func (s *ComponentStats) StatsForQueryPlan() []string {
	result := make([]string, 0, 4)
	s.formatStats(func(key string, value interface{}) {
		result = append(result, fmt.Sprintf("%s: %v", key, value))
	})
	return result
}

// formatStats calls fn for each statistic that is set.
func (s *ComponentStats) formatStats(fn func(suffix string, value interface{})) {
	// Input stats.
	switch len(s.Inputs) {
	case 1:
		if s.Inputs[0].NumTuples != 0 {
			fn("input tuples", s.Inputs[0].NumTuples)
		}
		if s.Inputs[0].NotYetCount != 0 {
			fn("input not yet", s.Inputs[0].NotYetCount)
		}

	case 2:
		if s.Inputs[0].NumTuples != 0 {
			fn("left tuples", s.Inputs[0].NumTuples)
		}
		if s.Inputs[0].NotYetCount != 0 {
			fn("left not yet", s.Inputs[0].NotYetCount)
		}
		if s.Inputs[1].NumTuples != 0 {
			fn("right tuples", s.Inputs[1].NumTuples)
		}
		if s.Inputs[1].NotYetCount != 0 {
			fn("right not yet", s.Inputs[1].NotYetCount)
		}
	}

	// Scan stats.
	if s.Scan.FileFormats != 0 {
		fn("file formats", strings.Join(FileFormatNames(s.Scan.FileFormats), ","))
	}
	if s.Scan.NumSplits != 0 {
		fn("splits", s.Scan.NumSplits)
	}
	if s.Scan.NumReaders != 0 {
		fn("readers", s.Scan.NumReaders)
	}
	if s.Scan.RuntimeFilters != 0 {
		fn("runtime filters", s.Scan.RuntimeFilters)
	}
	if s.Scan.RowsFiltered != 0 {
		fn("rows filtered", s.Scan.RowsFiltered)
	}

	// Exec stats.
	if s.Exec.ExecTime != 0 {
		fn("execution time", s.Exec.ExecTime.Round(time.Microsecond))
	}
	if s.Exec.MaxAllocatedMem != 0 {
		fn("max memory allocated", humanize.IBytes(s.Exec.MaxAllocatedMem))
	}

	// Output stats.
	if s.Output.NumBatches != 0 {
		fn("batches output", s.Output.NumBatches)
	}
	if s.Output.NumTuples != 0 {
		fn("tuples output", s.Output.NumTuples)
	}
}

// MakeDeterministic is used only for testing; it modifies any non-deterministic
// statistics like elapsed time or exact number of bytes to fixed values.
//
// Note that it does not modify which fields are set.
func (s *ComponentStats) MakeDeterministic() {
	if s.Exec.ExecTime != 0 {
		s.Exec.ExecTime = time.Microsecond
	}
	if s.Exec.MaxAllocatedMem != 0 {
		s.Exec.MaxAllocatedMem = 1
	}
	if s.Output.NumBatches != 0 {
		s.Output.NumBatches = 1
	}
	for i := range s.Inputs {
		if s.Inputs[i].NotYetCount != 0 {
			s.Inputs[i].NotYetCount = 1
		}
	}
}
