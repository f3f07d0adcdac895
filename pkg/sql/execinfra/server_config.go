// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execinfra contains the common infrastructure used by the execution
// engine: the configuration shared by all flows of a process and the context
// of a single flow.
package execinfra

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/settings"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/util/metric"
	"github.com/cockroachdb/vexec/pkg/util/mon"
	"github.com/google/uuid"
	"github.com/marusama/semaphore"
	"github.com/spf13/afero"
)

// BatchSizeSetting is the number of rows per batch produced by readers and
// joins.
var BatchSizeSetting = settings.RegisterIntSetting(
	"sql.exec.batch_size",
	"number of rows per columnar batch",
	int64(coldata.BatchSize()),
	func(v int64) error {
		if err := settings.PositiveInt(v); err != nil {
			return err
		}
		if v > coldata.MaxBatchSize {
			return errors.Errorf("batch size %d exceeds maximum %d", v, coldata.MaxBatchSize)
		}
		return nil
	},
)

// MaxBufferedBytes limits the memory of all flows of the process.
var MaxBufferedBytes = settings.RegisterByteSizeSetting(
	"sql.exec.max_buffered_bytes",
	"memory budget shared by all running flows",
	256<<20, /* 256 MiB */
)

// MaxOpenFiles limits the number of files open by readers at any time.
var MaxOpenFiles = settings.RegisterIntSetting(
	"sql.exec.max_open_files",
	"maximum number of files that readers may hold open at once",
	256,
	settings.PositiveInt,
)

// NotYetBackoff is the initial delay before a flow re-invokes an operator
// that reported it was not ready.
var NotYetBackoff = settings.RegisterDurationSetting(
	"sql.exec.not_yet_backoff",
	"initial backoff before re-polling an operator that is not ready",
	time.Millisecond,
)

// RuntimeFilterBloomBits is the size of runtime bloom filters.
var RuntimeFilterBloomBits = settings.RegisterIntSetting(
	"sql.exec.runtime_filter.bloom_bits",
	"number of bits in runtime bloom filters",
	1<<16,
	settings.PositiveInt,
)

// ServerConfig encompasses the configuration shared by all flows of a
// process.
type ServerConfig struct {
	Settings *settings.Values
	Metrics  *metric.Registry
	// Monitor is the pool from which every operator allocator draws.
	Monitor *mon.BytesMonitor
	// FS is the filesystem that readers open splits on.
	FS afero.Fs
	// OpenFiles is the open-file budget shared by readers.
	OpenFiles semaphore.Semaphore
	// StatsSink receives the statistics of operators when they close.
	StatsSink execstats.Sink
}

// NewServerConfig returns a config for the given settings, with a monitor
// limited by MaxBufferedBytes and the open-file budget set by MaxOpenFiles.
func NewServerConfig(sv *settings.Values, fs afero.Fs) *ServerConfig {
	reg := metric.NewRegistry()
	m := mon.NewMonitor("flows", MaxBufferedBytes.Get(sv))
	m.SetMetrics(
		reg.Gauge(metric.Metadata{Name: "sql.mem.flows.current", Help: "Current memory used by flows", Unit: "bytes"}),
		reg.Gauge(metric.Metadata{Name: "sql.mem.flows.max", Help: "Maximum memory used by flows", Unit: "bytes"}),
	)
	return &ServerConfig{
		Settings:  sv,
		Metrics:   reg,
		Monitor:   m,
		FS:        fs,
		OpenFiles: semaphore.New(int(MaxOpenFiles.Get(sv))),
		StatsSink: execstats.NewMetricSink(reg),
	}
}

// FlowCtx encompasses the configuration and state of a single flow.
type FlowCtx struct {
	Cfg *ServerConfig
	// ID is the unique identifier of the flow.
	ID uuid.UUID
}

// NewFlowCtx returns the context of a new flow.
func NewFlowCtx(cfg *ServerConfig) *FlowCtx {
	return &FlowCtx{Cfg: cfg, ID: uuid.New()}
}

// BatchSize returns the number of rows per batch for this flow.
func (f *FlowCtx) BatchSize() int {
	return int(BatchSizeSetting.Get(f.Cfg.Settings))
}

// NewAllocator returns a new allocator drawing from the flow monitor. The
// caller owns it and must close it.
func (f *FlowCtx) NewAllocator(ctx context.Context) *colmem.Allocator {
	return colmem.NewAllocator(ctx, f.Cfg.Monitor)
}
