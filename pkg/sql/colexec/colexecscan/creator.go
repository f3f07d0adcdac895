// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan

import (
	"context"

	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/protoutil"
	mapset "github.com/deckarep/golang-set/v2"
)

// Classifier decides whether a split is read by the native reader.
type Classifier func(xattr *execinfrapb.TableXattr, split *execinfrapb.Split) bool

// NativeFormats are the input formats the native reader can decode.
var NativeFormats = mapset.NewSet(execinfrapb.FileFormat_PARQUET)

// DefaultClassifier reads every split natively when the table asks for the
// native reader, and otherwise reads natively the splits whose partition (or,
// failing that, table) input format is a native format.
func DefaultClassifier(xattr *execinfrapb.TableXattr, split *execinfrapb.Split) bool {
	if xattr.ReaderType == execinfrapb.ReaderType_NATIVE_PARQUET {
		return true
	}
	return NativeFormats.Contains(xattr.PartitionInputFormat(split.PartitionXattr))
}

// ScanCreator turns the splits of a table scan into a ReaderIterator. Splits
// may be added in several rounds; the readers of earlier rounds are always
// produced before those of later rounds.
type ScanCreator struct {
	cfg        *ReaderConfig
	xattr      execinfrapb.TableXattr
	registry   Registry
	classifier Classifier
	stats      *execstats.OperatorStats

	// Partitioned is set if the table has partition columns.
	Partitioned bool

	iter            ReaderIterator
	produceBuffered bool
	// filters are the runtime filters received so far. They are replayed on
	// the readers of every later round of splits.
	filters filterList
}

// NewScanCreator decodes the extended properties of the scanned table and
// adds the splits of the spec.
func NewScanCreator(
	ctx context.Context,
	spec *execinfrapb.ScanSpec,
	cfg *ReaderConfig,
	registry Registry,
	classifier Classifier,
	stats *execstats.OperatorStats,
) (*ScanCreator, error) {
	c := &ScanCreator{
		cfg:         cfg,
		registry:    registry,
		classifier:  classifier,
		stats:       stats,
		Partitioned: len(spec.PartitionColumns) > 0,
		iter:        EmptyIterator(),
	}
	if c.classifier == nil {
		c.classifier = DefaultClassifier
	}
	if err := protoutil.Unmarshal(spec.ExtendedProperty, &c.xattr); err != nil {
		return nil, execerror.NewSetupError(err, "failure parsing table extended properties", spec.TableName)
	}
	if _, ok := execinfrapb.ReaderType_name[int32(c.xattr.ReaderType)]; !ok {
		return nil, execerror.NewUnsupportedConfigurationErrorf("unsupported reader type %d", c.xattr.ReaderType)
	}
	if _, ok := registry[c.xattr.ReaderType]; !ok {
		return nil, execerror.NewUnsupportedConfigurationErrorf("no reader registered for %s", c.xattr.ReaderType)
	}
	if err := c.AddSplits(ctx, spec.Splits); err != nil {
		return nil, err
	}
	return c, nil
}

// Config returns the reader configuration of the scan.
func (c *ScanCreator) Config() *ReaderConfig { return c.cfg }

// ReaderType returns the reader type of the scanned table.
func (c *ScanCreator) ReaderType() execinfrapb.ReaderType { return c.xattr.ReaderType }

func (c *ScanCreator) factory(native bool) (ReaderFactory, error) {
	typ := execinfrapb.ReaderType_BASIC
	if native {
		typ = execinfrapb.ReaderType_NATIVE_PARQUET
	}
	f, ok := c.registry[typ]
	if !ok {
		return nil, execerror.NewUnsupportedConfigurationErrorf("no reader registered for %s", typ)
	}
	return f, nil
}

// AddSplits schedules a new round of splits. The previous iterator is
// allowed to produce its buffered split, since it no longer has to wait for
// more splits, and every retained runtime filter is replayed on the new
// readers.
func (c *ScanCreator) AddSplits(ctx context.Context, splits []*execinfrapb.Split) error {
	if len(splits) == 0 {
		return nil
	}
	var native, generic []*execinfrapb.Split
	var formats int64
	for _, s := range splits {
		f := c.xattr.PartitionInputFormat(s.PartitionXattr)
		formats |= 1 << uint(f)
		if c.classifier(&c.xattr, s) {
			native = append(native, s)
		} else {
			generic = append(generic, s)
		}
	}
	var nativeIt, genericIt ReaderIterator = EmptyIterator(), EmptyIterator()
	if len(native) > 0 {
		f, err := c.factory(true)
		if err != nil {
			return err
		}
		nativeIt = NewSplitIterator(c.cfg, f, native, c.produceBuffered)
	}
	if len(generic) > 0 {
		f, err := c.factory(false)
		if err != nil {
			return err
		}
		genericIt = NewSplitIterator(c.cfg, f, generic, c.produceBuffered)
	}
	if c.stats != nil {
		c.stats.OrLongStat(execstats.ScanFileFormats, formats)
		c.stats.AddLongStat(execstats.ScanSplits, int64(len(splits)))
	}
	log.VEventf(ctx, 1, "scan of %s: %d native and %d generic splits", c.cfg.TableName, len(native), len(generic))

	next := JoinIterators(nativeIt, genericIt)
	if !IsEmpty(next) {
		for _, f := range c.filters.filters {
			next.AddRuntimeFilter(f)
		}
	}
	c.iter.ProduceFromBuffered(true)
	c.iter = ClosingJoin(c.iter, next)
	return nil
}

// AddRuntimeFilter hands f to every reader created from now on.
func (c *ScanCreator) AddRuntimeFilter(f *runtimefilter.Filter) {
	if !c.filters.add(f) {
		return
	}
	c.iter.AddRuntimeFilter(f)
}

// RuntimeFilters returns the filters received so far.
func (c *ScanCreator) RuntimeFilters() []*runtimefilter.Filter {
	return c.filters.all()
}

// ProduceFromBuffered is called with true once no more splits will be
// added.
func (c *ScanCreator) ProduceFromBuffered(produce bool) {
	c.produceBuffered = produce
	c.iter.ProduceFromBuffered(produce)
}

// MoreSplitsExpected returns whether splits may still be added.
func (c *ScanCreator) MoreSplitsExpected() bool {
	return !c.produceBuffered
}

// Iterator returns the current reader iterator.
func (c *ScanCreator) Iterator() ReaderIterator { return c.iter }

// Close closes the iterator.
func (c *ScanCreator) Close(ctx context.Context) error {
	return c.iter.Close(ctx)
}
