// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecscan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/runtimefilter"
	"github.com/cockroachdb/vexec/pkg/util/log"
)

// ReaderIterator is a lazy sequence of readers.
type ReaderIterator interface {
	// HasNext returns whether Next can return a reader now.
	HasNext() bool
	// Next returns the next reader. The caller owns it and must close it.
	Next(ctx context.Context) (RecordReader, error)
	// AddRuntimeFilter retains f and hands it to every reader the iterator
	// creates from now on, and to the readers it holds but has not returned.
	AddRuntimeFilter(f *runtimefilter.Filter)
	// RuntimeFilters returns the retained filters. The result is never nil.
	RuntimeFilters() []*runtimefilter.Filter
	// ProduceFromBuffered controls whether the last buffered split may be
	// produced. It is false while more splits may arrive.
	ProduceFromBuffered(produce bool)
	// Close releases the readers held by the iterator. It is idempotent.
	Close(ctx context.Context) error
}

type emptyIterator struct{}

var empty ReaderIterator = &emptyIterator{}

// EmptyIterator returns the iterator with no readers. It is a distinguished
// value: IsEmpty reports whether an iterator is it.
func EmptyIterator() ReaderIterator { return empty }

// IsEmpty returns whether it is the empty iterator.
func IsEmpty(it ReaderIterator) bool { return it == empty }

func (*emptyIterator) HasNext() bool { return false }

func (*emptyIterator) Next(context.Context) (RecordReader, error) {
	return nil, errors.AssertionFailedf("Next called on the empty iterator")
}

func (*emptyIterator) AddRuntimeFilter(*runtimefilter.Filter) {}

func (*emptyIterator) RuntimeFilters() []*runtimefilter.Filter {
	return []*runtimefilter.Filter{}
}

func (*emptyIterator) ProduceFromBuffered(bool) {}

func (*emptyIterator) Close(context.Context) error { return nil }

// splitIterator creates one reader per split. It keeps one reader ahead of
// the consumer (the buffered split), and holds back the last split until it
// is told to produce from the buffer.
type splitIterator struct {
	cfg     *ReaderConfig
	factory ReaderFactory
	splits  []*execinfrapb.Split
	pos     int

	buffered        RecordReader
	produceBuffered bool
	filters         filterList
	closed          bool
}

var _ ReaderIterator = &splitIterator{}

// NewSplitIterator returns an iterator over readers of the given splits.
// With no splits it returns the empty iterator.
func NewSplitIterator(
	cfg *ReaderConfig, factory ReaderFactory, splits []*execinfrapb.Split, produceBuffered bool,
) ReaderIterator {
	if len(splits) == 0 {
		return EmptyIterator()
	}
	return &splitIterator{
		cfg:             cfg,
		factory:         factory,
		splits:          splits,
		produceBuffered: produceBuffered,
	}
}

func (s *splitIterator) available() int {
	n := len(s.splits) - s.pos
	if s.buffered != nil {
		n++
	}
	return n
}

func (s *splitIterator) HasNext() bool {
	if s.closed {
		return false
	}
	n := s.available()
	if !s.produceBuffered {
		n--
	}
	return n > 0
}

func (s *splitIterator) create(split *execinfrapb.Split) (RecordReader, error) {
	r, err := s.factory(s.cfg, split)
	if err != nil {
		return nil, execerror.NewSetupError(err, "creating reader", redactableSplit(split))
	}
	for _, f := range s.filters.filters {
		r.AddRuntimeFilter(f)
	}
	return r, nil
}

func (s *splitIterator) Next(ctx context.Context) (RecordReader, error) {
	if s.closed {
		return nil, errors.Mark(errors.New("split iterator closed"), execerror.ErrIteratorClosed)
	}
	if !s.HasNext() {
		return nil, errors.AssertionFailedf("Next called on an exhausted split iterator")
	}
	r := s.buffered
	s.buffered = nil
	if r == nil {
		var err error
		if r, err = s.create(s.splits[s.pos]); err != nil {
			return nil, err
		}
		s.pos++
	}
	if s.pos < len(s.splits) {
		next := s.splits[s.pos]
		b, err := s.create(next)
		if err != nil {
			return nil, errors.CombineErrors(err, r.Close(ctx))
		}
		s.buffered = b
		s.pos++
		log.VEventf(ctx, 2, "buffered %v", next)
	}
	return r, nil
}

func (s *splitIterator) AddRuntimeFilter(f *runtimefilter.Filter) {
	if s.closed || !s.filters.add(f) {
		return
	}
	if s.buffered != nil {
		s.buffered.AddRuntimeFilter(f)
	}
}

func (s *splitIterator) RuntimeFilters() []*runtimefilter.Filter {
	return s.filters.all()
}

func (s *splitIterator) ProduceFromBuffered(produce bool) {
	s.produceBuffered = produce
}

func (s *splitIterator) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.filters.reset()
	if s.buffered != nil {
		err := s.buffered.Close(ctx)
		s.buffered = nil
		return err
	}
	return nil
}

// concatIterator produces the readers of its inputs one input after the
// other.
type concatIterator struct {
	inputs  []ReaderIterator
	filters filterList
}

// JoinIterators returns the sequential concatenation of a and b. Empty
// operands are elided, so joining with the empty iterator returns the other
// operand itself.
func JoinIterators(a, b ReaderIterator) ReaderIterator {
	switch {
	case IsEmpty(a):
		return b
	case IsEmpty(b):
		return a
	}
	return &concatIterator{inputs: []ReaderIterator{a, b}}
}

func (c *concatIterator) HasNext() bool {
	for _, in := range c.inputs {
		if in.HasNext() {
			return true
		}
	}
	return false
}

func (c *concatIterator) Next(ctx context.Context) (RecordReader, error) {
	for _, in := range c.inputs {
		if in.HasNext() {
			return in.Next(ctx)
		}
	}
	return nil, errors.AssertionFailedf("Next called on an exhausted iterator")
}

func (c *concatIterator) AddRuntimeFilter(f *runtimefilter.Filter) {
	if !c.filters.add(f) {
		return
	}
	for _, in := range c.inputs {
		in.AddRuntimeFilter(f)
	}
}

func (c *concatIterator) RuntimeFilters() []*runtimefilter.Filter {
	return c.filters.all()
}

func (c *concatIterator) ProduceFromBuffered(produce bool) {
	for _, in := range c.inputs {
		in.ProduceFromBuffered(produce)
	}
}

func (c *concatIterator) Close(ctx context.Context) error {
	var err error
	for _, in := range c.inputs {
		err = errors.CombineErrors(err, in.Close(ctx))
	}
	c.filters.reset()
	return err
}

// closingJoin composes the iterator of earlier splits (first) with the
// iterator of newly added splits (second). The first source always has
// priority, and a source is closed as soon as it is found exhausted.
type closingJoin struct {
	first, second ReaderIterator
	filters       filterList
	closed        bool
}

var _ ReaderIterator = &closingJoin{}

// ClosingJoin returns the composite of prev and next. Every filter already
// retained by prev is retained by the composite and replayed on next.
func ClosingJoin(prev, next ReaderIterator) ReaderIterator {
	c := &closingJoin{first: prev, second: next}
	for _, f := range prev.RuntimeFilters() {
		if c.filters.add(f) && !IsEmpty(next) {
			next.AddRuntimeFilter(f)
		}
	}
	return c
}

// HasNext implements the ReaderIterator interface. The second source is
// only consulted once the first is exhausted.
func (c *closingJoin) HasNext() bool {
	if c.closed {
		return false
	}
	if c.first.HasNext() {
		return true
	}
	return exhausted(c.first) && c.second.HasNext()
}

// closeIfFinished closes *it and replaces it with the empty iterator if it
// has nothing left to produce. A source that is merely holding back its
// buffered split is not finished.
func closeIfFinished(ctx context.Context, it *ReaderIterator) error {
	if IsEmpty(*it) || !exhausted(*it) {
		return nil
	}
	err := (*it).Close(ctx)
	*it = EmptyIterator()
	return err
}

// exhausted returns whether it will never produce another reader, even once
// allowed to produce from its buffer.
func exhausted(it ReaderIterator) bool {
	switch t := it.(type) {
	case *splitIterator:
		return t.closed || t.available() == 0
	case *concatIterator:
		for _, in := range t.inputs {
			if !exhausted(in) {
				return false
			}
		}
		return true
	case *closingJoin:
		return t.closed || (exhausted(t.first) && exhausted(t.second))
	}
	return !it.HasNext()
}

func (c *closingJoin) Next(ctx context.Context) (RecordReader, error) {
	if c.closed {
		return nil, errors.Mark(errors.New("reader iterator closed"), execerror.ErrIteratorClosed)
	}
	if err := closeIfFinished(ctx, &c.first); err != nil {
		return nil, err
	}
	if c.first.HasNext() {
		return nextAndCloseIfFinished(ctx, &c.first)
	}
	if !IsEmpty(c.first) {
		return nil, errors.AssertionFailedf("Next called while the previous splits are held back")
	}
	if err := closeIfFinished(ctx, &c.second); err != nil {
		return nil, err
	}
	if c.second.HasNext() {
		return nextAndCloseIfFinished(ctx, &c.second)
	}
	return nil, errors.AssertionFailedf("Next called on an exhausted iterator")
}

// nextAndCloseIfFinished returns the next reader of *it and closes *it right
// away if that was its last reader.
func nextAndCloseIfFinished(ctx context.Context, it *ReaderIterator) (RecordReader, error) {
	r, err := (*it).Next(ctx)
	if err != nil {
		return nil, err
	}
	if err := closeIfFinished(ctx, it); err != nil {
		return nil, errors.CombineErrors(err, r.Close(ctx))
	}
	return r, nil
}

func (c *closingJoin) AddRuntimeFilter(f *runtimefilter.Filter) {
	if c.closed || !c.filters.add(f) {
		return
	}
	if !IsEmpty(c.first) {
		c.first.AddRuntimeFilter(f)
	}
	if !IsEmpty(c.second) {
		c.second.AddRuntimeFilter(f)
	}
}

func (c *closingJoin) RuntimeFilters() []*runtimefilter.Filter {
	return c.filters.all()
}

func (c *closingJoin) ProduceFromBuffered(produce bool) {
	c.first.ProduceFromBuffered(produce)
	c.second.ProduceFromBuffered(produce)
}

func (c *closingJoin) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := errors.CombineErrors(c.first.Close(ctx), c.second.Close(ctx))
	c.first, c.second = EmptyIterator(), EmptyIterator()
	c.filters.reset()
	return err
}
