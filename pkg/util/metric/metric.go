// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
)

// Metadata holds metadata about a metric.
type Metadata struct {
	// Name is the dotted name of the metric, e.g. "sql.exec.batches".
	Name string
	// Help is a human readable description.
	Help string
	// Unit is a free-form unit description, e.g. "bytes".
	Unit string
}

// Iterable is the interface implemented by every metric in a Registry.
type Iterable interface {
	// GetName returns the dotted name of the metric.
	GetName() string
	// Value returns the current value of the metric.
	Value() float64
	collector() prometheus.Collector
}

// exportedName converts a dotted metric name to a prometheus-compatible one.
func exportedName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Counter is a monotonically increasing count.
type Counter struct {
	Metadata
	c prometheus.Counter
}

// NewCounter creates a counter that is not yet part of any registry.
func NewCounter(meta Metadata) *Counter {
	return &Counter{
		Metadata: meta,
		c:        prometheus.NewCounter(prometheus.CounterOpts{Name: exportedName(meta.Name), Help: meta.Help}),
	}
}

// GetName implements Iterable.
func (c *Counter) GetName() string { return c.Name }

// Inc increments the counter by v, which must not be negative.
func (c *Counter) Inc(v int64) {
	c.c.Add(float64(v))
}

// Count returns the current value of the counter.
func (c *Counter) Count() int64 {
	return int64(c.Value())
}

// Value implements Iterable.
func (c *Counter) Value() float64 {
	var m prometheusgo.Metric
	if err := c.c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func (c *Counter) collector() prometheus.Collector { return c.c }

// Gauge is a value that can go up and down.
type Gauge struct {
	Metadata
	g prometheus.Gauge
}

// NewGauge creates a gauge that is not yet part of any registry.
func NewGauge(meta Metadata) *Gauge {
	return &Gauge{
		Metadata: meta,
		g:        prometheus.NewGauge(prometheus.GaugeOpts{Name: exportedName(meta.Name), Help: meta.Help}),
	}
}

// GetName implements Iterable.
func (g *Gauge) GetName() string { return g.Name }

// Update sets the gauge's value.
func (g *Gauge) Update(v int64) { g.g.Set(float64(v)) }

// Inc increments the gauge's value.
func (g *Gauge) Inc(v int64) { g.g.Add(float64(v)) }

// Dec decrements the gauge's value.
func (g *Gauge) Dec(v int64) { g.g.Sub(float64(v)) }

// Value implements Iterable.
func (g *Gauge) Value() float64 {
	var m prometheusgo.Metric
	if err := g.g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func (g *Gauge) collector() prometheus.Collector { return g.g }

// Registry is a list of metrics. It provides a simple way of iterating over
// them and exposes them to prometheus.
type Registry struct {
	mu struct {
		syncutil.Mutex
		tracked map[string]Iterable
	}
	prom *prometheus.Registry
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	r := &Registry{prom: prometheus.NewRegistry()}
	r.mu.tracked = make(map[string]Iterable)
	return r
}

// AddMetric adds the passed-in metric to the registry.
func (r *Registry) AddMetric(metric Iterable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMetricLocked(metric)
}

func (r *Registry) addMetricLocked(metric Iterable) error {
	if _, ok := r.mu.tracked[metric.GetName()]; ok {
		return errors.Newf("metric %q already registered", metric.GetName())
	}
	if err := r.prom.Register(metric.collector()); err != nil {
		return errors.Wrapf(err, "registering metric %q", metric.GetName())
	}
	r.mu.tracked[metric.GetName()] = metric
	return nil
}

// getOrAdd returns the metric registered under name, registering the one
// built by mk if there is none. Concurrent callers get the same metric.
func (r *Registry) getOrAdd(name string, mk func() Iterable) Iterable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mu.tracked[name]; ok {
		return m
	}
	m := mk()
	if err := r.addMetricLocked(m); err != nil {
		panic(err)
	}
	return m
}

// Counter registers and returns a new Counter. If a counter with the same
// name already exists, it is returned instead.
func (r *Registry) Counter(meta Metadata) *Counter {
	m := r.getOrAdd(meta.Name, func() Iterable { return NewCounter(meta) })
	c, ok := m.(*Counter)
	if !ok {
		panic(errors.AssertionFailedf("metric %q is a %T, not a counter", meta.Name, m))
	}
	return c
}

// Gauge registers and returns a new Gauge. If a gauge with the same name
// already exists, it is returned instead.
func (r *Registry) Gauge(meta Metadata) *Gauge {
	m := r.getOrAdd(meta.Name, func() Iterable { return NewGauge(meta) })
	g, ok := m.(*Gauge)
	if !ok {
		panic(errors.AssertionFailedf("metric %q is a %T, not a gauge", meta.Name, m))
	}
	return g
}

// Each calls the given closure for all metrics, in name order.
func (r *Registry) Each(f func(name string, val float64)) {
	r.mu.Lock()
	names := make([]string, 0, len(r.mu.tracked))
	for name := range r.mu.tracked {
		names = append(names, name)
	}
	metrics := make(map[string]Iterable, len(names))
	for k, v := range r.mu.tracked {
		metrics[k] = v
	}
	r.mu.Unlock()
	sort.Strings(names)
	for _, name := range names {
		f(name, metrics[name].Value())
	}
}

// Gatherer exposes the registry to prometheus scrapers.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}
