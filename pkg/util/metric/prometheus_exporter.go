// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
)

// PrometheusExporter contains a map of metric families (a metric with multiple
// labels) scraped from one or more registries.
type PrometheusExporter struct {
	mu struct {
		syncutil.Mutex
		families map[string]*prometheusgo.MetricFamily
	}
}

var _ prometheus.Gatherer = &PrometheusExporter{}

// MakePrometheusExporter returns an initialized prometheus exporter.
func MakePrometheusExporter() *PrometheusExporter {
	pm := &PrometheusExporter{}
	pm.mu.families = make(map[string]*prometheusgo.MetricFamily)
	return pm
}

// ScrapeRegistry scrapes all metrics contained in the registry into the
// exporter's families.
func (pm *PrometheusExporter) ScrapeRegistry(r *Registry) error {
	families, err := r.Gatherer().Gather()
	if err != nil {
		return err
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, f := range families {
		pm.mu.families[f.GetName()] = f
	}
	return nil
}

// Gather implements prometheus.Gatherer.
func (pm *PrometheusExporter) Gather() ([]*prometheusgo.MetricFamily, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	res := make([]*prometheusgo.MetricFamily, 0, len(pm.mu.families))
	for _, f := range pm.mu.families {
		res = append(res, f)
	}
	return res, nil
}

// clearMetrics drops all scraped families.
func (pm *PrometheusExporter) clearMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mu.families = make(map[string]*prometheusgo.MetricFamily)
}
