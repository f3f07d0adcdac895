// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

/*
Package metric provides execution metrics (a.k.a. transient stats) for
fragments and operators. Metrics are backed by prometheus collectors and can
be scraped through PrometheusExporter or pushed to a Graphite server.

# Adding a new metric

First, add the metric to a Registry.

Next, call methods such as Counter() and Gauge() on the Registry to register
the metric. For example:

	scan := &ScanMetrics{
		...
		FilesOpened: registry.Counter(metric.Metadata{Name: "sql.exec.scan.files_opened"}),
		...
	}

This code block registers the metric "sql.exec.scan.files_opened". The metric
can then be updated as follows:

	func (s *ScanOp) openReader() {
		// open the reader
		s.metrics.FilesOpened.Inc(1)
	}

# Testing

Counter.Count and Gauge.Value read the current value back from the underlying
collector, so tests can assert on them directly.
*/
package metric
