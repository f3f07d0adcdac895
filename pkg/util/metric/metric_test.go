// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/vexec/pkg/util/leaktest"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounterAndGauge(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := NewRegistry()
	c := r.Counter(Metadata{Name: "sql.exec.batches", Help: "batches produced"})
	c.Inc(3)
	c.Inc(2)
	require.Equal(t, int64(5), c.Count())
	require.Same(t, c, r.Counter(Metadata{Name: "sql.exec.batches"}))

	g := r.Gauge(Metadata{Name: "sql.exec.mem.current", Unit: "bytes"})
	g.Update(10)
	g.Inc(5)
	g.Dec(3)
	require.Equal(t, float64(12), g.Value())

	var names []string
	r.Each(func(name string, val float64) {
		names = append(names, name)
	})
	require.Equal(t, []string{"sql.exec.batches", "sql.exec.mem.current"}, names)
}

// TestRegistryConcurrentRegistration registers the same metrics from many
// goroutines at once on a fresh registry. Every caller must get the same
// metric.
func TestRegistryConcurrentRegistration(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for iter := 0; iter < 200; iter++ {
		r := NewRegistry()
		const n = 8
		counters := make([]*Counter, n)
		gauges := make([]*Gauge, n)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				counters[i] = r.Counter(Metadata{Name: "sql.exec.fragments.started"})
				gauges[i] = r.Gauge(Metadata{Name: "sql.exec.fragments.running"})
				counters[i].Inc(1)
			}(i)
		}
		close(start)
		wg.Wait()
		for i := 1; i < n; i++ {
			require.Same(t, counters[0], counters[i])
			require.Same(t, gauges[0], gauges[i])
		}
		require.Equal(t, int64(n), counters[0].Count())
	}
}

func TestRegistryTypeMismatch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := NewRegistry()
	r.Counter(Metadata{Name: "a.b"})
	require.Panics(t, func() { r.Gauge(Metadata{Name: "a.b"}) })
}

func TestRegistryDuplicate(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := NewRegistry()
	require.NoError(t, r.AddMetric(NewCounter(Metadata{Name: "a.b"})))
	require.Error(t, r.AddMetric(NewCounter(Metadata{Name: "a.b"})))
}

func TestPrometheusExporter(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := NewRegistry()
	r.Counter(Metadata{Name: "sql.exec.rows"}).Inc(7)
	pm := MakePrometheusExporter()
	require.NoError(t, pm.ScrapeRegistry(r))
	families, err := pm.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "sql_exec_rows", families[0].GetName())
	require.Equal(t, float64(7), families[0].GetMetric()[0].GetCounter().GetValue())

	pm.clearMetrics()
	families, err = pm.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestGraphiteExporterNoEndpoint(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ge := MakeGraphiteExporter(MakePrometheusExporter())
	require.ErrorIs(t, ge.Push(context.Background(), ""), errNoEndpoint)
}
