// Package promexport bridges the engine's internal counters to a
// prometheus registry. The engine stays dependency-free on the hot path;
// the collector reads a snapshot only when Prometheus scrapes.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumenlms/authcore"
)

const namespace = "authcore"

// Collector implements prometheus.Collector over one engine.
type Collector struct {
	engine *authcore.Engine

	descs   map[authcore.MetricID]*prometheus.Desc
	dropped *prometheus.Desc
}

// NewCollector builds a collector for engine. Register it on the service
// registry:
//
//	reg.MustRegister(promexport.NewCollector(engine))
func NewCollector(engine *authcore.Engine) *Collector {
	c := &Collector{
		engine: engine,
		descs:  make(map[authcore.MetricID]*prometheus.Desc),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "audit", "dropped_total"),
			"Audit events dropped because the dispatcher buffer was full.",
			nil, nil,
		),
	}
	for id := range engine.MetricsSnapshot().Counters {
		c.descs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", id.String()+"_total"),
			"Engine counter "+id.String()+".",
			nil, nil,
		)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.engine.MetricsSnapshot()
	for id, value := range snapshot.Counters {
		desc, ok := c.descs[id]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.engine.AuditDropped()))
}
