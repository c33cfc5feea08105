package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	hlerr "httplink/internal/errors"
)

const namespace = "httplink"

// Register exposes the collector's counters on registry.  The metrics
// are read from the atomics at gather time, so nothing is copied.
func (c *Collector) Register(registry prometheus.Registerer) error {
	if c == nil {
		return nil
	}

	cs := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts started.",
		}, func() float64 { return float64(c.attempts.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connects_total",
			Help:        "Connect attempts that produced a connection.",
			ConstLabels: prometheus.Labels{"security": "plain"},
		}, func() float64 { return float64(c.connectsPlain.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connects_total",
			Help:        "Connect attempts that produced a connection.",
			ConstLabels: prometheus.Labels{"security": "tls"},
		}, func() float64 { return float64(c.connectsSecure.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections handed to callers and not yet closed.",
		}, func() float64 { return float64(c.connectionsActive.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes read from established connections.",
		}, func() float64 { return float64(c.bytesIn.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to established connections.",
		}, func() float64 { return float64(c.bytesOut.Load()) }),
	}

	for stage := hlerr.StageTransport; stage <= hlerr.StageHandshake; stage++ {
		idx := int(stage)
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connect_failures_total",
			Help:        "Failed connect attempts by pipeline stage.",
			ConstLabels: prometheus.Labels{"stage": stage.String()},
		}, func() float64 { return float64(c.failures[idx].Load()) }))
	}

	for _, m := range cs {
		if err := registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextfile gathers a fresh registry holding c and writes it in the
// node-exporter textfile format to path.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
