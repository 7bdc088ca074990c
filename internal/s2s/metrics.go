package s2s

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLinesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s2s",
		Name:      "lines_received_total",
		Help:      "Protocol lines received from the peer.",
	})
	metricLinesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "s2s",
		Name:      "lines_written_total",
		Help:      "Protocol lines written to the transport.",
	})
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "s2s",
		Name:      "write_queue_depth",
		Help:      "Lines currently buffered in the outbound write queue.",
	})
)
