package master

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"evoswarm/internal/wire"
)

var (
	workersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "workers_connected",
		Help:      "Workers currently connected and live",
	})

	workersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "workers_dropped_total",
		Help:      "Workers dropped after a failed request",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "request_duration_seconds",
		Help:      "Round trip latency of worker requests",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"command", "status"})

	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "generations_total",
		Help:      "Generations scored by the coordinator",
	})

	bestFitness = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "best_fitness",
		Help:      "Best fitness of the latest generation",
	})

	syncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evoswarm",
		Subsystem: "master",
		Name:      "syncs_total",
		Help:      "Broadcasts of the best individual to the fleet",
	})
)

func observeRequest(cmd wire.Command, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	requestDuration.WithLabelValues(cmd.String(), status).Observe(time.Since(start).Seconds())
}
