package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"evoswarm/internal/wire"
)

var (
	requestsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evoswarm",
		Subsystem: "worker",
		Name:      "requests_total",
		Help:      "Requests received from the master by command",
	}, []string{"command"})

	setsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evoswarm",
		Subsystem: "worker",
		Name:      "rejected_sets_total",
		Help:      "Set requests whose individual could not be decoded",
	})
)

func recordRequest(cmd wire.Command) {
	requestsHandled.WithLabelValues(cmd.String()).Inc()
}

func recordRejectedSet() {
	setsRejected.Inc()
}
