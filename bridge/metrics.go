package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PausedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethy",
		Subsystem: "bridge",
		Name:      "paused",
	})
	PendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethy",
		Subsystem: "bridge",
		Name:      "pending_requests",
	})
	RequestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "bridge",
		Name:      "proof_requests_total",
	}, []string{"chain", "status"})
)
