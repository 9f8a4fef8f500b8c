package witness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WitnessesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "witness",
		Name:      "witnesses_total",
	}, []string{"status"})
	SignedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "witness",
		Name:      "signed_total",
	})
	ProofsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "witness",
		Name:      "proofs_total",
	}, []string{"chain"})
)
