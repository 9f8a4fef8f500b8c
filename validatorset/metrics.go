package validatorset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidatorCountGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethy",
		Subsystem: "validatorset",
		Name:      "validators",
	})
	RotationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "validatorset",
		Name:      "rotations_total",
	}, []string{"status"})
)
