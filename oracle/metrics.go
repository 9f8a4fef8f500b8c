package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "oracle",
		Name:      "checked_calls_total",
	}, []string{"status"})
	LookupsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "oracle",
		Name:      "xrpl_lookups_total",
	}, []string{"status"})
)
