package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSentCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "notification",
		Name:      "proofs_sent_total",
	})
	NotificationsDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ethy",
		Subsystem: "notification",
		Name:      "proofs_dropped_total",
	})
)
