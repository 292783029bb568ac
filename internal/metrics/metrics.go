package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignupDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailadmin",
		Name:      "signup_decisions_total",
		Help:      "Signup throttle decisions by outcome.",
	}, []string{"outcome"})

	SendDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailadmin",
		Name:      "send_decisions_total",
		Help:      "Send quota decisions by outcome.",
	}, []string{"outcome"})

	ViolationsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mailadmin",
		Name:      "violations_recorded_total",
		Help:      "Violations written to the ledger by type.",
	}, []string{"type"})

	CounterStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mailadmin",
		Name:      "counter_store_errors_total",
		Help:      "Counter store operations that failed and were denied closed.",
	})
)
