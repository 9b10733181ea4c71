package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Posting metrics. Labels keep cardinality small: sub_ledger is one of
// partner/hose/general.
var (
	MetricReportsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationops_reports_committed_total",
		Help: "Sub-ledger report records committed.",
	}, []string{"sub_ledger"})

	MetricWriteVerifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationops_write_verify_failures_total",
		Help: "Post-write verification failures that triggered a compensating delete.",
	}, []string{"sub_ledger"})

	MetricCompensatingDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationops_compensating_deletes_total",
		Help: "Compensating deletes issued (verify failures and abandoned cycles).",
	}, []string{"sub_ledger"})

	MetricCyclesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationops_cycles_abandoned_total",
		Help: "Reporting cycles marked abandoned.",
	})

	MetricControlSumsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationops_control_sums_locked_total",
		Help: "Control-sum entries committed and locked.",
	})
)
