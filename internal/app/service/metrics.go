package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verdictCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fadelink_access_verdicts_total",
		Help: "Link access evaluations by outcome and internal reason.",
	}, []string{"outcome", "reason"})

	evalRetryCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fadelink_access_eval_retries_total",
		Help: "Re-evaluations caused by losing a viewer-session insert race.",
	})

	storageRetryCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fadelink_storage_retries_total",
		Help: "Transient storage failures that were retried.",
	})
)
