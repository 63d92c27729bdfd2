package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess  = "success"
	statusFailure  = "failure"
	statusCanceled = "canceled"
)

type metrics struct {
	collects         *prometheus.CounterVec
	planSeconds      prometheus.Histogram
	execSeconds      prometheus.Histogram
	rowsEmitted      prometheus.Counter
	ruleApplications *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		collects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "polars_engine_collects_total",
			Help: "Total number of collects started and finished by the engine.",
		}, []string{"status"}),

		planSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "polars_engine_planning_seconds",
			Help: "Time taken to build and optimize the physical plan for a collect.",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		execSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "polars_engine_execution_seconds",
			Help: "Time taken to run the pipeline and materialize the result of a collect.",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		rowsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "polars_engine_rows_emitted_total",
			Help: "Total number of rows returned by successful collects.",
		}),

		ruleApplications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "polars_engine_optimizer_rule_applications_total",
			Help: "Total number of plan changes made by each optimizer pass.",
		}, []string{"pass"}),
	}
}
