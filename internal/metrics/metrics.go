package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatrend_api_calls_total",
			Help: "Total NOAA CDO API calls",
		},
		[]string{"endpoint", "status"},
	)

	YearsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climatrend_years_fetched_total",
			Help: "Total station-years fetched from the provider",
		},
	)

	RecordsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climatrend_records_fetched_total",
			Help: "Total raw observation records fetched",
		},
	)

	DaysNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climatrend_days_normalized_total",
			Help: "Total normalized daily rows produced",
		},
	)

	StatsRecomputes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "climatrend_stats_recomputes_total",
			Help: "Total full climatology recomputations",
		},
	)
)
