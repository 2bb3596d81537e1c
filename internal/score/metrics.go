package score

import "github.com/prometheus/client_golang/prometheus"

var (
	awardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "awards_total",
			Help:      "Award outcomes by result",
		},
		[]string{"result"}, // accepted|clamped|duplicate|rejected
	)

	awardRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "movement",
			Name:      "award_conflict_retries_total",
			Help:      "Transaction retries caused by serialization conflicts",
		},
	)

	awardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "movement",
			Name:      "award_duration_seconds",
			Help:      "AwardScore transaction duration",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(awardsTotal, awardRetries, awardDuration)
}
