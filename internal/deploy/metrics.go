package deploy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var observeDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace:                       "adapt",
	Subsystem:                       "observer",
	Name:                            "observe_duration_ms",
	Help:                            "Time spent in observer plugin Observe calls.",
	Buckets:                         []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
	NativeHistogramBucketFactor:     1.1,
	NativeHistogramMaxBucketNumber:  100,
	NativeHistogramMinResetDuration: time.Hour,
}, []string{"observer"})
