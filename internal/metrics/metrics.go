package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the purchase pipeline metrics. It is constructed once and
// passed explicitly into the components that observe it.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "time_sale_operations_total",
			Help: "Purchase pipeline operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "time_sale_operation_duration_seconds",
			Help:    "Purchase pipeline operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(r.operations, r.duration)
	return r
}

// Observe records one operation outcome with the elapsed time since start.
func (r *Recorder) Observe(operation, outcome string, start time.Time) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Nop returns a recorder backed by a throwaway registry, for tests.
func Nop() *Recorder {
	return NewRecorder(prometheus.NewRegistry())
}
