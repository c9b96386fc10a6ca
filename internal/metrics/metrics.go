package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prichal"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_committed_total",
			Help:      "Bookings committed by vessel type and operation.",
		},
		[]string{"vessel_type", "operation"},
	)

	commitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commit_rejections_total",
			Help:      "Booking commits rejected at re-validation, by reason code.",
		},
		[]string{"reason"},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Price quotes by result.",
		},
		[]string{"result"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Booking cancellations by reason.",
		},
		[]string{"reason"},
	)

	sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Records moved by background sweeps, by kind.",
		},
		[]string{"kind"},
	)

	commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_commit_duration_seconds",
			Help:      "Time spent inside the per resource-date commit lock.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingsCommitted, commitRejections, quotes, cancellations, sweeps, commitDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCommitted(vesselType, operation string) {
	bookingsCommitted.WithLabelValues(vesselType, operation).Inc()
}

func IncCommitRejected(reason string) {
	commitRejections.WithLabelValues(reason).Inc()
}

func IncQuote(result string) {
	quotes.WithLabelValues(result).Inc()
}

func IncCancellation(reason string) {
	cancellations.WithLabelValues(reason).Inc()
}

func AddSwept(kind string, n int) {
	if n <= 0 {
		return
	}
	sweeps.WithLabelValues(kind).Add(float64(n))
}

// ObserveCommit records the time since start.
func ObserveCommit(start time.Time) {
	commitDuration.Observe(time.Since(start).Seconds())
}
