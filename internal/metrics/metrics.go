package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by status.",
		},
		[]string{"status"},
	)

	reservationConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "reservation_conflict_total",
			Help:      "Count of reservation writes rejected due to window overlap.",
		},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "reservation_cancelled_total",
			Help:      "Count of reservations cancelled or removed.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanparty",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationConflict, reservationCancelled, httpRequests)
	})
}

func IncReservationCreated(status string) {
	reservationCreated.WithLabelValues(status).Inc()
}

func IncReservationConflict() {
	reservationConflict.Inc()
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
