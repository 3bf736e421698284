package metrics

import (
	"net/http"

	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the service's Prometheus metrics on a private registry.
type Manager struct {
	Registry *prometheus.Registry

	ListingsCreatedTotal     prometheus.Counter
	TransitionsTotal         *prometheus.CounterVec
	TransitionConflictsTotal prometheus.Counter
	AdmissionDeniedTotal     prometheus.Counter
	OffersSubmittedTotal     prometheus.Counter
	OfferResponsesTotal      *prometheus.CounterVec
	NotificationsTotal       *prometheus.CounterVec
	SweepListingsTotal       *prometheus.CounterVec
	SweepFailuresTotal       prometheus.Counter
	SweepDuration            prometheus.Histogram
}

func NewManager(namespace string) *Manager {
	m := &Manager{Registry: prometheus.NewRegistry()}

	m.ListingsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_created_total",
		Help:      "Total number of listings created.",
	})
	m.TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_transitions_total",
		Help:      "Total listing status transitions by trigger and resulting status.",
	}, []string{"trigger", "status"})
	m.TransitionConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listing_transition_conflicts_total",
		Help:      "Transitions lost to a concurrent writer (stale version).",
	})
	m.AdmissionDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_denied_total",
		Help:      "Listing creations rejected by the rate limiter.",
	})
	m.OffersSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_submitted_total",
		Help:      "Total offers submitted.",
	})
	m.OfferResponsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offer_responses_total",
		Help:      "Offer responses by action.",
	}, []string{"action"})
	m.NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications dispatched by kind.",
	}, []string{"kind"})
	m.SweepListingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_listings_total",
		Help:      "Listings transitioned by the lifecycle sweep, by phase.",
	}, []string{"phase"})
	m.SweepFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_failures_total",
		Help:      "Sweep steps that failed and were skipped.",
	})
	m.SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full lifecycle sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	m.Registry.MustRegister(
		m.ListingsCreatedTotal,
		m.TransitionsTotal,
		m.TransitionConflictsTotal,
		m.AdmissionDeniedTotal,
		m.OffersSubmittedTotal,
		m.OfferResponsesTotal,
		m.NotificationsTotal,
		m.SweepListingsTotal,
		m.SweepFailuresTotal,
		m.SweepDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// StartServer exposes the registry on /metrics. Blocks; run in a goroutine.
func (m *Manager) StartServer(port string, log logger.Logger) error {
	if port == "" {
		log.Info("metrics server port not configured, server will not start")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	log.Infof("metrics server listening on :%s", port)
	server := &http.Server{Addr: ":" + port, Handler: mux}
	return server.ListenAndServe()
}
