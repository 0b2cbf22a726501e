package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus instruments.
type Metrics struct {
	registry     *prometheus.Registry
	tokensIssued *prometheus.CounterVec
	revocations  prometheus.Counter
	tickets      prometheus.Counter
}

// NewMetrics builds and registers the instruments. A nil registry gets a
// private one, which keeps tests isolated from each other.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soteria",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by the token endpoint, by grant type.",
		}, []string{"grant_type"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soteria",
			Name:      "tokens_revoked_total",
			Help:      "Tokens revoked through the revocation endpoint.",
		}),
		tickets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soteria",
			Name:      "permission_tickets_issued_total",
			Help:      "UMA permission tickets issued.",
		}),
	}
	registry.MustRegister(m.tokensIssued, m.revocations, m.tickets)
	return m
}

func (m *Metrics) TokenIssued(grantType string) {
	m.tokensIssued.WithLabelValues(grantType).Inc()
}

func (m *Metrics) TokenRevoked() {
	m.revocations.Inc()
}

func (m *Metrics) TicketIssued() {
	m.tickets.Inc()
}

// HTTPHandler exposes the scrape endpoint for this instrument set.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
