package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. Each instance registers into its own
// registerer so tests can build as many as they like.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	Logins       prometheus.Counter
	Refreshes    *prometheus.CounterVec
	Resets       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyspark",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studyspark",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Logins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studyspark",
			Name:      "auth_logins_total",
			Help:      "Sessions issued at login.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyspark",
			Name:      "auth_refresh_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"result"}),
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyspark",
			Name:      "auth_password_resets_total",
			Help:      "Password reset events by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.Logins, m.Refreshes, m.Resets)
	return m
}

// LoginIssued, RefreshResult and ResetStage let Metrics observe the session manager.
func (m *Metrics) LoginIssued() { m.Logins.Inc() }

func (m *Metrics) RefreshResult(res string) { m.Refreshes.WithLabelValues(res).Inc() }

func (m *Metrics) ResetStage(stage string) { m.Resets.WithLabelValues(stage).Inc() }
