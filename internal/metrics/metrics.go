package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/fritzbox/internal/session"
)

const namespace = "fritzbox"

// Result label values
const (
	ResultSuccess      = "success"
	ResultAuthError    = "auth_error"
	ResultNetworkError = "network_error"
	ResultHTTPError    = "http_error"
	ResultParseError   = "parse_error"
	ResultError        = "error"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	Logins            *prometheus.CounterVec
	PageFetches       *prometheus.CounterVec
	PageFetchDuration *prometheus.HistogramVec

	// Presence metrics
	Polls         *prometheus.CounterVec
	DevicePresent *prometheus.GaugeVec
	Transitions   *prometheus.CounterVec
	LastPoll      *prometheus.GaugeVec
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login handshakes by result.",
		}, []string{"result"}),

		PageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Authenticated page fetches by path and result.",
		}, []string{"path", "result"}),

		PageFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_fetch_duration_seconds",
			Help:      "Time to fetch a page once logged in.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"path"}),

		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_polls_total",
			Help:      "Presence polls by device and result.",
		}, []string{"device", "result"}),

		DevicePresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_present",
			Help:      "1 if the device counts as present after debounce, 0 otherwise.",
		}, []string{"device"}),

		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Presence changes by device and new state.",
		}, []string{"device", "to"}),

		LastPoll: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll per device.",
		}, []string{"device"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Logins,
		r.PageFetches,
		r.PageFetchDuration,
		r.Polls,
		r.DevicePresent,
		r.Transitions,
		r.LastPoll,
	)

	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ResultLabel maps an error to a bounded label value.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case session.IsAuthError(err):
		return ResultAuthError
	case session.IsNetworkError(err):
		return ResultNetworkError
	case session.IsHTTPError(err):
		return ResultHTTPError
	case session.IsParseError(err):
		return ResultParseError
	default:
		return ResultError
	}
}

// LoginCompleted implements session.Observer.
func (r *Registry) LoginCompleted(err error) {
	r.Logins.WithLabelValues(ResultLabel(err)).Inc()
}

// PageFetched implements session.Observer.
func (r *Registry) PageFetched(path string, elapsed time.Duration, err error) {
	r.PageFetches.WithLabelValues(path, ResultLabel(err)).Inc()
	if err == nil {
		r.PageFetchDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	}
}

// ObservePoll matches presence.PollFunc. Failed polls leave the presence
// gauge at its previous value.
func (r *Registry) ObservePoll(device string, present bool, err error) {
	r.Polls.WithLabelValues(device, ResultLabel(err)).Inc()
	if err != nil {
		return
	}
	r.DevicePresent.WithLabelValues(device).Set(boolToFloat(present))
	r.LastPoll.WithLabelValues(device).SetToCurrentTime()
}

// ObserveChange matches presence.ChangeFunc.
func (r *Registry) ObserveChange(device string, _, to bool) {
	r.Transitions.WithLabelValues(device, stateLabel(to)).Inc()
}

func stateLabel(present bool) string {
	if present {
		return "present"
	}
	return "absent"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ session.Observer = (*Registry)(nil)
