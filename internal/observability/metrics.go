package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/rosctl/internal/poller"
	"github.com/danmuck/rosctl/internal/protocol/session"
)

const namespace = "rosctl"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	sentencesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "sentences_sent_total",
			Help:      "Sentences written to the router.",
		},
		[]string{"router"},
	)
	sentencesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "sentences_received_total",
			Help:      "Sentences decoded from the router.",
		},
		[]string{"router"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "decode_errors_total",
			Help:      "Malformed frames received from the router.",
		},
		[]string{"router"},
	)
	pendingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Tagged requests awaiting a terminal reply.",
		},
		[]string{"router"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from send to terminal reply.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"router"},
	)
	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Poll attempts by outcome.",
		},
		[]string{"router", "outcome"},
	)
	interfaceCounters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "interface",
			Name:      "counter",
			Help:      "Latest interface counter reported by the router.",
		},
		[]string{"router", "interface", "counter"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sentencesSent, sentencesReceived, decodeErrors, pendingRequests, requestDuration,
			polls, interfaceCounters,
		)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

// ClientMetrics reports one router's client traffic.
type ClientMetrics struct {
	router string
}

func NewClientMetrics(router string) *ClientMetrics {
	RegisterMetrics()
	return &ClientMetrics{router: router}
}

func (m *ClientMetrics) SentenceSent() {
	sentencesSent.WithLabelValues(m.router).Inc()
}

func (m *ClientMetrics) SentenceReceived() {
	sentencesReceived.WithLabelValues(m.router).Inc()
}

func (m *ClientMetrics) DecodeError() {
	decodeErrors.WithLabelValues(m.router).Inc()
}

func (m *ClientMetrics) PendingChanged(n int) {
	pendingRequests.WithLabelValues(m.router).Set(float64(n))
}

func (m *ClientMetrics) RequestCompleted(latency time.Duration) {
	requestDuration.WithLabelValues(m.router).Observe(latency.Seconds())
}

// PollerMetrics exports poll outcomes and interface counters.
type PollerMetrics struct{}

func NewPollerMetrics() PollerMetrics {
	RegisterMetrics()
	return PollerMetrics{}
}

func (PollerMetrics) Session(routerID string) session.Metrics {
	return NewClientMetrics(routerID)
}

func (PollerMetrics) PollResult(routerID, outcome string) {
	polls.WithLabelValues(routerID, outcome).Inc()
}

func (PollerMetrics) Interfaces(routerID string, stats []poller.InterfaceStats) {
	for _, s := range stats {
		for key, v := range s.Counters {
			interfaceCounters.WithLabelValues(routerID, s.Name, key).Set(float64(v))
		}
	}
}
