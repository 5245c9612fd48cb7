package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/rosctl/internal/poller"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("rosctl", "GET", "/health", 200, 12*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("rosctl", "GET", "/health", "200")); got < 1 {
		t.Fatalf("unexpected http request count: %v", got)
	}
}

func TestClientMetricsTrackTraffic(t *testing.T) {
	testlog.Start(t)
	m := NewClientMetrics("metrics-test")
	m.SentenceSent()
	m.SentenceReceived()
	m.SentenceReceived()
	m.DecodeError()
	m.PendingChanged(3)
	m.RequestCompleted(5 * time.Millisecond)

	if got := testutil.ToFloat64(sentencesSent.WithLabelValues("metrics-test")); got != 1 {
		t.Fatalf("unexpected sent: %v", got)
	}
	if got := testutil.ToFloat64(sentencesReceived.WithLabelValues("metrics-test")); got != 2 {
		t.Fatalf("unexpected received: %v", got)
	}
	if got := testutil.ToFloat64(pendingRequests.WithLabelValues("metrics-test")); got != 3 {
		t.Fatalf("unexpected pending: %v", got)
	}
}

func TestPollerMetricsExportCounters(t *testing.T) {
	testlog.Start(t)
	pm := NewPollerMetrics()
	if pm.Session("poll-test") == nil {
		t.Fatalf("expected session metrics")
	}
	pm.PollResult("poll-test", poller.OutcomeOK)
	pm.Interfaces("poll-test", []poller.InterfaceStats{
		{Name: "ether1", Counters: map[string]uint64{"rx-byte": 4096}},
	})
	if got := testutil.ToFloat64(polls.WithLabelValues("poll-test", poller.OutcomeOK)); got != 1 {
		t.Fatalf("unexpected polls: %v", got)
	}
	if got := testutil.ToFloat64(interfaceCounters.WithLabelValues("poll-test", "ether1", "rx-byte")); got != 4096 {
		t.Fatalf("unexpected rx-byte: %v", got)
	}
}

func TestRequestMiddlewareRecordsRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(InitLogger("mw-test")), RequestMetricsMiddleware("mw-test"))
	r.GET("/routers/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routers/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", "/routers/:id", "404")); got != 1 {
		t.Fatalf("unexpected route count: %v", got)
	}
}

func TestRequestLoggerTagsRouterID(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/routers/:id/stats", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/routers/core/stats", nil))
	line := buf.String()
	if !strings.Contains(line, `"router":"core"`) || !strings.Contains(line, `"path":"/routers/:id/stats"`) {
		t.Fatalf("unexpected log line: %s", line)
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if strings.Contains(buf.String(), `"router"`) {
		t.Fatalf("health request tagged with a router: %s", buf.String())
	}
}
