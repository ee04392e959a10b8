package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authkit"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
	if got := New(nil).Render(); got != "" {
		t.Fatalf("expected empty output for nil engine, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricLoginSuccess: 7,
				authkit.MetricRateLimitHit: 2,
			},
			Histograms: map[authkit.MetricID][]uint64{
				authkit.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authkit_login_success_total 7",
		"authkit_rate_limit_hit_total 2",
		"authkit_register_success_total 0",
		`authkit_login_latency_seconds_bucket{le="0.025"} 1`,
		`authkit_login_latency_seconds_bucket{le="+Inf"} 36`,
		"authkit_login_latency_seconds_count 36",
		"authkit_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsMissingHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{authkit.MetricLogout: 1},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	})
	if out := exp.Render(); strings.Contains(out, "authkit_login_latency_seconds") {
		t.Fatalf("histogram rendered without samples:\n%s", out)
	}
}

func TestRenderFromEngine(t *testing.T) {
	cfg := authkit.DefaultConfig()
	cfg.Metrics.Enabled = true
	m := authkit.NewMetrics(cfg.Metrics)
	m.Inc(authkit.MetricSessionCreated)

	exp := NewFromSource(metricsOnly{m})
	if out := exp.Render(); !strings.Contains(out, "authkit_session_created_total 1") {
		t.Fatalf("expected session counter, got:\n%s", out)
	}
}

type metricsOnly struct{ m *authkit.Metrics }

func (s metricsOnly) MetricsSnapshot() authkit.MetricsSnapshot { return s.m.Snapshot() }
func (s metricsOnly) AuditDropped() uint64                     { return 0 }

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{authkit.MetricLoginSuccess: 1},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricLoginSuccess:         1000,
				authkit.MetricLoginFailure:         40,
				authkit.MetricRememberLoginSuccess: 800,
				authkit.MetricSessionCreated:       800,
				authkit.MetricSessionRotated:       20,
				authkit.MetricPasswordResetFailure: 3,
			},
			Histograms: map[authkit.MetricID][]uint64{
				authkit.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
