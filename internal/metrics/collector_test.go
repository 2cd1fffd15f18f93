package metrics

import (
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter_SameKeySameCounter(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", "")
	b := r.Counter("x_total", "help", "")
	a.Inc()
	b.Add(2)
	if a != b || a.Value() != 3 {
		t.Fatalf("expected one shared counter at 3, got %d", a.Value())
	}
}

func TestCounter_Concurrent(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("hits_total", "hits", "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	if c.Value() != 50 {
		t.Fatalf("expected 50, got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewRegistry().Gauge("running", "running", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("expected 1, got %d", g.Value())
	}
	g.Set(7)
	if g.Value() != 7 {
		t.Fatalf("expected 7, got %d", g.Value())
	}
}

func TestRender(t *testing.T) {
	r := NewRegistry()
	r.Counter("sent_total", "Messages sent", "").Add(4)
	r.Counter("errors_total", "Errors", `kind="parse"`).Inc()
	r.Gauge("fixes_running", "Fixes", "").Set(2)
	h := r.Histogram("latency_seconds", "Latency", "", []float64{1, 0.5})
	h.Observe(0.2)
	h.Observe(0.7)
	h.Observe(3)

	out := r.Render()
	for _, want := range []string{
		"# TYPE scopelock_uptime_seconds gauge",
		"# TYPE sent_total counter",
		"sent_total 4",
		`errors_total{kind="parse"} 1`,
		"# TYPE fixes_running gauge",
		"fixes_running 2",
		`latency_seconds_bucket{le="0.5"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
		"latency_seconds_sum 3.900000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
	if h.Count() != 3 {
		t.Fatalf("expected 3 observations, got %d", h.Count())
	}
}

func TestRender_ExplicitInfBucket(t *testing.T) {
	r := NewRegistry()
	r.Histogram("h", "h", "", []float64{1, math.Inf(1)}).Observe(5)
	out := r.Render()
	if strings.Count(out, `le="+Inf"`) != 1 {
		t.Fatalf("expected a single +Inf bucket:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.Counter("a_total", "a", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "a_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
