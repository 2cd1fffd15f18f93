// Package metrics is a small Prometheus-text metrics collector for the
// notifier and the autofix listener.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter only goes up.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge goes up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []bucket
}

type bucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func metricKey(name, labels string) string {
	return name + "{" + labels + "}"
}

// Counter returns the counter registered under name and labels, creating it if needed.
func (r *Registry) Counter(name, help, labels string) *Counter {
	key := metricKey(name, labels)
	if v, ok := r.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := r.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns the gauge registered under name and labels, creating it if needed.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	key := metricKey(name, labels)
	if v, ok := r.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := r.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram returns the histogram registered under name and labels, creating it if needed.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	key := metricKey(name, labels)
	if v, ok := r.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	buckets := make([]bucket, len(sorted))
	for i, b := range sorted {
		buckets[i] = bucket{le: b}
	}
	actual, _ := r.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: buckets})
	return actual.(*Histogram)
}

// Render writes every metric in Prometheus text exposition format.
func (r *Registry) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP scopelock_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE scopelock_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "scopelock_uptime_seconds %d\n\n", int64(r.Uptime().Seconds()))

	writeSample := func(name, labels string, v int64) {
		if labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", name, labels, v)
		} else {
			fmt.Fprintf(&sb, "%s %d\n", name, v)
		}
	}

	seen := make(map[string]bool)
	for _, c := range sortedValues[*Counter](&r.counters) {
		if !seen[c.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			seen[c.name] = true
		}
		writeSample(c.name, c.labels, c.Value())
	}

	seen = make(map[string]bool)
	for _, g := range sortedValues[*Gauge](&r.gauges) {
		if !seen[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			seen[g.name] = true
		}
		writeSample(g.name, g.labels, g.Value())
	}

	for _, h := range sortedValues[*Histogram](&r.histograms) {
		h.mu.Lock()
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		prefix := h.name + "_bucket{"
		if h.labels != "" {
			prefix += h.labels + ","
		}
		hasInf := false
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
				hasInf = true
			}
			fmt.Fprintf(&sb, "%sle=\"%s\"} %d\n", prefix, le, b.count)
		}
		if !hasInf {
			fmt.Fprintf(&sb, "%sle=\"+Inf\"} %d\n", prefix, h.count)
		}
		writeSample(h.name+"_count", h.labels, h.count)
		if h.labels != "" {
			fmt.Fprintf(&sb, "%s_sum{%s} %f\n", h.name, h.labels, h.sum)
		} else {
			fmt.Fprintf(&sb, "%s_sum %f\n", h.name, h.sum)
		}
		h.mu.Unlock()
	}

	return sb.String()
}

// Handler serves Render over HTTP.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, r.Render())
	}
}

// sortedValues returns the map's values ordered by key so output is stable.
func sortedValues[T any](m *sync.Map) []T {
	var keys []string
	vals := make(map[string]T)
	m.Range(func(k, v any) bool {
		keys = append(keys, k.(string))
		vals[k.(string)] = v.(T)
		return true
	})
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, vals[k])
	}
	return out
}

var (
	ChunksDelivered  = Collector.Counter("scopelock_chunks_delivered_total", "Chunks accepted by the transport", "")
	FormatFallbacks  = Collector.Counter("scopelock_format_fallbacks_total", "Chunks resent as plain text after a markup rejection", "")
	DeliveryFailures = Collector.Counter("scopelock_delivery_failures_total", "Dispatches aborted by a transport error", "")
	WebhooksReceived = Collector.Counter("scopelock_webhooks_received_total", "Deployment webhooks received", "")
	FixesInvoked     = Collector.Counter("scopelock_fixes_invoked_total", "Autofix commands started", "")
	FixesRunning     = Collector.Gauge("scopelock_fixes_running", "Autofix commands currently running", "")

	DispatchLatency = Collector.Histogram("scopelock_dispatch_latency_seconds", "Wall time of one dispatch including pacing", "",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
)
