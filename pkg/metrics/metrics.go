// Package metrics keeps an in-process registry of portal counters and
// exposes them as JSON and in the Prometheus text format.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu       sync.RWMutex
	endpoint map[string]*EndpointStat
	login    map[string]int64
	payment  map[string]int64
	gauges   map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt string                  `json:"generated_at"`
	Endpoints   map[string]EndpointStat `json:"endpoints"`
	Logins      map[string]int64        `json:"logins"`
	Payments    map[string]int64        `json:"payments"`
	Gauges      map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint: map[string]*EndpointStat{},
		login:    map[string]int64{},
		payment:  map[string]int64{},
		gauges:   map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncLogin counts a login outcome: success, failure or blocked.
func (r *Registry) IncLogin(outcome string) {
	outcome = strings.TrimSpace(strings.ToLower(outcome))
	if outcome == "" {
		return
	}
	r.mu.Lock()
	r.login[outcome]++
	r.mu.Unlock()
}

// IncPayment counts a payment lifecycle action: created, verified,
// reverted or deleted.
func (r *Registry) IncPayment(action string) {
	action = strings.TrimSpace(strings.ToLower(action))
	if action == "" {
		return
	}
	r.mu.Lock()
	r.payment[action]++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Logins:      make(map[string]int64, len(r.login)),
		Payments:    make(map[string]int64, len(r.payment)),
		Gauges:      make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.login {
		out.Logins[k] = v
	}
	for k, v := range r.payment {
		out.Payments[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}

		section := func(metric, kind, help string) {
			fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", metric, help, metric, kind)
		}
		endpointSeries := func(metric, kind, help string, value func(EndpointStat) string) {
			section(metric, kind, help)
			for _, ep := range SortedKeys(snap.Endpoints) {
				fmt.Fprintf(b, "%s{endpoint=%q} %s\n", metric, ep, value(snap.Endpoints[ep]))
			}
		}
		counterSeries := func(metric, label, help string, values map[string]int64) {
			section(metric, "counter", help)
			for _, key := range SortedKeys(values) {
				fmt.Fprintf(b, "%s{%s=%q} %d\n", metric, label, key, values[key])
			}
		}

		endpointSeries("portal_endpoint_count", "counter", "total requests by endpoint",
			func(s EndpointStat) string { return fmt.Sprintf("%d", s.Count) })
		endpointSeries("portal_endpoint_error_count", "counter", "total endpoint errors",
			func(s EndpointStat) string { return fmt.Sprintf("%d", s.ErrorCount) })
		endpointSeries("portal_endpoint_avg_millis", "gauge", "endpoint average latency in milliseconds",
			func(s EndpointStat) string { return fmt.Sprintf("%.3f", s.AverageMillis) })
		endpointSeries("portal_endpoint_max_millis", "gauge", "endpoint max latency in milliseconds",
			func(s EndpointStat) string { return fmt.Sprintf("%d", s.MaxMillis) })
		counterSeries("portal_login_total", "outcome", "login attempts by outcome", snap.Logins)
		counterSeries("portal_payment_total", "action", "payment actions by kind", snap.Payments)

		section("portal_gauge", "gauge", "operational gauge metrics")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "portal_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
