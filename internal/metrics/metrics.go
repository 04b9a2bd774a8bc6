package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names recorded by the server and client
const (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration"
	HTTPRequestsActive  = "http_requests_active"
	MessagesCreated     = "messages_created_total"
	MessagesPinned      = "messages_pinned_total"
	FanoutPublished     = "fanout_events_published_total"
	FanoutDelivered     = "fanout_events_delivered_total"
	FanoutDropped       = "fanout_events_dropped_total"
	FanoutConnections   = "fanout_connections"
	RelayPublished      = "fanout_relay_published_total"
	RelayDropped        = "fanout_relay_dropped_total"
	DetectionRequests   = "detection_requests_total"
	DetectionDuration   = "detection_request_duration"
	ClientQueued        = "client_messages_queued_total"
	ClientDrained       = "client_messages_drained_total"
	ClientDrainFailures = "client_drain_failures_total"
	RetentionDeleted    = "retention_messages_deleted_total"
	RateLimitedRequests = "rate_limited_requests_total"
)

const (
	maxTimerSamples      = 1000
	minPercentileSamples = 10
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// Metric represents a single counter or gauge value
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric stores timing information
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
	P99     float64 `json:"p99_ms,omitempty"`
	samples []float64
}

// Snapshot is a point-in-time copy of every metric
type Snapshot struct {
	Counters  map[string]Metric      `json:"counters"`
	Timers    map[string]TimerMetric `json:"timers"`
	Gauges    map[string]Metric      `json:"gauges"`
	UptimeMs  int64                  `json:"uptime_ms"`
	Timestamp int64                  `json:"timestamp"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addTo(r.counters, Counter, name, value, labels, description)
}

// AddToGauge moves a gauge up or down, e.g. open connections
func (r *Registry) AddToGauge(name string, delta float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addTo(r.gauges, Gauge, name, delta, labels, description)
}

// SetGauge sets a gauge metric value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

func addTo(set map[string]*Metric, kind MetricType, name string, value float64, labels map[string]string, description string) {
	key := metricKey(name, labels)
	if m, exists := set[key]; exists {
		m.Value += value
		m.LastUpdate = time.Now()
		return
	}
	set[key] = &Metric{
		Name:        name,
		Type:        kind,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// RecordTimer records a timing measurement
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	durationMs := float64(duration.Nanoseconds()) / 1e6

	timer, exists := r.timers[key]
	if !exists {
		r.timers[key] = &TimerMetric{
			Count:   1,
			Sum:     durationMs,
			Min:     durationMs,
			Max:     durationMs,
			Average: durationMs,
			samples: []float64{durationMs},
		}
		return
	}

	timer.Count++
	timer.Sum += durationMs
	timer.samples = append(timer.samples, durationMs)
	if durationMs < timer.Min {
		timer.Min = durationMs
	}
	if durationMs > timer.Max {
		timer.Max = durationMs
	}
	timer.Average = timer.Sum / float64(timer.Count)

	if len(timer.samples) > maxTimerSamples {
		timer.samples = timer.samples[len(timer.samples)-maxTimerSamples:]
	}
	if len(timer.samples) >= minPercentileSamples {
		timer.P95 = percentile(timer.samples, 0.95)
		timer.P99 = percentile(timer.samples, 0.99)
	}
}

// CounterValue returns the current value of a counter, or zero
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.counters[metricKey(name, labels)]; ok {
		return m.Value
	}
	return 0
}

// GaugeValue returns the current value of a gauge, or zero
func (r *Registry) GaugeValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.gauges[metricKey(name, labels)]; ok {
		return m.Value
	}
	return 0
}

// Snapshot copies every metric
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:  make(map[string]Metric, len(r.counters)),
		Timers:    make(map[string]TimerMetric, len(r.timers)),
		Gauges:    make(map[string]Metric, len(r.gauges)),
		UptimeMs:  time.Since(r.startTime).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
	for key, m := range r.counters {
		snap.Counters[key] = *m
	}
	for key, t := range r.timers {
		copied := *t
		copied.samples = nil
		snap.Timers[key] = copied
	}
	for key, m := range r.gauges {
		snap.Gauges[key] = *m
	}
	return snap
}

// metricKey builds a stable key from the name and sorted labels
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(labels[k])
	}
	return b.String()
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}

	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return copied
}

// IncrementCounter increments a counter in the global registry
func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

// AddToCounter adds to a counter in the global registry
func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

// AddToGauge moves a gauge in the global registry
func AddToGauge(name string, delta float64, labels map[string]string, description string) {
	globalRegistry.AddToGauge(name, delta, labels, description)
}

// RecordTimer records timing in the global registry
func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

// SetGauge sets a gauge in the global registry
func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

// GetSnapshot returns all metrics from the global registry
func GetSnapshot() Snapshot {
	return globalRegistry.Snapshot()
}
