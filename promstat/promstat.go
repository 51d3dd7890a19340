// Package promstat provides a Statter which exposes stats as Prometheus
// metrics.
package promstat

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "wdhistory"

// Statter creates one metric per stat name on first use. Tags of the form
// "key:value" become labels; the label names of a metric are fixed by the
// tags of its first use.
type Statter struct {
	reg     *prometheus.Registry
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]*vec
	gauges     map[string]*vec
	histograms map[string]*vec
}

type vec struct {
	labels    []string
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

// NewStatter returns a Statter registering its metrics on a new registry.
func NewStatter() *Statter {
	reg := prometheus.NewRegistry()
	return &Statter{
		reg:        reg,
		factory:    promauto.With(reg),
		counters:   make(map[string]*vec),
		gauges:     make(map[string]*vec),
		histograms: make(map[string]*vec),
	}
}

// Registry returns the registry the metrics are registered on.
func (s *Statter) Registry() *prometheus.Registry { return s.reg }

// Handler serves the metrics in the Prometheus exposition format.
func (s *Statter) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func splitTags(tags []string) (keys, values []string) {
	for i, t := range tags {
		k, v := "tag"+strconv.Itoa(i), t
		if idx := strings.Index(t, ":"); idx > 0 {
			k, v = metricName(t[:idx]), t[idx+1:]
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values
}

// labelValues orders the values of tags by the label names of v.
func (v *vec) labelValues(tags []string) []string {
	keys, values := splitTags(tags)
	out := make([]string, len(v.labels))
	for i, l := range v.labels {
		for j, k := range keys {
			if k == l {
				out[i] = values[j]
			}
		}
	}
	return out
}

func (s *Statter) get(m map[string]*vec, name string, tags []string, mk func(name string, labels []string) *vec) *vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := m[name]
	if !ok {
		labels, _ := splitTags(tags)
		v = mk(metricName(name), labels)
		v.labels = labels
		m[name] = v
	}
	return v
}

// Count adds value to the counter name.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	v := s.get(s.counters, name, tags, func(n string, labels []string) *vec {
		return &vec{counter: s.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      n + "_total",
			Help:      "Count of " + name + ".",
		}, labels)}
	})
	v.counter.WithLabelValues(v.labelValues(tags)...).Add(float64(value))
}

// Gauge sets the gauge name.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	v := s.get(s.gauges, name, tags, func(n string, labels []string) *vec {
		return &vec{gauge: s.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      n,
			Help:      "Current " + name + ".",
		}, labels)}
	})
	v.gauge.WithLabelValues(v.labelValues(tags)...).Set(value)
}

// Histogram observes value in the histogram name.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	v := s.get(s.histograms, name, tags, func(n string, labels []string) *vec {
		return &vec{histogram: s.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      n,
			Help:      "Distribution of " + name + ".",
		}, labels)}
	})
	v.histogram.WithLabelValues(v.labelValues(tags)...).Observe(value)
}

// Set does nothing.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {}

// Timing observes value, in seconds, in the histogram name_seconds.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.Histogram(name+"_seconds", value.Seconds(), rate, tags...)
}
