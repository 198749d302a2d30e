// Package metrics defines the metrics sink every provider component reports to.
// Sinks are passed in explicitly; there is no process-wide instance.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Unit qualifies a reported value
type Unit string

// Units understood by the sinks
const (
	Count        Unit = "Count"
	Milliseconds Unit = "Milliseconds"
	Percent      Unit = "Percent"
	None         Unit = "None"
)

// Tags are dimension key/value pairs attached to a metric
type Tags map[string]string

// Sink accepts metric observations. Implementations must not panic or block the caller
// for long; use Safe to guard third-party sinks.
type Sink interface {
	PutMetric(name string, value float64, unit Unit, tags Tags)
}

// Nop discards everything
type Nop struct{}

// PutMetric implements Sink
func (Nop) PutMetric(string, float64, Unit, Tags) {}

// Log writes metrics to logrus at debug level
type Log struct{}

// PutMetric implements Sink
func (Log) PutMetric(name string, value float64, unit Unit, tags Tags) {
	fields := logrus.Fields{"metric": name, "value": value, "unit": string(unit)}
	for k, v := range tags {
		fields[k] = v
	}
	logrus.WithFields(fields).Debug("metric")
}

// Multi fans an observation out to several sinks
type Multi []Sink

// PutMetric implements Sink
func (m Multi) PutMetric(name string, value float64, unit Unit, tags Tags) {
	for _, s := range m {
		s.PutMetric(name, value, unit, tags)
	}
}

type safeSink struct {
	inner Sink
}

// Safe wraps a sink so that a panicking implementation never fails the caller.
// A nil sink becomes Nop.
func Safe(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	if _, ok := s.(safeSink); ok {
		return s
	}
	return safeSink{inner: s}
}

func (s safeSink) PutMetric(name string, value float64, unit Unit, tags Tags) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Metrics sink panicked on %s: %v", name, r)
		}
	}()
	s.inner.PutMetric(name, value, unit, tags)
}

// Prometheus records every metric name as a histogram labelled by network and unit.
// Histograms are created lazily on first use and registered on the given Registerer.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus creates a sink registering its collectors on reg
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		reg:        reg,
		namespace:  namespace,
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// PutMetric implements Sink
func (p *Prometheus) PutMetric(name string, value float64, unit Unit, tags Tags) {
	h := p.histogram(sanitize(name))
	if h == nil {
		return
	}
	h.WithLabelValues(tags["network"], string(unit)).Observe(value)
}

func (p *Prometheus) histogram(name string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}

	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      name,
		Help:      "Provider metric " + name,
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"network", "unit"})

	if err := p.reg.Register(h); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			logrus.Warnf("Failed to register metric %s: %v", name, err)
			return nil
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil
		}
		h = existing
	}
	p.histograms[name] = h
	return h
}

// sanitize maps a dotted metric name onto the prometheus name charset
func sanitize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.ToLower(b.String())
}
