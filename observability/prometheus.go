package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory that registers one collector per
// metric name. Dotted names become underscores: "crmledger.invoice.paid"
// is exported as crmledger_invoice_paid_total.
type PrometheusFactory struct {
	registerer  prometheus.Registerer
	constLabels prometheus.Labels

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory returns a factory registering on registerer, or on
// prometheus.DefaultRegisterer when it is nil.
func NewPrometheusFactory(registerer prometheus.Registerer, constLabels prometheus.Labels) *PrometheusFactory {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		registerer:  registerer,
		constLabels: constLabels,
		counters:    make(map[string]prometheus.Counter),
		histograms:  make(map[string]prometheus.Histogram),
	}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        metricName(name) + "_total",
		Help:        "Count of " + name + " events.",
		ConstLabels: f.constLabels,
	})
	c = register(f.registerer, c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	buckets := prometheus.DefBuckets
	switch {
	case strings.HasSuffix(name, "_ms"):
		buckets = prometheus.ExponentialBuckets(1, 4, 8)
	case strings.HasSuffix(name, "_amount"):
		buckets = prometheus.ExponentialBuckets(100, 4, 8)
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        metricName(name),
		Help:        "Distribution of " + name + ".",
		Buckets:     buckets,
		ConstLabels: f.constLabels,
	})
	h = register(f.registerer, h)
	f.histograms[name] = h
	return h
}

// register adds c to r, reusing an identical collector registered earlier.
func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
