package adapter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// Metrics records relocation pass outcomes.
type Metrics interface {
	ObservePass(phase string, report m.PassReport)
	IncFailure(phase, class string)
	IncGuard(status m.GuardStatus)
	// Flush exports the collected metrics. It is a no-op when no sink is set.
	Flush() error
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) ObservePass(string, m.PassReport) {}
func (NoopMetrics) IncFailure(string, string)        {}
func (NoopMetrics) IncGuard(m.GuardStatus)           {}
func (NoopMetrics) Flush() error                     { return nil }

// PromMetrics implements Metrics with Prometheus collectors on a private
// registry that is written to a node_exporter textfile on Flush.
type PromMetrics struct {
	registry  *prometheus.Registry
	textfile  string
	files     *prometheus.CounterVec
	passes    *prometheus.CounterVec
	failures  *prometheus.CounterVec
	guard     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	once      sync.Once
}

// NewPromMetrics builds collectors under namespace. textfile may be empty,
// in which case Flush does nothing.
func NewPromMetrics(namespace, textfile string) *PromMetrics {
	p := &PromMetrics{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Entries seen by relocation passes by phase and kind",
		}, []string{"phase", "kind"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Completed relocation passes by phase",
		}, []string{"phase"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed relocation steps by phase and error class",
		}, []string{"phase", "class"}),
		guard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_checks_total",
			Help:      "Launch-time guard outcomes by status",
		}, []string{"status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Relocation pass duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"phase"}),
	}
	p.register()

	return p
}

func (p *PromMetrics) register() {
	p.once.Do(func() {
		p.registry.MustRegister(p.files, p.passes, p.failures, p.guard, p.durations)
	})
}

// Registry exposes the private registry, mainly for tests.
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PromMetrics) ObservePass(phase string, report m.PassReport) {
	p.passes.WithLabelValues(phase).Inc()
	p.durations.WithLabelValues(phase).Observe(report.Duration.Seconds())

	for kind, n := range report.Counts {
		p.files.WithLabelValues(phase, kind.String()).Add(float64(n))
	}
}

func (p *PromMetrics) IncFailure(phase, class string) {
	p.failures.WithLabelValues(phase, class).Inc()
}

func (p *PromMetrics) IncGuard(status m.GuardStatus) {
	p.guard.WithLabelValues(status.String()).Inc()
}

// Flush writes the registry in text exposition format to the textfile.
func (p *PromMetrics) Flush() error {
	if p.textfile == "" {
		return nil
	}

	return prometheus.WriteToTextfile(p.textfile, p.registry)
}
