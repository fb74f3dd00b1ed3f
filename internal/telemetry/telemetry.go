// Package telemetry wires the two observability backends the pack
// carries: a prometheus registry served over /metrics, grounded on the
// teacher's internal/master/server.go (promauto counters plus a
// `go func() { http.Handle("/metrics", promhttp.Handler()); ... }()`
// goroutine), and an optional go-metrics registry exported to graphite
// on an interval, for deployments that already run a carbon collector
// instead of scraping prometheus.
package telemetry

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gmetrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Metrics is the fixed set of counters/histograms fed by the client's
// Read and Write calls and by the write and bulk engines' compensating
// removes. Namespaced under the app's own metric namespace so many
// clients in one process (each with its own AppName) don't collide.
type Metrics struct {
	registry gmetrics.Registry

	WriteTotal      *prometheus.CounterVec
	WriteDuration   *prometheus.HistogramVec
	ReadTotal       *prometheus.CounterVec
	ReadDuration    *prometheus.HistogramVec
	CompensateTotal prometheus.Counter

	writeRate gmetrics.Meter
	readRate  gmetrics.Meter
}

// sanitizeNamespace maps namespace to a valid prometheus metric name
// component ([a-zA-Z0-9_:]), since prometheus.CounterOpts.Namespace is
// concatenated directly into the metric's fully qualified name.
func sanitizeNamespace(namespace string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == ':' {
			return r
		}
		return '_'
	}, namespace)
}

// registerCounterVec registers c and returns it, or returns the
// already-registered collector under the same fully qualified name if
// one exists. Namespaces are per-app (typically AppName), so multiple
// Metrics instances sharing a namespace in one process (e.g. several
// Clients constructed in the same test binary) share the underlying
// prometheus collector rather than panicking on double registration.
func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(err)
	}
	return c
}

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

// New registers the metric set under namespace (typically the client's
// AppName) with the default prometheus registerer, and mirrors write/read
// throughput into a go-metrics registry for graphite export.
func New(namespace string) *Metrics {
	namespace = sanitizeNamespace(namespace)
	registry := gmetrics.NewRegistry()
	m := &Metrics{
		registry: registry,
		WriteTotal: registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_total",
			Help:      "Write calls by outcome.",
		}, []string{"outcome"})),
		WriteDuration: registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Write call latency.",
		}, []string{"outcome"})),
		ReadTotal: registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_total",
			Help:      "Read calls by outcome.",
		}, []string{"outcome"})),
		ReadDuration: registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Read call latency.",
		}, []string{"outcome"})),
		CompensateTotal: registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensate_total",
			Help:      "Best-effort compensating removes issued after a rejected write.",
		})),
		writeRate: gmetrics.NewMeter(),
		readRate:  gmetrics.NewMeter(),
	}
	registry.Register("write.rate", m.writeRate)
	registry.Register("read.rate", m.readRate)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveWrite records one write call's outcome and latency.
func (m *Metrics) ObserveWrite(d time.Duration, err error) {
	o := outcome(err)
	m.WriteTotal.WithLabelValues(o).Inc()
	m.WriteDuration.WithLabelValues(o).Observe(d.Seconds())
	m.writeRate.Mark(1)
}

// ObserveRead records one read call's outcome and latency.
func (m *Metrics) ObserveRead(d time.Duration, err error) {
	o := outcome(err)
	m.ReadTotal.WithLabelValues(o).Inc()
	m.ReadDuration.WithLabelValues(o).Observe(d.Seconds())
	m.readRate.Mark(1)
}

// ObserveCompensate records one compensating remove.
func (m *Metrics) ObserveCompensate() {
	m.CompensateTotal.Inc()
}

// ServeHTTP starts the /metrics prometheus endpoint on addr, in the
// style of the teacher's fire-and-forget metrics goroutine. It never
// returns; callers run it with `go`.
func ServeHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(addr, mux)
}

// RunGraphiteExporter reports the go-metrics registry to a graphite
// carbon endpoint every interval, until ctx is canceled. Errors from
// individual export attempts are logged and swallowed; a transient
// graphite outage should not take down the calling process.
func (m *Metrics) RunGraphiteExporter(ctx context.Context, addr string, interval time.Duration, log *logrus.Entry) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := graphite.Once(graphite.Config{
					Addr:          tcpAddr,
					Registry:      m.registry,
					FlushInterval: interval,
					DurationUnit:  time.Nanosecond,
					Prefix:        "",
					Percentiles:   []float64{0.5, 0.75, 0.95, 0.99},
				}); err != nil && log != nil {
					log.WithError(err).Warn("telemetry: graphite export failed")
				}
			}
		}
	}()
	return nil
}
