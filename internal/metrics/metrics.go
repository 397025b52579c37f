// Package metrics registers:
//
//	gradearb_passes_total{result}
//	gradearb_pass_duration_seconds
//	gradearb_cards_scored
//	gradearb_opportunities
//	gradearb_alerts_total{type}
//	go_* and process_* system metrics
//
// and exposes them on /metrics through the Prometheus HTTP handler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gradearb"

// Recorder owns a registry so tests can create isolated instances. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	cardsScored   prometheus.Gauge
	opportunities prometheus.Gauge
	alerts        *prometheus.CounterVec
}

// New creates a Recorder with its collectors registered on a private registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Aggregation passes by result (success or failure).",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a full aggregation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		cardsScored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cards_scored",
			Help:      "Cards processed by the last successful pass.",
		}),
		opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities",
			Help:      "Opportunities published by the last successful pass.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by type.",
		}, []string{"type"}),
	}

	r.registry.MustRegister(
		r.passes,
		r.passDuration,
		r.cardsScored,
		r.opportunities,
		r.alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObservePass records one pass outcome.
func (r *Recorder) ObservePass(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.passes.WithLabelValues(result).Inc()
	r.passDuration.Observe(d.Seconds())
}

// SetSnapshot records the size of the last published snapshot.
func (r *Recorder) SetSnapshot(cards, opportunities int) {
	if r == nil {
		return
	}
	r.cardsScored.Set(float64(cards))
	r.opportunities.Set(float64(opportunities))
}

// AlertRaised counts one alert of the given type.
func (r *Recorder) AlertRaised(alertType string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(alertType).Inc()
}

// Registry returns the private registry, for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
