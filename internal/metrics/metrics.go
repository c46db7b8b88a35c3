// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records model invocation and conversation metrics.
//
// Recorder is the seam used by the model client and the agent. Noop discards
// everything; Prom exports Prometheus collectors on its own registry so
// several instances (tests, multiple agents) never collide on registration.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the client and the agent.
const (
	OutcomeOK              = "ok"
	OutcomeConnection      = "connection"
	OutcomeTimeout         = "timeout"
	OutcomeModelNotFound   = "model_not_found"
	OutcomeContextExceeded = "context_exceeded"
	OutcomeValidation      = "validation"
	OutcomeError           = "error"
)

// Recorder receives metric observations.
type Recorder interface {
	// ObserveRequest records one HTTP round trip to the model backend.
	ObserveRequest(model, endpoint, outcome string, seconds float64)
	// IncRetries counts a retried backend request.
	IncRetries(model string)
	// ObserveExchange records one complete agent call.
	ObserveExchange(outcome string, seconds float64)
	// IncReductions counts a history reduction after a context overflow.
	IncReductions()
	// SetHistoryTurns reports the number of retained turns.
	SetHistoryTurns(n int)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) IncRetries(string)                              {}
func (Noop) ObserveExchange(string, float64)                {}
func (Noop) IncReductions()                                 {}
func (Noop) SetHistoryTurns(int)                            {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	exchanges       *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	reductions      prometheus.Counter
	historyTurns    prometheus.Gauge
}

// NewProm creates collectors under namespace and registers them, together with
// the Go runtime and process collectors, on a fresh registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Model backend requests by model, endpoint and outcome",
		}, []string{"model", "endpoint", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Model backend request latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model", "endpoint"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Retried model backend requests by model",
		}, []string{"model"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_exchanges_total",
			Help:      "Agent calls by outcome",
		}, []string{"outcome"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_exchange_duration_seconds",
			Help:      "End-to-end agent call latency",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		reductions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_reductions_total",
			Help:      "History reductions after context overflow",
		}),
		historyTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_turns",
			Help:      "Turns currently retained by the conversation manager",
		}),
	}
	p.registry.MustRegister(
		p.requests, p.requestLatency, p.retries,
		p.exchanges, p.exchangeLatency, p.reductions, p.historyTurns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) ObserveRequest(model, endpoint, outcome string, seconds float64) {
	p.requests.WithLabelValues(model, endpoint, outcome).Inc()
	p.requestLatency.WithLabelValues(model, endpoint).Observe(seconds)
}

func (p *Prom) IncRetries(model string) {
	p.retries.WithLabelValues(model).Inc()
}

func (p *Prom) ObserveExchange(outcome string, seconds float64) {
	p.exchanges.WithLabelValues(outcome).Inc()
	p.exchangeLatency.Observe(seconds)
}

func (p *Prom) IncReductions() {
	p.reductions.Inc()
}

func (p *Prom) SetHistoryTurns(n int) {
	p.historyTurns.Set(float64(n))
}

// Registry exposes the underlying registry for tests and custom exporters.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns once the
// listener is closed; a clean shutdown returns nil.
func (p *Prom) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
