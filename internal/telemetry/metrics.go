// Package telemetry exposes prometheus metrics for the rendering pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/midisynthd/midisynthd/internal/logging"
)

// Metrics holds the pipeline metric instruments. A nil *Metrics is valid
// and turns every record method into a no-op, which keeps tests and
// metric-less deployments free of conditionals at call sites.
type Metrics struct {
	registry *prometheus.Registry

	eventsCaptured   prometheus.Counter
	eventsDropped    prometheus.Counter
	channelOverflows prometheus.Counter
	bytesEncoded     prometheus.Counter
	periodsRendered  prometheus.Counter
	renderErrors     prometheus.Counter
	deviceUnderruns  prometheus.Counter
	pauseTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_events_captured_total",
			Help: "Performance events received from the MIDI source",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_events_dropped_total",
			Help: "Encoded events dropped due to transfer channel overflow",
		}),
		channelOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_channel_overflows_total",
			Help: "Transfer channel overflow conditions",
		}),
		bytesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_bytes_encoded_total",
			Help: "Command bytes produced by the event encoder",
		}),
		periodsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_periods_rendered_total",
			Help: "Audio periods rendered and written to the output device",
		}),
		renderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_render_errors_total",
			Help: "Rendering engine errors",
		}),
		deviceUnderruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midisynthd_device_underruns_total",
			Help: "Output device buffer underruns recovered",
		}),
		pauseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midisynthd_pause_transitions_total",
			Help: "Idle pause and unpause transitions of the output device",
		}, []string{"direction"}),
	}

	registry.MustRegister(
		m.eventsCaptured,
		m.eventsDropped,
		m.channelOverflows,
		m.bytesEncoded,
		m.periodsRendered,
		m.renderErrors,
		m.deviceUnderruns,
		m.pauseTransitions,
	)

	return m
}

func (m *Metrics) RecordEventCaptured() {
	if m == nil {
		return
	}
	m.eventsCaptured.Inc()
}

func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
	m.channelOverflows.Inc()
}

func (m *Metrics) RecordBytesEncoded(n int) {
	if m == nil {
		return
	}
	m.bytesEncoded.Add(float64(n))
}

func (m *Metrics) RecordPeriodRendered() {
	if m == nil {
		return
	}
	m.periodsRendered.Inc()
}

func (m *Metrics) RecordRenderError() {
	if m == nil {
		return
	}
	m.renderErrors.Inc()
}

func (m *Metrics) RecordUnderrun() {
	if m == nil {
		return
	}
	m.deviceUnderruns.Inc()
}

func (m *Metrics) RecordPause(paused bool) {
	if m == nil {
		return
	}
	direction := "pause"
	if !paused {
		direction = "unpause"
	}
	m.pauseTransitions.WithLabelValues(direction).Inc()
}

// Serve starts an HTTP listener exposing the metrics endpoint. It returns
// the server so the caller can shut it down.
func (m *Metrics) Serve(addr string) *http.Server {
	if m == nil {
		return nil
	}
	log := logging.ForService("telemetry")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()

	return srv
}
