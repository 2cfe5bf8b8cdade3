// ABOUTME: Prometheus metrics for the live voice pipeline
// ABOUTME: All recording methods are safe on a nil *Metrics so metrics stay optional
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the client
type Metrics struct {
	registry *prometheus.Registry

	// Capture
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter
	UserTalking   prometheus.Gauge

	// Remote session
	FragmentsReceived *prometheus.CounterVec
	Interruptions     prometheus.Counter
	CodecErrors       prometheus.Counter
	SessionsOpened    prometheus.Counter
	SessionErrors     *prometheus.CounterVec

	// Playback
	ActiveSources prometheus.Gauge

	// Controller
	StateTransitions *prometheus.CounterVec

	// Chat
	CacheLookups   *prometheus.CounterVec
	ChatRequests   *prometheus.CounterVec
	ChatDuration   prometheus.Histogram
	MessagesStored prometheus.Counter
}

// New creates and registers all metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_capture_frames_sent_total",
			Help: "Microphone frames queued for the live session",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_capture_frames_dropped_total",
			Help: "Microphone frames dropped by a congested transport",
		}),
		UserTalking: f.NewGauge(prometheus.GaugeOpts{
			Name: "ashama_user_talking",
			Help: "1 while the amplitude heuristic reports user speech",
		}),

		FragmentsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ashama_live_fragments_received_total",
			Help: "Messages received from the live session by kind",
		}, []string{"kind"}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_live_interruptions_total",
			Help: "Interruption markers received",
		}),
		CodecErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_live_codec_errors_total",
			Help: "Audio fragments dropped because they failed to decode",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_live_sessions_opened_total",
			Help: "Live sessions successfully opened",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ashama_live_session_errors_total",
			Help: "Session failures by category",
		}, []string{"category"}),

		ActiveSources: f.NewGauge(prometheus.GaugeOpts{
			Name: "ashama_playback_active_sources",
			Help: "Playback sources currently in flight",
		}),

		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ashama_overlay_state_transitions_total",
			Help: "Overlay state machine transitions by target state",
		}, []string{"state"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ashama_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ashama_chat_requests_total",
			Help: "Generation requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ashama_chat_request_duration_seconds",
			Help:    "Latency of generation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "ashama_store_messages_total",
			Help: "Messages appended to the conversation store",
		}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FrameSent records a queued capture frame
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// FrameDropped records a capture frame lost to backpressure
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// SetUserTalking records the talking heuristic
func (m *Metrics) SetUserTalking(talking bool) {
	if m == nil {
		return
	}
	if talking {
		m.UserTalking.Set(1)
	} else {
		m.UserTalking.Set(0)
	}
}

// Fragment records an inbound message of the given kind
func (m *Metrics) Fragment(kind string) {
	if m == nil {
		return
	}
	m.FragmentsReceived.WithLabelValues(kind).Inc()
}

// Interruption records an interruption marker
func (m *Metrics) Interruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// CodecError records a dropped undecodable fragment
func (m *Metrics) CodecError() {
	if m == nil {
		return
	}
	m.CodecErrors.Inc()
}

// SessionOpened records a successful connect
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

// SessionError records a failure category
func (m *Metrics) SessionError(category string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(category).Inc()
}

// SetActiveSources records the playback in-flight set size
func (m *Metrics) SetActiveSources(n int) {
	if m == nil {
		return
	}
	m.ActiveSources.Set(float64(n))
}

// StateTransition records entry into state
func (m *Metrics) StateTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// CacheLookup records a cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ChatRequest records one generation request
func (m *Metrics) ChatRequest(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ChatRequests.WithLabelValues(kind, outcome).Inc()
	m.ChatDuration.Observe(time.Since(started).Seconds())
}

// MessageStored records a persisted conversation message
func (m *Metrics) MessageStored() {
	if m == nil {
		return
	}
	m.MessagesStored.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
