package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics for one bot process. All helper
// methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Capture / segmenter
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	SessionsClosed *prometheus.CounterVec

	// Merger
	InvalidFrames    prometheus.Counter
	UtterancesMerged prometheus.Counter

	// Dispatcher
	TranscriptionJobs     *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	OutstandingJobs       prometheus.Gauge
	Turns                 *prometheus.CounterVec

	// Response / playback
	Responses          *prometheus.CounterVec
	PlaybackQueueDepth prometheus.Gauge
	PlaybackItems      *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceturn_frames_received_total",
			Help: "Audio frames accepted into a recording session",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceturn_frames_dropped_total",
			Help: "Audio frames dropped because no session was listening",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_sessions_closed_total",
			Help: "Recording sessions finalized, by kind (audio, silent)",
		}, []string{"kind"}),
		InvalidFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceturn_invalid_frames_total",
			Help: "Malformed frames skipped by the merger",
		}),
		UtterancesMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceturn_utterances_total",
			Help: "Utterances produced from closed sessions",
		}),
		TranscriptionJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_transcription_jobs_total",
			Help: "Transcription jobs by result (success, failure, stale)",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceturn_transcription_duration_seconds",
			Help:    "Time spent in the transcription collaborator",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		OutstandingJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceturn_outstanding_jobs",
			Help: "Transcription jobs in flight for the current turn",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_turns_total",
			Help: "Finished turns by outcome (published, aborted, empty)",
		}, []string{"outcome"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_responses_total",
			Help: "Responses enqueued for playback by kind (reply, fallback, skipped)",
		}, []string{"kind"}),
		PlaybackQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceturn_playback_queue_depth",
			Help: "Items waiting in the playback queue",
		}),
		PlaybackItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_playback_items_total",
			Help: "Playback items finished by result (ok, error)",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) SessionClosed(silent bool) {
	if m == nil {
		return
	}
	kind := "audio"
	if silent {
		kind = "silent"
	}
	m.SessionsClosed.WithLabelValues(kind).Inc()
}

func (m *Metrics) InvalidFrame() {
	if m != nil {
		m.InvalidFrames.Inc()
	}
}

func (m *Metrics) Utterances(n int) {
	if m != nil {
		m.UtterancesMerged.Add(float64(n))
	}
}

func (m *Metrics) TranscriptionJob(result string, seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionJobs.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.TranscriptionDuration.Observe(seconds)
	}
}

func (m *Metrics) SetOutstanding(n int) {
	if m != nil {
		m.OutstandingJobs.Set(float64(n))
	}
}

func (m *Metrics) Turn(outcome string) {
	if m != nil {
		m.Turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Response(kind string) {
	if m != nil {
		m.Responses.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.PlaybackQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) PlaybackDone(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PlaybackItems.WithLabelValues(result).Inc()
}
