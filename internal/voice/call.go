package voice

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
)

// CallConfig wires one call's collaborators and settings.
type CallConfig struct {
	Capture     Capture
	Transcriber Transcriber
	Generator   Generator
	Synthesizer Synthesizer
	Player      Player

	Tunables     *TunableStore
	Workers      int
	PollInterval time.Duration
	Cooldown     time.Duration
	// Origin is the instant capture timestamps are measured from.
	Origin time.Time

	FallbackMessage   string
	FallbackAudioPath string
	RemoveAfterPlay   bool

	Resolver NameResolver
	Wake     *WakeDetector
	Sinks    []TranscriptSink
	Records  *TurnRecorder
	Metrics  *metrics.Metrics
}

// Call owns the pipeline for one live voice call: one Segmenter, one
// Dispatcher, one ResponsePipeline and one PlaybackQueue sharing a worker
// pool.
type Call struct {
	Segmenter  *Segmenter
	Dispatcher *Dispatcher
	Responses  *ResponsePipeline
	Playback   *PlaybackQueue
	Pool       *WorkerPool
	Tunables   *TunableStore

	startedAt time.Time
}

func NewCall(cfg CallConfig) *Call {
	tunables := cfg.Tunables
	if tunables == nil {
		tunables = NewTunableStore(DefaultTunables())
	}
	origin := cfg.Origin
	if origin.IsZero() {
		origin = time.Now()
	}
	pool := NewWorkerPool(cfg.Workers)
	queue := NewPlaybackQueue(cfg.Player,
		WithRemoveAfterPlay(cfg.RemoveAfterPlay),
		WithPlaybackMetrics(cfg.Metrics))
	responses := NewResponsePipeline(cfg.Generator, cfg.Synthesizer, queue, pool,
		WithFallback(cfg.FallbackMessage, cfg.FallbackAudioPath),
		WithWakeDetector(cfg.Wake),
		WithTranscriptSinks(cfg.Sinks...),
		WithTurnRecorder(cfg.Records),
		WithResponseMetrics(cfg.Metrics))
	dispatcherOpts := []DispatcherOption{WithDispatcherMetrics(cfg.Metrics)}
	if cfg.Resolver != nil {
		dispatcherOpts = append(dispatcherOpts, WithNameResolver(cfg.Resolver))
	}
	dispatcher := NewDispatcher(cfg.Transcriber, responses, pool, tunables, dispatcherOpts...)
	segOpts := []SegmenterOption{
		WithClock(time.Now, origin),
		WithSegmenterMetrics(cfg.Metrics),
	}
	if cfg.PollInterval > 0 {
		segOpts = append(segOpts, WithPollInterval(cfg.PollInterval))
	}
	if cfg.Cooldown > 0 {
		segOpts = append(segOpts, WithCooldown(cfg.Cooldown))
	}
	segmenter := NewSegmenter(cfg.Capture, dispatcher, tunables, segOpts...)

	return &Call{
		Segmenter:  segmenter,
		Dispatcher: dispatcher,
		Responses:  responses,
		Playback:   queue,
		Pool:       pool,
		Tunables:   tunables,
		startedAt:  origin,
	}
}

// Run runs the segmenter, dispatcher and playback loops until ctx ends or
// one of them fails.
func (c *Call) Run(ctx context.Context) error {
	logging.Infow("call: starting", "workers", c.Pool.Size())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Dispatcher.Run(gctx) })
	g.Go(func() error { return c.Playback.Run(gctx) })
	g.Go(func() error { return c.Segmenter.Run(gctx) })
	err := g.Wait()
	c.Segmenter.Wait()
	c.Pool.Wait()
	logging.Infow("call: stopped", "err", err)
	return err
}

// Flush closes the open capture session without waiting for silence.
func (c *Call) Flush() { c.Segmenter.Flush() }

// CallStatus is a snapshot for the ops API.
type CallStatus struct {
	StartedAt      time.Time       `json:"started_at"`
	Segmenter      string          `json:"segmenter"`
	SessionsClosed int64           `json:"sessions_closed"`
	Dispatcher     DispatcherStats `json:"dispatcher"`
	QueueDepth     int             `json:"queue_depth"`
	Playing        string          `json:"playing,omitempty"`
	Played         int             `json:"played"`
	Tunables       Tunables        `json:"tunables"`
}

func (c *Call) Status() CallStatus {
	st := CallStatus{
		StartedAt:      c.startedAt,
		Segmenter:      c.Segmenter.State().String(),
		SessionsClosed: c.Segmenter.SessionsClosed(),
		Dispatcher:     c.Dispatcher.Stats(),
		QueueDepth:     c.Playback.Len(),
		Played:         c.Playback.Played(),
		Tunables:       c.Tunables.Load(),
	}
	if item, ok := c.Playback.Playing(); ok {
		st.Playing = item.Path
	}
	return st
}
