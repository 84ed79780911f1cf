package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
)

// DefaultFallbackMessage is spoken when a turn cannot be answered.
const DefaultFallbackMessage = "Sorry, something went wrong. Could you say that again?"

// ResponsePipeline turns a finished transcript into a queued spoken reply.
// Every call ends with either the reply or the fallback utterance in the
// playback queue.
type ResponsePipeline struct {
	generator   Generator
	synthesizer Synthesizer
	queue       *PlaybackQueue
	pool        *WorkerPool

	fallbackMessage   string
	fallbackAudioPath string
	wake              *WakeDetector
	sinks             []TranscriptSink
	records           *TurnRecorder
	metrics           *metrics.Metrics
	publishTimeout    time.Duration

	fallbackMu   sync.Mutex
	fallbackPath string
}

// ResponseOption configures a ResponsePipeline.
type ResponseOption func(*ResponsePipeline)

// WithFallback sets the fallback message and a static audio file used when
// the message itself cannot be synthesized.
func WithFallback(message, audioPath string) ResponseOption {
	return func(r *ResponsePipeline) {
		if strings.TrimSpace(message) != "" {
			r.fallbackMessage = message
		}
		r.fallbackAudioPath = audioPath
	}
}

// WithWakeDetector only answers transcripts that carry a wake phrase.
func WithWakeDetector(w *WakeDetector) ResponseOption {
	return func(r *ResponsePipeline) { r.wake = w }
}

// WithTranscriptSinks publishes every transcript to sinks, best-effort.
func WithTranscriptSinks(sinks ...TranscriptSink) ResponseOption {
	return func(r *ResponsePipeline) { r.sinks = append(r.sinks, sinks...) }
}

func WithTurnRecorder(rec *TurnRecorder) ResponseOption {
	return func(r *ResponsePipeline) { r.records = rec }
}

func WithResponseMetrics(m *metrics.Metrics) ResponseOption {
	return func(r *ResponsePipeline) { r.metrics = m }
}

func NewResponsePipeline(g Generator, s Synthesizer, q *PlaybackQueue, pool *WorkerPool, opts ...ResponseOption) *ResponsePipeline {
	r := &ResponsePipeline{
		generator:       g,
		synthesizer:     s,
		queue:           q,
		pool:            pool,
		fallbackMessage: DefaultFallbackMessage,
		publishTimeout:  5 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Respond implements Responder.
func (r *ResponsePipeline) Respond(ctx context.Context, t Transcript) {
	ctx = WithCorrelationID(ctx, t.ID)
	prompt := t.Text()
	logging.InfowCtx(ctx, "response: transcript received", "segments", len(t.Segments), "chars", len(prompt))
	if _, err := r.records.Create(t.ID, map[string]interface{}{
		"transcript":      t.Segments,
		"transcript_text": prompt,
	}); err != nil {
		logging.DebugwCtx(ctx, "response: turn record not written", "err", err)
	}
	r.publish(ctx, t)

	if r.wake.Enabled() {
		ok, rest := r.wake.Detect(spokenText(t))
		if !ok {
			logging.InfowCtx(ctx, "response: no wake phrase, not replying")
			r.metrics.Response("skipped")
			return
		}
		logging.DebugwCtx(ctx, "response: wake phrase detected", "remaining", rest)
	}

	reply, err := r.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		r.fallback(ctx, fmt.Errorf("%w: %v", ErrGeneration, err))
		return
	}
	if err := r.records.Update(t.ID, map[string]interface{}{"reply": reply}); err != nil {
		logging.DebugwCtx(ctx, "response: turn record not updated", "err", err)
	}

	path, err := r.synthesize(ctx, reply)
	if err != nil {
		r.fallback(ctx, fmt.Errorf("%w: %v", ErrSynthesis, err))
		return
	}
	r.queue.Enqueue(PlaybackItem{Path: path, CorrelationID: t.ID})
	r.metrics.Response("reply")
	logging.InfowCtx(ctx, "response: reply queued", "path", path)
}

// RespondError implements Responder: the turn failed upstream, so the
// listener gets the fallback utterance.
func (r *ResponsePipeline) RespondError(ctx context.Context, cause error) {
	ctx = WithCorrelationID(ctx, "")
	cid := CorrelationID(ctx)
	if _, err := r.records.Create(cid, map[string]interface{}{"error": cause.Error()}); err != nil {
		logging.DebugwCtx(ctx, "response: turn record not written", "err", err)
	}
	r.fallback(ctx, cause)
}

func (r *ResponsePipeline) synthesize(ctx context.Context, text string) (string, error) {
	var path string
	err := r.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		path, err = r.synthesizer.Synthesize(ctx, text)
		return err
	})
	return path, err
}

func (r *ResponsePipeline) fallback(ctx context.Context, cause error) {
	logging.WarnwCtx(ctx, "response: playing fallback", "err", cause)
	path := r.fallbackArtifact(ctx)
	if path == "" {
		logging.ErrorwCtx(ctx, "response: no fallback audio available", "err", cause)
		r.metrics.Response("lost")
		return
	}
	r.queue.Enqueue(PlaybackItem{Path: path, CorrelationID: CorrelationID(ctx), Fallback: true})
	r.metrics.Response("fallback")
}

// fallbackArtifact synthesizes the fallback message once and reuses the
// file afterwards. If synthesis fails the static fallback file is used.
func (r *ResponsePipeline) fallbackArtifact(ctx context.Context) string {
	r.fallbackMu.Lock()
	defer r.fallbackMu.Unlock()
	if r.fallbackPath != "" {
		if _, err := os.Stat(r.fallbackPath); err == nil {
			return r.fallbackPath
		}
		r.fallbackPath = ""
	}
	// shared artifact: keep it out of this turn's record
	path, err := r.synthesize(context.WithValue(ctx, correlationKey{}, ""), r.fallbackMessage)
	if err == nil && path != "" {
		r.fallbackPath = path
		return path
	}
	logging.WarnwCtx(ctx, "response: fallback synthesis failed", "err", err)
	return r.fallbackAudioPath
}

func (r *ResponsePipeline) publish(ctx context.Context, t Transcript) {
	for _, sink := range r.sinks {
		go func(sink TranscriptSink) {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
			defer cancel()
			if err := sink.PublishTranscript(pctx, t); err != nil {
				logging.WarnwCtx(ctx, "response: transcript publish failed", "err", err)
			}
		}(sink)
	}
}

// spokenText joins the segment texts without speaker prefixes.
func spokenText(t Transcript) string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
