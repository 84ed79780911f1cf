package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
)

// DispatcherStats is a point-in-time view of the dispatcher's turn state.
type DispatcherStats struct {
	Outstanding     int                  `json:"outstanding"`
	Segments        int                  `json:"segments"`
	Observations    []SilenceObservation `json:"observations"`
	TurnReady       bool                 `json:"turn_ready"`
	ResponsePending bool                 `json:"response_pending"`
	Generation      uint64               `json:"generation"`
	TurnsPublished  int                  `json:"turns_published"`
	TurnsAborted    int                  `json:"turns_aborted"`
}

type dispatchEvent interface{ isDispatchEvent() }

type submitEvent struct{ session *RecordingSession }

type jobResult struct {
	generation uint64
	segment    TranscriptSegment
	err        error
}

type responseDone struct{}

func (submitEvent) isDispatchEvent()  {}
func (jobResult) isDispatchEvent()    {}
func (responseDone) isDispatchEvent() {}

// Dispatcher turns closed sessions into transcription jobs and decides when
// a turn is complete. All turn state is owned by the Run goroutine; Submit
// and job completions reach it as events.
type Dispatcher struct {
	transcriber Transcriber
	responder   Responder
	pool        *WorkerPool
	tunables    *TunableStore
	resolver    NameResolver
	metrics     *metrics.Metrics

	events chan dispatchEvent

	// owned by Run
	tracker     *turnTracker
	generation  uint64
	outstanding int
	segments    []TranscriptSegment
	published   int
	aborted     int

	statsMu sync.Mutex
	stats   DispatcherStats
}

// DispatcherOption configures optional Dispatcher collaborators.
type DispatcherOption func(*Dispatcher)

func WithNameResolver(r NameResolver) DispatcherOption {
	return func(d *Dispatcher) { d.resolver = r }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(t Transcriber, r Responder, pool *WorkerPool, tunables *TunableStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transcriber: t,
		responder:   r,
		pool:        pool,
		tunables:    tunables,
		events:      make(chan dispatchEvent, 64),
		tracker:     newTurnTracker(tunables.Load().HysteresisSpan),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Submit hands a finalized session to the dispatcher.
func (d *Dispatcher) Submit(ctx context.Context, s *RecordingSession) error {
	if s == nil {
		return nil
	}
	if !s.Closed() {
		return fmt.Errorf("dispatcher: session %s is still open", s.ID)
	}
	return d.post(ctx, submitEvent{session: s})
}

func (d *Dispatcher) post(ctx context.Context, ev dispatchEvent) error {
	select {
	case d.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	logging.Infow("dispatcher: started")
	for {
		select {
		case <-ctx.Done():
			logging.Infow("dispatcher: stopped", "err", ctx.Err())
			return nil
		case ev := <-d.events:
			switch e := ev.(type) {
			case submitEvent:
				d.handleSubmit(ctx, e.session)
			case jobResult:
				d.handleResult(ctx, e)
			case responseDone:
				d.tracker.setPending(false)
				logging.Debugw("dispatcher: response finished")
			}
			d.publishStats()
		}
	}
}

func (d *Dispatcher) handleSubmit(ctx context.Context, s *RecordingSession) {
	tun := d.tunables.Load()
	d.tracker.minSpan = tun.HysteresisSpan
	frames := s.FrameCount()
	d.metrics.SessionClosed(frames == 0)
	if frames == 0 {
		ready := d.tracker.observeSilence(s.ClosedAt)
		logging.Debugw("dispatcher: silence observed", "at", s.ClosedAt, "ready", ready, "observations", d.tracker.ring.len())
		d.checkTurn(ctx)
		return
	}

	if invalid := countInvalidFrames(s.Frames()); invalid > 0 {
		for i := 0; i < invalid; i++ {
			d.metrics.InvalidFrame()
		}
		logging.Warnw("dispatcher: session had malformed frames", "session.id", s.ID, "invalid", invalid)
	}
	utts := SessionUtterances(s, tun)
	if len(utts) == 0 {
		// only malformed audio: count it as silence rather than as speech
		d.tracker.observeSilence(s.ClosedAt)
		d.checkTurn(ctx)
		return
	}
	d.tracker.noteAudio()
	d.metrics.Utterances(len(utts))
	d.outstanding += len(utts)
	d.metrics.SetOutstanding(d.outstanding)
	logging.Infow("dispatcher: session submitted", append(logging.SessionFields(s.ID, len(s.Speakers()), frames),
		append([]interface{}{"utterances", len(utts)}, logging.TurnFields(d.generation, d.outstanding, len(d.segments))...)...)...)

	gen := d.generation
	for _, u := range utts {
		u := u
		d.pool.Go(ctx, func(jobCtx context.Context) {
			d.runJob(ctx, jobCtx, gen, u)
		})
	}
}

func (d *Dispatcher) runJob(ctx, jobCtx context.Context, gen uint64, u Utterance) {
	start := time.Now()
	res, err := d.transcriber.Transcribe(jobCtx, u)
	elapsed := time.Since(start).Seconds()
	ev := jobResult{generation: gen}
	if err != nil {
		ev.err = fmt.Errorf("%w: speaker %s at %.2fs: %v", ErrTranscription, u.SpeakerID, u.StartAt, err)
		d.metrics.TranscriptionJob("failure", elapsed)
	} else {
		ev.segment = TranscriptSegment{
			Timestamp: res.Timestamp,
			SpeakerID: u.SpeakerID,
			Speaker:   d.displayName(u.SpeakerID),
			Text:      strings.TrimSpace(res.Text),
		}
		d.metrics.TranscriptionJob("success", elapsed)
	}
	if perr := d.post(ctx, ev); perr != nil {
		logging.Debugw("dispatcher: dropping job result after shutdown", "speaker_id", u.SpeakerID, "err", perr)
	}
}

func (d *Dispatcher) displayName(speakerID string) string {
	if d.resolver != nil {
		if n := d.resolver.UserName(speakerID); n != "" {
			return n
		}
	}
	return speakerID
}

func (d *Dispatcher) handleResult(ctx context.Context, r jobResult) {
	if r.generation != d.generation {
		// belongs to an aborted turn
		d.metrics.TranscriptionJob("stale", 0)
		logging.Debugw("dispatcher: discarding stale job result", "job_generation", r.generation, "generation", d.generation)
		return
	}
	if r.err != nil {
		d.abortTurn(ctx, r.err)
		return
	}
	d.outstanding--
	d.metrics.SetOutstanding(d.outstanding)
	if r.segment.Text != "" {
		d.segments = append(d.segments, r.segment)
	}
	logging.Debugw("dispatcher: job finished", logging.TurnFields(d.generation, d.outstanding, len(d.segments))...)
	d.checkTurn(ctx)
}

// checkTurn publishes the transcript once the turn is ready and every job
// of the turn has reported back.
func (d *Dispatcher) checkTurn(ctx context.Context) {
	if d.outstanding != 0 || !d.tracker.ready {
		return
	}
	if len(d.segments) == 0 {
		logging.Infow("dispatcher: turn ended without any transcribed speech")
		d.metrics.Turn("empty")
		d.resetTurn()
		go d.responder.RespondError(ctx, ErrEmptyTurn)
		return
	}
	t := newTranscript(d.segments)
	d.published++
	d.metrics.Turn("published")
	logging.Infow("dispatcher: turn complete", "transcript_id", t.ID, "segments", len(t.Segments))
	d.resetTurn()
	d.tracker.setPending(true)
	go func() {
		d.responder.Respond(ctx, t)
		if err := d.post(ctx, responseDone{}); err != nil {
			logging.Debugw("dispatcher: response finished after shutdown", "transcript_id", t.ID)
		}
	}()
}

// abortTurn fails the whole turn. Results still in flight for it are
// discarded by generation.
func (d *Dispatcher) abortTurn(ctx context.Context, cause error) {
	logging.Warnw("dispatcher: aborting turn", append(logging.TurnFields(d.generation, d.outstanding, len(d.segments)), "err", cause)...)
	d.aborted++
	d.metrics.Turn("aborted")
	d.outstanding = 0
	d.metrics.SetOutstanding(0)
	d.resetTurn()
	go d.responder.RespondError(ctx, cause)
}

func (d *Dispatcher) resetTurn() {
	d.segments = nil
	d.tracker.reset()
	d.generation++
}

func (d *Dispatcher) publishStats() {
	s := DispatcherStats{
		Outstanding:     d.outstanding,
		Segments:        len(d.segments),
		Observations:    d.tracker.ring.snapshot(),
		TurnReady:       d.tracker.ready,
		ResponsePending: d.tracker.pending,
		Generation:      d.generation,
		TurnsPublished:  d.published,
		TurnsAborted:    d.aborted,
	}
	d.statsMu.Lock()
	d.stats = s
	d.statsMu.Unlock()
}

// Stats returns the state as of the last processed event.
func (d *Dispatcher) Stats() DispatcherStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := d.stats
	s.Observations = append([]SilenceObservation(nil), s.Observations...)
	return s
}
