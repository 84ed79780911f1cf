package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
)

// SegmenterState is the capture loop phase.
type SegmenterState int32

const (
	StateIdle SegmenterState = iota
	StateListening
	StateDraining
)

func (s SegmenterState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	default:
		return "idle"
	}
}

// Segmenter cuts the live audio stream into RecordingSessions. Exactly one
// session is open while listening; it closes after SilenceClose without new
// frames and is handed to the sink on a detached goroutine so capture of the
// next session starts right away. Sessions with no audio are handed off too;
// they are the silence observations the Dispatcher counts.
type Segmenter struct {
	capture  Capture
	sink     SessionSink
	tunables *TunableStore
	metrics  *metrics.Metrics

	pollInterval time.Duration
	cooldown     time.Duration
	now          func() time.Time
	origin       time.Time

	state   atomic.Int32
	mu      sync.Mutex
	current *RecordingSession

	closed   atomic.Int64
	handoffs sync.WaitGroup
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithPollInterval sets how often the silence monitor checks the session.
func WithPollInterval(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithCooldown sets the pause between closing one session and opening the
// next.
func WithCooldown(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithClock overrides the wall clock and the call origin that ClosedAt is
// measured from. The capture adapter must stamp frames from the same origin.
func WithClock(now func() time.Time, origin time.Time) SegmenterOption {
	return func(s *Segmenter) {
		s.now = now
		s.origin = origin
	}
}

func WithSegmenterMetrics(m *metrics.Metrics) SegmenterOption {
	return func(s *Segmenter) { s.metrics = m }
}

func NewSegmenter(c Capture, sink SessionSink, tunables *TunableStore, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		capture:      c,
		sink:         sink,
		tunables:     tunables,
		pollInterval: 100 * time.Millisecond,
		cooldown:     250 * time.Millisecond,
		now:          time.Now,
	}
	s.origin = s.now()
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current loop phase.
func (s *Segmenter) State() SegmenterState { return SegmenterState(s.state.Load()) }

// SessionsClosed returns how many sessions have been finalized.
func (s *Segmenter) SessionsClosed() int64 { return s.closed.Load() }

func (s *Segmenter) setState(st SegmenterState) { s.state.Store(int32(st)) }

// elapsed returns seconds since the call origin.
func (s *Segmenter) elapsed() float64 { return s.now().Sub(s.origin).Seconds() }

// HandleFrame implements FrameSink. Frames arriving while no session is
// listening are dropped.
func (s *Segmenter) HandleFrame(f AudioFrame) {
	if s.State() != StateListening {
		s.metrics.FrameDropped()
		return
	}
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || !cur.Append(f, s.now()) {
		s.metrics.FrameDropped()
		return
	}
	s.metrics.FrameReceived()
}

// Flush asks the open session to close now instead of waiting for silence.
func (s *Segmenter) Flush() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.signalClose()
	}
}

// Run drives the capture loop until ctx is cancelled. While the capture is
// disconnected the loop idles and polls.
func (s *Segmenter) Run(ctx context.Context) error {
	logging.Infow("segmenter: started", "poll_interval", s.pollInterval, "cooldown", s.cooldown)
	defer s.setState(StateIdle)
	for {
		if ctx.Err() != nil {
			logging.Infow("segmenter: stopped")
			return nil
		}
		if !s.capture.IsConnected() {
			s.setState(StateIdle)
			sleepCtx(ctx, s.pollInterval)
			continue
		}

		sess := newRecordingSession(s.now())
		s.mu.Lock()
		s.current = sess
		s.mu.Unlock()
		s.setState(StateListening)
		if err := s.capture.StartCapture(s); err != nil {
			logging.Warnw("segmenter: start capture failed", "err", err)
			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
			s.setState(StateIdle)
			sleepCtx(ctx, s.pollInterval)
			continue
		}
		logging.Debugw("segmenter: session opened", "session.id", sess.ID)

		s.waitForClose(ctx, sess)
		s.drain(ctx, sess)

		if s.cooldown > 0 {
			sleepCtx(ctx, s.cooldown)
		}
	}
}

// waitForClose blocks until the session is signalled closed or ctx ends.
func (s *Segmenter) waitForClose(ctx context.Context, sess *RecordingSession) {
	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.monitor(monCtx, sess)
	select {
	case <-sess.Done():
	case <-ctx.Done():
	}
}

// monitor signals close once the session has gone SilenceClose without a
// frame or the capture drops.
func (s *Segmenter) monitor(ctx context.Context, sess *RecordingSession) {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-t.C:
			if !s.capture.IsConnected() {
				logging.Infow("segmenter: capture disconnected", "session.id", sess.ID)
				sess.signalClose()
				return
			}
			if sess.idleFor(s.now()) >= s.tunables.Load().SilenceClose {
				sess.signalClose()
				return
			}
		}
	}
}

// drain stops capture, finalizes the session and hands it off. The hand-off
// runs detached; failures are logged and the session is dropped.
func (s *Segmenter) drain(ctx context.Context, sess *RecordingSession) {
	s.setState(StateDraining)
	if err := s.capture.StopCapture(); err != nil {
		logging.Warnw("segmenter: stop capture failed", "session.id", sess.ID, "err", err)
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if !sess.finalize(s.elapsed()) {
		return
	}
	s.closed.Add(1)
	if ctx.Err() != nil {
		logging.Debugw("segmenter: dropping session at shutdown", "session.id", sess.ID, "frames", sess.FrameCount())
		return
	}
	logging.Debugw("segmenter: session closed", logging.SessionFields(sess.ID, len(sess.Speakers()), sess.FrameCount())...)
	s.handoffs.Add(1)
	go func() {
		defer s.handoffs.Done()
		if err := s.sink.Submit(ctx, sess); err != nil {
			logging.Warnw("segmenter: session hand-off failed", "session.id", sess.ID, "err", err)
		}
	}()
}

// Wait blocks until every detached hand-off has returned.
func (s *Segmenter) Wait() { s.handoffs.Wait() }

// sleepCtx waits for d and reports whether it was not interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
