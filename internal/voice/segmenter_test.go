package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCapture struct {
	connected atomic.Bool
	startErr  error

	mu     sync.Mutex
	sink   FrameSink
	starts int
}

func newFakeCapture() *fakeCapture {
	c := &fakeCapture{}
	c.connected.Store(true)
	return c
}

func (c *fakeCapture) StartCapture(sink FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.sink = sink
	return nil
}

func (c *fakeCapture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = nil
	return nil
}

func (c *fakeCapture) IsConnected() bool { return c.connected.Load() }

func (c *fakeCapture) send(f AudioFrame) bool {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return false
	}
	sink.HandleFrame(f)
	return true
}

type chanSink struct {
	sessions chan *RecordingSession
	err      error
}

func (s *chanSink) Submit(ctx context.Context, sess *RecordingSession) error {
	select {
	case s.sessions <- sess:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.err
}

func fastTunables() *TunableStore {
	tun := DefaultTunables()
	tun.SilenceClose = 40 * time.Millisecond
	return NewTunableStore(tun)
}

func startSegmenter(t *testing.T, c Capture, sink SessionSink) *Segmenter {
	t.Helper()
	seg := NewSegmenter(c, sink, fastTunables(), WithPollInterval(5*time.Millisecond), WithCooldown(0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = seg.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		seg.Wait()
	})
	return seg
}

func nextSession(t *testing.T, sink *chanSink) *RecordingSession {
	t.Helper()
	select {
	case s := <-sink.sessions:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no session handed off")
		return nil
	}
}

func TestSegmenterClosesAfterSilence(t *testing.T) {
	c := newFakeCapture()
	sink := &chanSink{sessions: make(chan *RecordingSession, 64)}
	seg := startSegmenter(t, c, sink)

	waitFor(t, "listening", func() bool { return seg.State() == StateListening })
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no session with audio was handed off")
		}
		// a frame can race the drain of the current session; retry until
		// one lands
		c.send(frame(0.1, "A"))
		s := nextSession(t, sink)
		if s.Empty() {
			continue
		}
		if !s.Closed() {
			t.Fatal("handed-off session must be closed")
		}
		if s.ClosedAt <= 0 {
			t.Fatalf("expected positive ClosedAt, got %v", s.ClosedAt)
		}
		break
	}
	if seg.SessionsClosed() < 1 {
		t.Fatal("closed counter not advanced")
	}
}

func TestSegmenterHandsOffSilentSessions(t *testing.T) {
	c := newFakeCapture()
	sink := &chanSink{sessions: make(chan *RecordingSession, 64)}
	startSegmenter(t, c, sink)

	a := nextSession(t, sink)
	b := nextSession(t, sink)
	if !a.Empty() || !b.Empty() {
		t.Fatal("expected empty sessions without audio")
	}
	if b.ClosedAt < a.ClosedAt {
		t.Fatalf("ClosedAt went backwards: %v then %v", a.ClosedAt, b.ClosedAt)
	}
}

func TestSegmenterSurvivesHandOffErrors(t *testing.T) {
	c := newFakeCapture()
	sink := &chanSink{sessions: make(chan *RecordingSession, 64), err: errors.New("rejected")}
	startSegmenter(t, c, sink)
	nextSession(t, sink)
	nextSession(t, sink)
}

func TestSegmenterDropsFramesWhenNotListening(t *testing.T) {
	seg := NewSegmenter(newFakeCapture(), &chanSink{sessions: make(chan *RecordingSession, 1)}, fastTunables())
	if seg.State() != StateIdle {
		t.Fatalf("expected idle, got %s", seg.State())
	}
	seg.HandleFrame(frame(0, "A"))
}

func TestSegmenterIdlesWhileDisconnected(t *testing.T) {
	c := newFakeCapture()
	c.connected.Store(false)
	sink := &chanSink{sessions: make(chan *RecordingSession, 64)}
	seg := startSegmenter(t, c, sink)

	time.Sleep(50 * time.Millisecond)
	if seg.State() != StateIdle {
		t.Fatalf("expected idle, got %s", seg.State())
	}
	select {
	case <-sink.sessions:
		t.Fatal("no session should open while disconnected")
	default:
	}

	c.connected.Store(true)
	nextSession(t, sink)
}

func TestSegmenterStartFailureRetries(t *testing.T) {
	c := newFakeCapture()
	c.startErr = ErrCaptureClosed
	sink := &chanSink{sessions: make(chan *RecordingSession, 64)}
	seg := startSegmenter(t, c, sink)
	waitFor(t, "retries", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.starts >= 2
	})
	if seg.State() == StateListening {
		t.Fatal("must not listen after a failed start")
	}
}

func TestSegmenterFlush(t *testing.T) {
	c := newFakeCapture()
	sink := &chanSink{sessions: make(chan *RecordingSession, 64)}
	tun := DefaultTunables()
	tun.SilenceClose = time.Hour
	seg := NewSegmenter(c, sink, NewTunableStore(tun), WithPollInterval(5*time.Millisecond), WithCooldown(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = seg.Run(ctx) }()

	waitFor(t, "listening", func() bool { return seg.State() == StateListening })
	for !c.send(frame(0.1, "A")) {
		time.Sleep(time.Millisecond)
	}
	seg.Flush()
	s := nextSession(t, sink)
	if s.FrameCount() != 1 {
		t.Fatalf("expected flushed session with 1 frame, got %d", s.FrameCount())
	}
}

func TestSegmenterStateString(t *testing.T) {
	cases := map[SegmenterState]string{StateIdle: "idle", StateListening: "listening", StateDraining: "draining"}
	for st, want := range cases {
		if st.String() != want {
			t.Fatalf("%d: got %q want %q", st, st.String(), want)
		}
	}
}
