package voice

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestCallEndToEnd(t *testing.T) {
	capture := newFakeCapture()
	player := &recordingPlayer{}
	synth := &fileSynth{dir: t.TempDir()}
	gen := &staticGenerator{reply: "noon"}

	tun := DefaultTunables()
	tun.SilenceClose = 30 * time.Millisecond
	tun.HysteresisSpan = 0.01
	call := NewCall(CallConfig{
		Capture:      capture,
		Transcriber:  newGatedTranscriber(),
		Generator:    gen,
		Synthesizer:  synth,
		Player:       player,
		Tunables:     NewTunableStore(tun),
		Workers:      2,
		PollInterval: 5 * time.Millisecond,
		Cooldown:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- call.Run(ctx) }()

	heard := func() bool {
		st := call.Dispatcher.Stats()
		return st.Segments > 0 || st.TurnsPublished > 0
	}
	deadline := time.Now().Add(3 * time.Second)
	for !heard() {
		if time.Now().After(deadline) {
			t.Fatal("no speech reached the dispatcher")
		}
		// one frame, then silence so the session can close
		if capture.send(AudioFrame{Timestamp: 0.5, SpeakerID: "A", Payload: []byte{1, 0}}) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	waitFor(t, "reply played", func() bool { return call.Playback.Played() >= 1 })

	played, _ := player.snapshot()
	b, err := os.ReadFile(played[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "noon" {
		t.Fatalf("expected the reply to be played, got %q", b)
	}

	st := call.Status()
	if st.Dispatcher.TurnsPublished < 1 || st.SessionsClosed < 1 {
		t.Fatalf("unexpected status: %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not stop")
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	if pool.Size() != 2 {
		t.Fatalf("size = %d", pool.Size())
	}
	release := make(chan struct{})
	running := make(chan struct{}, 4)
	for i := 0; i < 3; i++ {
		pool.Go(context.Background(), func(context.Context) {
			running <- struct{}{}
			<-release
		})
	}
	waitFor(t, "two running", func() bool { return len(running) == 2 })
	time.Sleep(20 * time.Millisecond)
	if len(running) != 2 {
		t.Fatalf("expected 2 concurrent jobs, got %d", len(running))
	}
	close(release)
	pool.Wait()
	if len(running) != 3 {
		t.Fatalf("expected all 3 jobs to run, got %d", len(running))
	}
	if NewWorkerPool(0).Size() != 1 {
		t.Fatal("zero size should fall back to 1")
	}
}

func TestWorkerPoolDoHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hold := make(chan struct{})
	pool.Go(context.Background(), func(context.Context) { <-hold })
	waitFor(t, "slot taken", func() bool {
		if pool.sem.TryAcquire(1) {
			pool.sem.Release(1)
			return false
		}
		return true
	})
	if err := pool.Do(ctx, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected context error while the pool is full")
	}
	close(hold)
	pool.Wait()
}
