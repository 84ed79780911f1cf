package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordingPlayer finishes every item asynchronously after delay. Paths in
// failSync fail in Play; paths in failAsync fail via onFinished.
type recordingPlayer struct {
	delay     time.Duration
	failSync  map[string]bool
	failAsync map[string]bool

	mu      sync.Mutex
	played  []string
	active  int
	overlap bool
}

func (p *recordingPlayer) Play(path string, onFinished func(error)) error {
	if p.failSync[path] {
		return errors.New("unplayable")
	}
	p.mu.Lock()
	p.played = append(p.played, path)
	p.active++
	if p.active > 1 {
		p.overlap = true
	}
	p.mu.Unlock()
	go func() {
		time.Sleep(p.delay)
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		if p.failAsync[path] {
			onFinished(errors.New("send failed"))
			return
		}
		onFinished(nil)
	}()
	return nil
}

func (p *recordingPlayer) snapshot() ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...), p.overlap
}

func runQueue(t *testing.T, q *PlaybackQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPlaybackFIFOWithoutOverlap(t *testing.T) {
	p := &recordingPlayer{delay: 20 * time.Millisecond}
	q := NewPlaybackQueue(p)
	for _, path := range []string{"a", "b", "c"} {
		q.Enqueue(PlaybackItem{Path: path})
	}
	runQueue(t, q)
	waitFor(t, "all played", func() bool { return q.Played() == 3 })
	played, overlap := p.snapshot()
	if len(played) != 3 || played[0] != "a" || played[1] != "b" || played[2] != "c" {
		t.Fatalf("unexpected order: %v", played)
	}
	if overlap {
		t.Fatal("two items played at once")
	}
}

func TestPlaybackContinuesAfterFailures(t *testing.T) {
	p := &recordingPlayer{failSync: map[string]bool{"bad": true}, failAsync: map[string]bool{"flaky": true}}
	q := NewPlaybackQueue(p)
	runQueue(t, q)
	q.Enqueue(PlaybackItem{Path: "bad"})
	q.Enqueue(PlaybackItem{Path: "flaky"})
	q.Enqueue(PlaybackItem{Path: "good"})
	waitFor(t, "all finished", func() bool { return q.Played() == 3 })
	played, _ := p.snapshot()
	if len(played) != 2 || played[1] != "good" {
		t.Fatalf("unexpected plays: %v", played)
	}
}

func TestPlaybackRemoveAfterPlayKeepsFallback(t *testing.T) {
	dir := t.TempDir()
	reply := filepath.Join(dir, "reply.wav")
	fallback := filepath.Join(dir, "fallback.wav")
	for _, f := range []string{reply, fallback} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	q := NewPlaybackQueue(&recordingPlayer{}, WithRemoveAfterPlay(true))
	runQueue(t, q)
	q.Enqueue(PlaybackItem{Path: reply})
	q.Enqueue(PlaybackItem{Path: fallback, Fallback: true})
	waitFor(t, "both played", func() bool { return q.Played() == 2 })
	if _, err := os.Stat(reply); !os.IsNotExist(err) {
		t.Fatalf("reply file should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(fallback); err != nil {
		t.Fatalf("fallback file must survive: %v", err)
	}
}

func TestPlaybackPlayingSnapshot(t *testing.T) {
	p := &recordingPlayer{delay: 200 * time.Millisecond}
	q := NewPlaybackQueue(p)
	runQueue(t, q)
	q.Enqueue(PlaybackItem{Path: "long", CorrelationID: "c1"})
	q.Enqueue(PlaybackItem{Path: "next"})
	waitFor(t, "playing", func() bool { _, ok := q.Playing(); return ok })
	item, _ := q.Playing()
	if item.Path != "long" || q.Len() != 1 {
		t.Fatalf("unexpected state: playing=%+v len=%d", item, q.Len())
	}
}

func TestSignalFiresOnce(t *testing.T) {
	s := newSignal()
	s.fire(errors.New("first"))
	s.fire(nil)
	<-s.done()
	if s.err == nil || s.err.Error() != "first" {
		t.Fatalf("expected first error to stick, got %v", s.err)
	}
}
