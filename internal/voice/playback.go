package voice

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
)

// signal fires at most once and can be waited on.
type signal struct {
	once sync.Once
	ch   chan struct{}
	err  error
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) fire(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

func (s *signal) done() <-chan struct{} { return s.ch }

// PlaybackQueue plays items one at a time in enqueue order. Enqueue never
// blocks; Run is the single consumer.
type PlaybackQueue struct {
	player          Player
	removeAfterPlay bool
	metrics         *metrics.Metrics

	mu     sync.Mutex
	items  []PlaybackItem
	notify chan struct{}

	playing sync.Mutex
	current *PlaybackItem
	played  int
}

// PlaybackOption configures a PlaybackQueue.
type PlaybackOption func(*PlaybackQueue)

// WithRemoveAfterPlay deletes non-fallback files once they have played.
func WithRemoveAfterPlay(v bool) PlaybackOption {
	return func(q *PlaybackQueue) { q.removeAfterPlay = v }
}

func WithPlaybackMetrics(m *metrics.Metrics) PlaybackOption {
	return func(q *PlaybackQueue) { q.metrics = m }
}

func NewPlaybackQueue(p Player, opts ...PlaybackOption) *PlaybackQueue {
	q := &PlaybackQueue{player: p, notify: make(chan struct{}, 1)}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends an item and wakes the consumer.
func (q *PlaybackQueue) Enqueue(item PlaybackItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	n := len(q.items)
	q.mu.Unlock()
	q.metrics.SetQueueDepth(n)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	logging.Debugw("playback: enqueued", "path", item.Path, "correlation_id", item.CorrelationID, "depth", n)
}

// Len returns the number of items waiting, not counting the one playing.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Playing returns the item being played, if any.
func (q *PlaybackQueue) Playing() (PlaybackItem, bool) {
	q.playing.Lock()
	defer q.playing.Unlock()
	if q.current == nil {
		return PlaybackItem{}, false
	}
	return *q.current, true
}

// Played returns how many items have finished.
func (q *PlaybackQueue) Played() int {
	q.playing.Lock()
	defer q.playing.Unlock()
	return q.played
}

func (q *PlaybackQueue) pop() (PlaybackItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PlaybackItem{}, false
	}
	item := q.items[0]
	q.items[0] = PlaybackItem{}
	q.items = q.items[1:]
	q.metrics.SetQueueDepth(len(q.items))
	return item, true
}

// Run consumes the queue until ctx is cancelled. The next item starts only
// after the player reports the previous one finished.
func (q *PlaybackQueue) Run(ctx context.Context) error {
	for {
		item, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.notify:
				continue
			}
		}
		if err := q.playOne(ctx, item); err != nil && errors.Is(err, context.Canceled) {
			return nil
		}
	}
}

func (q *PlaybackQueue) playOne(ctx context.Context, item PlaybackItem) error {
	q.playing.Lock()
	q.current = &item
	q.playing.Unlock()
	defer func() {
		q.playing.Lock()
		q.current = nil
		q.played++
		q.playing.Unlock()
	}()

	finished := newSignal()
	logging.Infow("playback: starting", "path", item.Path, "correlation_id", item.CorrelationID, "fallback", item.Fallback)
	if err := q.player.Play(item.Path, finished.fire); err != nil {
		finished.fire(err)
	}
	select {
	case <-finished.done():
	case <-ctx.Done():
		return ctx.Err()
	}
	q.metrics.PlaybackDone(finished.err)
	if finished.err != nil {
		logging.Warnw("playback: item failed", "path", item.Path, "err", finished.err)
	} else {
		logging.Debugw("playback: finished", "path", item.Path)
	}
	if q.removeAfterPlay && !item.Fallback {
		if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
			logging.Warnw("playback: remove played file failed", "path", item.Path, "err", err)
		}
	}
	return finished.err
}
