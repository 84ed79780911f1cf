package voice

// silenceWindow is how many consecutive silent sessions end a turn.
const silenceWindow = 3

// silenceRing keeps the most recent silenceWindow observations.
type silenceRing struct {
	obs  [silenceWindow]SilenceObservation
	next int
	n    int
}

func (r *silenceRing) push(o SilenceObservation) {
	r.obs[r.next] = o
	r.next = (r.next + 1) % silenceWindow
	if r.n < silenceWindow {
		r.n++
	}
}

func (r *silenceRing) len() int { return r.n }

func (r *silenceRing) clear() { *r = silenceRing{} }

// span returns newest.At - oldest.At over the retained observations.
func (r *silenceRing) span() float64 {
	if r.n == 0 {
		return 0
	}
	oldest := r.obs[(r.next-r.n+silenceWindow)%silenceWindow]
	newest := r.obs[(r.next-1+silenceWindow)%silenceWindow]
	return newest.At - oldest.At
}

// snapshot returns observations oldest first.
func (r *silenceRing) snapshot() []SilenceObservation {
	out := make([]SilenceObservation, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.obs[(r.next-r.n+i+silenceWindow)%silenceWindow])
	}
	return out
}

// turnTracker decides when a conversational turn is over. A single brief
// pause does not end a turn: it takes silenceWindow consecutive silent
// sessions spanning at least minSpan seconds, audio since the last reset,
// and no reply still in progress.
//
// Not safe for concurrent use; the Dispatcher run loop owns it.
type turnTracker struct {
	minSpan  float64
	ring     silenceRing
	hadAudio bool
	pending  bool
	ready    bool
}

func newTurnTracker(minSpan float64) *turnTracker {
	return &turnTracker{minSpan: minSpan}
}

// observeSilence records a silent session and returns the ready latch.
func (t *turnTracker) observeSilence(at float64) bool {
	t.ring.push(SilenceObservation{At: at})
	if t.evaluate() {
		t.ready = true
	}
	return t.ready
}

func (t *turnTracker) evaluate() bool {
	if t.pending || !t.hadAudio || t.ring.len() < silenceWindow {
		return false
	}
	return t.ring.span() >= t.minSpan
}

// noteAudio records an audio-bearing session. Speech breaks the run of
// silent sessions and reopens the turn.
func (t *turnTracker) noteAudio() {
	t.hadAudio = true
	t.ready = false
	t.ring.clear()
}

// reset clears all turn-scoped state. pending is left to setPending.
func (t *turnTracker) reset() {
	t.ring.clear()
	t.hadAudio = false
	t.ready = false
}

func (t *turnTracker) setPending(p bool) { t.pending = p }
