package voice

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioFrame is one chunk of PCM16LE mono audio delivered by the capture
// collaborator. Timestamp is seconds since the call started.
type AudioFrame struct {
	Timestamp float64
	SpeakerID string
	Payload   []byte
}

// RecordingSession is one open capture window. The Segmenter owns it until
// finalize hands it off; after that it is read-only.
type RecordingSession struct {
	ID             string
	StartedAt      time.Time
	LastActivityAt time.Time
	// ClosedAt is seconds since the call started, set on finalize.
	ClosedAt float64

	mu       sync.Mutex
	frames   map[string][]AudioFrame
	speakers []string
	count    int
	closed   bool

	closeOnce sync.Once
	done      chan struct{}
}

func newRecordingSession(now time.Time) *RecordingSession {
	return &RecordingSession{
		ID:             uuid.NewString(),
		StartedAt:      now,
		LastActivityAt: now,
		frames:         make(map[string][]AudioFrame),
		done:           make(chan struct{}),
	}
}

// NewRecordingSession builds an already-closed session from frames. Useful
// for feeding the Dispatcher directly.
func NewRecordingSession(closedAt float64, frames ...AudioFrame) *RecordingSession {
	s := newRecordingSession(time.Now())
	for _, f := range frames {
		s.Append(f, s.StartedAt)
	}
	s.finalize(closedAt)
	return s
}

// Append adds a frame and bumps LastActivityAt. It reports false when the
// session is already closed; the frame is dropped in that case.
func (s *RecordingSession) Append(f AudioFrame, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.frames[f.SpeakerID]; !ok {
		s.speakers = append(s.speakers, f.SpeakerID)
	}
	s.frames[f.SpeakerID] = append(s.frames[f.SpeakerID], f)
	s.count++
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return true
}

// idleFor returns how long the session has been without frames.
func (s *RecordingSession) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.LastActivityAt)
}

// signalClose fires the session's close signal. Safe to call many times.
func (s *RecordingSession) signalClose() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the session has been asked to close.
func (s *RecordingSession) Done() <-chan struct{} { return s.done }

// finalize freezes the session. It returns true exactly once.
func (s *RecordingSession) finalize(closedAt float64) bool {
	s.signalClose()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.ClosedAt = closedAt
	return true
}

// Closed reports whether the session has been finalized.
func (s *RecordingSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Empty reports whether the session captured no audio at all.
func (s *RecordingSession) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count == 0
}

// FrameCount returns the number of captured frames.
func (s *RecordingSession) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Speakers returns speaker IDs in first-heard order.
func (s *RecordingSession) Speakers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.speakers...)
}

// Frames returns all frames grouped by speaker in first-heard order. Frame
// order within a speaker is arrival order.
func (s *RecordingSession) Frames() []AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AudioFrame, 0, s.count)
	for _, sp := range s.speakers {
		out = append(out, s.frames[sp]...)
	}
	return out
}

// Utterance is merged contiguous audio for one speaker.
type Utterance struct {
	SpeakerID string
	StartAt   float64
	EndAt     float64
	Audio     []byte
}

// Duration is EndAt - StartAt in seconds.
func (u Utterance) Duration() float64 { return u.EndAt - u.StartAt }

// TranscriptSegment is the immutable output of one transcription job.
type TranscriptSegment struct {
	Timestamp float64 `json:"timestamp"`
	SpeakerID string  `json:"speaker_id"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
}

// Transcript is an ordered multi-speaker transcript for one turn.
type Transcript struct {
	ID       string              `json:"id"`
	Segments []TranscriptSegment `json:"segments"`
}

func newTranscript(segments []TranscriptSegment) Transcript {
	sorted := append([]TranscriptSegment(nil), segments...)
	sortSegments(sorted)
	return Transcript{ID: uuid.NewString(), Segments: sorted}
}

// sortSegments orders segments by timestamp; equal timestamps fall back to
// speaker ID so the output never depends on job completion order.
func sortSegments(segs []TranscriptSegment) {
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Timestamp != segs[j].Timestamp {
			return segs[i].Timestamp < segs[j].Timestamp
		}
		return segs[i].SpeakerID < segs[j].SpeakerID
	})
}

// Text renders the transcript as "speaker: text" lines.
func (t Transcript) Text() string {
	var b strings.Builder
	for i, s := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := s.Speaker
		if name == "" {
			name = s.SpeakerID
		}
		fmt.Fprintf(&b, "%s: %s", name, s.Text)
	}
	return b.String()
}

// SilenceObservation is recorded each time a session closes with no audio.
type SilenceObservation struct {
	At float64
}

// PlaybackItem is a synthesized audio artifact waiting to be played.
type PlaybackItem struct {
	Path          string
	CorrelationID string
	// Fallback items are shared and must survive playback.
	Fallback bool
}
