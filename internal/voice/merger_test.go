package voice

import (
	"errors"
	"math"
	"testing"
)

func frame(at float64, speaker string) AudioFrame {
	return AudioFrame{Timestamp: at, SpeakerID: speaker, Payload: []byte{1, 0}}
}

func TestMergeSplitsSpeakers(t *testing.T) {
	frames := []AudioFrame{frame(0.0, "A"), frame(0.3, "A"), frame(0.9, "B")}
	utts := Merge(frames, 0.5, 0)
	SortChronological(utts)
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].SpeakerID != "A" || utts[0].StartAt != 0.0 || utts[0].EndAt != 0.3 {
		t.Fatalf("unexpected first utterance: %+v", utts[0])
	}
	if len(utts[0].Audio) != 4 {
		t.Fatalf("expected merged audio of 4 bytes, got %d", len(utts[0].Audio))
	}
	if utts[1].SpeakerID != "B" || utts[1].StartAt != 0.9 || utts[1].EndAt != 0.9 {
		t.Fatalf("unexpected second utterance: %+v", utts[1])
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if got := Merge(nil, 0.5, 0); len(got) != 0 {
		t.Fatalf("expected no utterances, got %d", len(got))
	}
}

func TestMergeGapBoundary(t *testing.T) {
	// a gap equal to mergeGap starts a new utterance
	utts := Merge([]AudioFrame{frame(0, "A"), frame(0.5, "A")}, 0.5, 0)
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances at the gap boundary, got %d", len(utts))
	}
}

func TestMergeMaxMergeCap(t *testing.T) {
	frames := []AudioFrame{frame(0, "A"), frame(0.4, "A"), frame(0.8, "A"), frame(1.2, "A")}
	utts := Merge(frames, 0.5, 1.0)
	if len(utts) != 2 {
		t.Fatalf("expected cap to split into 2 utterances, got %d", len(utts))
	}
	if utts[0].EndAt != 0.8 || utts[1].StartAt != 1.2 {
		t.Fatalf("unexpected split: %+v", utts)
	}
	if got := Merge(frames, 0.5, 0); len(got) != 1 {
		t.Fatalf("expected one utterance without a cap, got %d", len(got))
	}
}

func TestMergeUnorderedInput(t *testing.T) {
	utts := Merge([]AudioFrame{frame(0.3, "A"), frame(0.0, "A")}, 0.5, 0)
	if len(utts) != 1 || utts[0].StartAt != 0 || utts[0].EndAt != 0.3 {
		t.Fatalf("unexpected utterances: %+v", utts)
	}
}

func TestMergeSkipsInvalidFrames(t *testing.T) {
	frames := []AudioFrame{
		frame(0, "A"),
		{Timestamp: 0.1, SpeakerID: "A"},
		{Timestamp: 0.2, SpeakerID: "A", Payload: []byte{1}},
		{Timestamp: math.NaN(), SpeakerID: "A", Payload: []byte{1, 0}},
		{Timestamp: 0.3, Payload: []byte{1, 0}},
	}
	utts := Merge(frames, 0.5, 0)
	if len(utts) != 1 || len(utts[0].Audio) != 2 {
		t.Fatalf("expected only the valid frame to survive: %+v", utts)
	}
	if n := countInvalidFrames(frames); n != 4 {
		t.Fatalf("expected 4 invalid frames, got %d", n)
	}
	if err := validateFrame(frames[1]); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestSortChronologicalTieBreak(t *testing.T) {
	utts := []Utterance{
		{SpeakerID: "B", EndAt: 1},
		{SpeakerID: "A", EndAt: 1},
		{SpeakerID: "C", EndAt: 0.5},
	}
	SortChronological(utts)
	if utts[0].SpeakerID != "C" || utts[1].SpeakerID != "A" || utts[2].SpeakerID != "B" {
		t.Fatalf("unexpected order: %+v", utts)
	}
}

func TestSessionUtterancesSingleSpeaker(t *testing.T) {
	s := NewRecordingSession(3, frame(0, "A"), frame(1.5, "A"), frame(2.5, "A"))
	tun := DefaultTunables()
	tun.SingleSpeaker = true
	utts := SessionUtterances(s, tun)
	if len(utts) != 1 {
		t.Fatalf("expected one whole-session utterance, got %d", len(utts))
	}
	if utts[0].StartAt != 0 || utts[0].EndAt != 2.5 || len(utts[0].Audio) != 6 {
		t.Fatalf("unexpected utterance: %+v", utts[0])
	}

	tun.SingleSpeaker = false
	if got := SessionUtterances(s, tun); len(got) != 3 {
		t.Fatalf("expected merging to split on gaps, got %d", len(got))
	}

	multi := NewRecordingSession(3, frame(0, "A"), frame(0.1, "B"))
	tun.SingleSpeaker = true
	if got := SessionUtterances(multi, tun); len(got) != 2 {
		t.Fatalf("single-speaker mode must not combine speakers, got %d", len(got))
	}
}
