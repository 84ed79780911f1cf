package voice

import (
	"fmt"
	"math"
	"sort"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// validateFrame reports why a frame cannot be merged, wrapping ErrInvalidFrame.
func validateFrame(f AudioFrame) error {
	switch {
	case f.SpeakerID == "":
		return fmt.Errorf("%w: missing speaker", ErrInvalidFrame)
	case len(f.Payload) == 0:
		return fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	case len(f.Payload)%2 != 0:
		return fmt.Errorf("%w: odd payload length %d", ErrInvalidFrame, len(f.Payload))
	case math.IsNaN(f.Timestamp) || math.IsInf(f.Timestamp, 0) || f.Timestamp < 0:
		return fmt.Errorf("%w: bad timestamp %v", ErrInvalidFrame, f.Timestamp)
	}
	return nil
}

func countInvalidFrames(frames []AudioFrame) int {
	n := 0
	for _, f := range frames {
		if validateFrame(f) != nil {
			n++
		}
	}
	return n
}

// Merge coalesces frames into per-speaker utterances. Frames of one speaker
// join the current utterance while the gap to its end is below mergeGap and,
// when maxMerge > 0, the resulting span stays below maxMerge. Frames from
// different speakers are never combined. Malformed frames are skipped.
//
// The result is grouped by speaker; use SortChronological to interleave.
func Merge(frames []AudioFrame, mergeGap, maxMerge float64) []Utterance {
	valid := make([]AudioFrame, 0, len(frames))
	for _, f := range frames {
		if err := validateFrame(f); err != nil {
			logging.Warnw("merge: skipping frame", "speaker_id", f.SpeakerID, "timestamp", f.Timestamp, "err", err)
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return nil
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].SpeakerID != valid[j].SpeakerID {
			return valid[i].SpeakerID < valid[j].SpeakerID
		}
		return valid[i].Timestamp < valid[j].Timestamp
	})

	var out []Utterance
	acc := startUtterance(valid[0])
	for _, f := range valid[1:] {
		sameSpeaker := f.SpeakerID == acc.SpeakerID
		withinGap := f.Timestamp-acc.EndAt < mergeGap
		withinCap := maxMerge <= 0 || f.Timestamp-acc.StartAt < maxMerge
		if sameSpeaker && withinGap && withinCap {
			acc.Audio = append(acc.Audio, f.Payload...)
			acc.EndAt = f.Timestamp
			continue
		}
		out = append(out, acc)
		acc = startUtterance(f)
	}
	return append(out, acc)
}

func startUtterance(f AudioFrame) Utterance {
	return Utterance{
		SpeakerID: f.SpeakerID,
		StartAt:   f.Timestamp,
		EndAt:     f.Timestamp,
		Audio:     append([]byte(nil), f.Payload...),
	}
}

// SortChronological orders utterances by EndAt ascending. Utterances from
// different speakers ending at the same instant keep a fixed order: lowest
// SpeakerID first.
func SortChronological(utts []Utterance) {
	sort.SliceStable(utts, func(i, j int) bool {
		if utts[i].EndAt != utts[j].EndAt {
			return utts[i].EndAt < utts[j].EndAt
		}
		return utts[i].SpeakerID < utts[j].SpeakerID
	})
}

// SessionUtterances turns a closed session into chronologically ordered
// utterances. In single-speaker mode a session heard from exactly one
// speaker skips merging and becomes one utterance.
func SessionUtterances(s *RecordingSession, t Tunables) []Utterance {
	frames := s.Frames()
	if t.SingleSpeaker && len(s.Speakers()) == 1 {
		if u, ok := wholeSession(frames); ok {
			return []Utterance{u}
		}
		return nil
	}
	utts := Merge(frames, t.MergeGap, t.MaxMerge)
	SortChronological(utts)
	return utts
}

func wholeSession(frames []AudioFrame) (Utterance, bool) {
	var u Utterance
	found := false
	for _, f := range frames {
		if err := validateFrame(f); err != nil {
			logging.Warnw("merge: skipping frame", "speaker_id", f.SpeakerID, "timestamp", f.Timestamp, "err", err)
			continue
		}
		if !found {
			u = startUtterance(f)
			found = true
			continue
		}
		u.Audio = append(u.Audio, f.Payload...)
		if f.Timestamp < u.StartAt {
			u.StartAt = f.Timestamp
		}
		if f.Timestamp > u.EndAt {
			u.EndAt = f.Timestamp
		}
	}
	return u, found
}
