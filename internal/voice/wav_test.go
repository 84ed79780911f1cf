package voice

import (
	"errors"
	"testing"
)

func TestParseWAVReadsBuiltFile(t *testing.T) {
	pcm := samplesToPCM([]int16{1, -2, 3, -4})
	a, err := parseWAV(buildWAV(pcm, 24000, 2, 16))
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if a.SampleRate != 24000 || a.Channels != 2 || len(a.Samples) != 4 || a.Samples[1] != -2 {
		t.Fatalf("unexpected audio: %+v", a)
	}
}

func TestParseWAVRejects(t *testing.T) {
	if _, err := parseWAV([]byte("not a wav file at all")); !errors.Is(err, errNotWAV) {
		t.Fatalf("expected errNotWAV, got %v", err)
	}
	if _, err := parseWAV(buildWAV([]byte{1, 2}, 8000, 1, 8)); !errors.Is(err, errNotWAV) {
		t.Fatalf("expected 8-bit audio to be rejected, got %v", err)
	}
	noData := buildWAV(nil, 8000, 1, 16)[:36]
	if _, err := parseWAV(noData); !errors.Is(err, errNotWAV) {
		t.Fatalf("expected missing data chunk error, got %v", err)
	}
}

func TestToStereo48k(t *testing.T) {
	mono := wavAudio{SampleRate: sampleRate, Channels: 1, Samples: []int16{10, 20}}
	out := toStereo48k(mono)
	if len(out) != 4 || out[0] != 10 || out[1] != 10 || out[2] != 20 || out[3] != 20 {
		t.Fatalf("mono not duplicated: %v", out)
	}

	half := wavAudio{SampleRate: 24000, Channels: 1, Samples: []int16{0, 100, 200, 300}}
	out = toStereo48k(half)
	if len(out) != 16 {
		t.Fatalf("expected 8 stereo frames, got %d samples", len(out))
	}
	if out[2] != 50 {
		t.Fatalf("expected interpolated 50, got %d", out[2])
	}
	if toStereo48k(wavAudio{SampleRate: sampleRate, Channels: 1}) != nil {
		t.Fatal("expected nil for empty audio")
	}
}
