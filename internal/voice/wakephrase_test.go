package voice

import "testing"

func TestWakeDetector(t *testing.T) {
	w := NewWakeDetector([]string{"  Hey   Bot ", ""}, 0)
	if !w.Enabled() || len(w.Phrases) != 1 || w.Phrases[0] != "hey bot" {
		t.Fatalf("unexpected phrases: %+v", w.Phrases)
	}
	ok, rest := w.Detect("Hey, bot! what's up?")
	if !ok || rest != "what's up" {
		t.Fatalf("Detect = %v %q", ok, rest)
	}
	if ok, _ := w.Detect("so hey bot what's up"); ok {
		t.Fatal("phrase must open the transcript without a window")
	}

	windowed := NewWakeDetector([]string{"hey bot"}, 4)
	if ok, rest := windowed.Detect("so um hey bot play music"); !ok || rest != "play music" {
		t.Fatalf("windowed Detect = %v %q", ok, rest)
	}
	if ok, _ := windowed.Detect("one two three hey bot"); ok {
		t.Fatal("phrase beyond the window must not match")
	}
}

func TestWakeDetectorDisabled(t *testing.T) {
	var w *WakeDetector
	if w.Enabled() {
		t.Fatal("nil detector enabled")
	}
	if ok, _ := NewWakeDetector(nil, 0).Detect("hey bot"); ok {
		t.Fatal("detector without phrases matched")
	}
}
