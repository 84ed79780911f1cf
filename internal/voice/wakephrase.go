package voice

import (
	"regexp"
	"strings"
)

var spaceRun = regexp.MustCompile(`\s+`)

const wakePunct = " ,.!?;:-\"'`~"

// WakeDetector gates replies on a spoken wake phrase. With WindowWords 0 the
// phrase must open the transcript; otherwise it may appear anywhere within
// the first WindowWords words.
type WakeDetector struct {
	Phrases     []string
	WindowWords int
}

func NewWakeDetector(phrases []string, windowWords int) *WakeDetector {
	var ps []string
	for _, p := range phrases {
		if p = normalizeWake(p); p != "" {
			ps = append(ps, p)
		}
	}
	return &WakeDetector{Phrases: ps, WindowWords: windowWords}
}

// Enabled reports whether any phrase is configured.
func (w *WakeDetector) Enabled() bool { return w != nil && len(w.Phrases) > 0 }

func normalizeWake(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return spaceRun.ReplaceAllString(s, " ")
}

func wakeToken(tok string) string { return strings.Trim(strings.ToLower(tok), wakePunct) }

// Detect returns whether text carries a wake phrase and the text that
// follows it.
func (w *WakeDetector) Detect(text string) (bool, string) {
	if !w.Enabled() {
		return false, ""
	}
	words := strings.Fields(normalizeWake(text))
	for i := range words {
		words[i] = wakeToken(words[i])
	}
	for _, phrase := range w.Phrases {
		pw := strings.Fields(phrase)
		for i := range pw {
			pw[i] = wakeToken(pw[i])
		}
		limit := len(pw)
		if w.WindowWords > 0 {
			limit = w.WindowWords
		}
		for start := 0; start+len(pw) <= len(words) && start+len(pw) <= limit; start++ {
			if matchWords(words[start:start+len(pw)], pw) {
				rest := strings.Join(words[start+len(pw):], " ")
				return true, strings.Trim(rest, wakePunct)
			}
		}
	}
	return false, ""
}

func matchWords(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
