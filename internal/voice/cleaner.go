package voice

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// StartRecordCleaner periodically prunes turn records in dir together with
// the audio they reference. Records older than retention go first, then the
// oldest until at most maxFiles remain (maxFiles <= 0 means no cap). Caller
// must wg.Add(1) first.
func StartRecordCleaner(ctx context.Context, wg *sync.WaitGroup, dir string, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := cleanRecords(dir, retention, maxFiles, time.Now()); n > 0 {
					logging.Infow("cleaner: removed turn records", "dir", dir, "removed", n)
				}
			}
		}
	}()
}

type recordFiles struct {
	jsonPath string
	audio    []string
	mod      time.Time
}

// cleanRecords does one pass and returns how many records it removed.
func cleanRecords(dir string, retention time.Duration, maxFiles int, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.Debugw("cleaner: readDir failed", "dir", dir, "err", err)
		return 0
	}
	var recs []recordFiles
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		recs = append(recs, recordFiles{jsonPath: path, audio: referencedAudio(path), mod: info.ModTime()})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].mod.Before(recs[j].mod) })

	removed := 0
	cutoff := now.Add(-retention)
	keep := recs[:0]
	for _, r := range recs {
		if retention > 0 && r.mod.Before(cutoff) {
			removeRecord(r)
			removed++
			continue
		}
		keep = append(keep, r)
	}
	if maxFiles > 0 && len(keep) > maxFiles {
		for _, r := range keep[:len(keep)-maxFiles] {
			removeRecord(r)
			removed++
		}
	}
	return removed
}

func referencedAudio(jsonPath string) []string {
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil
	}
	var rec map[string]interface{}
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil
	}
	var out []string
	for _, k := range []string{"tts_wav_path", "wav_path"} {
		if v, ok := rec[k].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func removeRecord(r recordFiles) {
	_ = os.Remove(r.jsonPath)
	_ = os.Remove(r.jsonPath + ".lock")
	for _, p := range r.audio {
		_ = os.Remove(p)
	}
}
