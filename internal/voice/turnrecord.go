package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// TurnRecorder keeps one JSON record per turn in Dir, keyed by correlation
// id: the transcript, the reply and the synthesized audio path. A nil
// recorder is a no-op.
type TurnRecorder struct {
	Dir string
	// Locking serializes concurrent updates with an advisory flock.
	Locking bool
}

func NewTurnRecorder(dir string, locking bool) *TurnRecorder {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &TurnRecorder{Dir: dir, Locking: locking}
}

// Create writes a new record for cid.
func (r *TurnRecorder) Create(cid string, fields map[string]interface{}) (string, error) {
	if r == nil {
		return "", nil
	}
	rec := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec["correlation_id"] = cid
	rec["created_utc"] = time.Now().UTC().Format(time.RFC3339Nano)
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_turn_cid%s.json", time.Now().UTC().Format("20060102T150405.000Z"), cid)
	path := filepath.Join(r.Dir, name)
	if err := SaveFileAtomic(path, b, 0o644); err != nil {
		logging.Warnw("turnrecord: failed to write record", "path", path, "err", err, "correlation_id", cid)
		return "", err
	}
	logging.Debugw("turnrecord: created", "path", path, "correlation_id", cid)
	return path, nil
}

// FindByCID returns the record path for cid, or "" if there is none.
func (r *TurnRecorder) FindByCID(cid string) string {
	if r == nil || cid == "" {
		return ""
	}
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		logging.Warnw("turnrecord: failed to list dir", "dir", r.Dir, "err", err)
		return ""
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") && strings.Contains(e.Name(), "cid"+cid) {
			return filepath.Join(r.Dir, e.Name())
		}
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.Dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			logging.Debugw("turnrecord: unreadable record while searching", "path", path, "err", err, "correlation_id", cid)
			continue
		}
		var rec map[string]interface{}
		if json.Unmarshal(b, &rec) == nil && rec["correlation_id"] == cid {
			return path
		}
	}
	return ""
}

// Update merges updates into the record for cid and rewrites it atomically.
func (r *TurnRecorder) Update(cid string, updates map[string]interface{}) error {
	if r == nil {
		return nil
	}
	path := r.FindByCID(cid)
	if path == "" {
		return fmt.Errorf("turn record not found for cid=%s in %s", cid, r.Dir)
	}
	if r.Locking {
		unlock, err := flockPath(path + ".lock")
		if err != nil {
			logging.Warnw("turnrecord: lock failed", "path", path, "err", err, "correlation_id", cid)
			return err
		}
		defer unlock()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read turn record %s: %w", path, err)
	}
	var rec map[string]interface{}
	if err := json.Unmarshal(b, &rec); err != nil {
		return fmt.Errorf("invalid turn record %s: %w", path, err)
	}
	for k, v := range updates {
		rec[k] = v
	}
	nb, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal turn record %s: %w", path, err)
	}
	if err := SaveFileAtomic(path, nb, 0o644); err != nil {
		logging.Warnw("turnrecord: failed to save updates", "path", path, "err", err, "correlation_id", cid)
		return err
	}
	logging.Debugw("turnrecord: saved updates", "path", path, "correlation_id", cid)
	return nil
}

func flockPath(lockPath string) (func(), error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
