package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// TTSClient synthesizes speech over HTTP: it posts {"text": ...} and
// expects WAV bytes back, which are saved under SaveDir.
type TTSClient struct {
	URL       string
	AuthToken string
	Client    *http.Client
	Records   *TurnRecorder
	SaveDir   string
	Timeout   time.Duration
	Attempts  int
}

// Synthesize implements Synthesizer and returns the saved WAV path.
func (t *TTSClient) Synthesize(ctx context.Context, text string) (string, error) {
	if t == nil || t.URL == "" {
		return "", fmt.Errorf("tts client not configured")
	}
	cid := CorrelationID(ctx)
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := t.Attempts
	if attempts <= 0 {
		attempts = 2
	}
	resp, err := postWithRetries(ctx, t.Client, postRequest{
		URL:           t.URL,
		Body:          body,
		AuthToken:     t.AuthToken,
		Timeout:       timeout,
		Attempts:      attempts,
		CorrelationID: cid,
	})
	if err != nil {
		logging.DebugwCtx(ctx, "tts: POST failed", "err", err)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logging.WarnwCtx(ctx, "tts: returned non-2xx", "status", resp.StatusCode)
		return "", fmt.Errorf("tts returned status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("tts: read body: %w", err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("tts returned empty audio")
	}

	dir := t.SaveDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "voiceturn")
	}
	name := cid
	if name == "" {
		name = uuid.NewString()
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_tts_cid%s.wav", time.Now().UTC().Format("20060102T150405.000Z"), name))
	if err := SaveFileAtomic(path, audio, 0o644); err != nil {
		logging.WarnwCtx(ctx, "tts: failed to save wav", "path", path, "err", err)
		return "", err
	}
	logging.InfowCtx(ctx, "tts: saved audio", "path", path, "bytes", len(audio))
	if cid != "" && t.Records != nil {
		if err := t.Records.Update(cid, map[string]interface{}{
			"tts_wav_path":  path,
			"tts_saved_utc": time.Now().UTC().Format(time.RFC3339Nano),
		}); err != nil {
			logging.DebugwCtx(ctx, "tts: record update failed", "err", err)
		}
	}
	return path, nil
}
