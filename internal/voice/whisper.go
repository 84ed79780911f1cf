package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// WhisperTranscriber posts utterances as WAV to a faster-whisper style HTTP
// service and reads {"text": ...} back.
type WhisperTranscriber struct {
	URL            string
	Language       string
	Translate      bool
	BeamSize       int
	WordTimestamps bool
	Timeout        time.Duration
	Attempts       int
	Client         *http.Client
}

// endpoint adds the decoding options as query parameters.
func (w *WhisperTranscriber) endpoint() (string, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if w.Translate {
		q.Set("task", "translate")
	}
	if w.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(w.BeamSize))
	}
	if w.Language != "" {
		q.Set("language", w.Language)
	}
	if w.WordTimestamps {
		q.Set("word_timestamps", "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe implements Transcriber. The segment timestamp is the start of
// the utterance.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, u Utterance) (Transcription, error) {
	if w == nil || w.URL == "" {
		return Transcription{}, fmt.Errorf("whisper: URL not configured")
	}
	endpoint, err := w.endpoint()
	if err != nil {
		return Transcription{}, fmt.Errorf("whisper: bad URL: %w", err)
	}
	cid := uuid.NewString()
	samples := len(u.Audio) / 2
	logging.Debugw("whisper: sending audio", "speaker_id", u.SpeakerID, "correlation_id", cid, "bytes", len(u.Audio), "duration_ms", samples*1000/sampleRate)

	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	sent := time.Now()
	resp, err := postWithRetries(ctx, w.Client, postRequest{
		URL:           endpoint,
		Body:          buildWAV(u.Audio, sampleRate, captureChannels, 16),
		ContentType:   "audio/wav",
		Timeout:       w.Timeout,
		Attempts:      attempts,
		CorrelationID: cid,
	})
	if err != nil {
		return Transcription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcription{}, fmt.Errorf("whisper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcription{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	logging.Infow("whisper: response received",
		"speaker_id", u.SpeakerID,
		"correlation_id", cid,
		"status", resp.StatusCode,
		"stt_latency_ms", time.Since(sent).Milliseconds(),
		"stt_server_ms", resp.Header.Get("X-Processing-Time-ms"),
	)
	return Transcription{Text: strings.TrimSpace(out.Text), Timestamp: u.StartAt}, nil
}
