package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/config"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
	"github.com/discord-voice-lab/voiceturn/internal/voice"
)

type fakeStatus struct{ st voice.CallStatus }

func (f fakeStatus) Status() voice.CallStatus { return f.st }

type flushingStatus struct {
	fakeStatus
	flushes int
}

func (f *flushingStatus) Flush() { f.flushes++ }

func newTestServer(t *testing.T) (*Server, *voice.TunableStore) {
	t.Helper()
	cfg := config.Default()
	cfg.Discord.Token = "secret-token"
	store := voice.NewTunableStore(voice.DefaultTunables())
	return NewServer(cfg, store, metrics.New().Handler()), store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusBeforeAndAfterCall(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/status", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a call, got %d", rec.Code)
	}
	s.SetStatusSource(fakeStatus{st: voice.CallStatus{Segmenter: "listening", QueueDepth: 2}})
	rec := do(t, s, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got voice.CallStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.Segmenter != "listening" || got.QueueDepth != 2 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-token") {
		t.Fatalf("config leaked token: %s", rec.Body.String())
	}
}

func TestPatchConfigUpdatesTunables(t *testing.T) {
	s, store := newTestServer(t)
	rec := do(t, s, http.MethodPatch, "/config", `{"silence_close_sec": 0.8, "single_speaker": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := store.Load()
	if got.SilenceClose != 800*time.Millisecond {
		t.Fatalf("expected 800ms silence close, got %s", got.SilenceClose)
	}
	if !got.SingleSpeaker {
		t.Fatal("expected single speaker enabled")
	}
	if got.MergeGap != voice.DefaultTunables().MergeGap {
		t.Fatalf("merge gap should be unchanged, got %v", got.MergeGap)
	}
}

func TestPatchConfigRejectsInvalid(t *testing.T) {
	s, store := newTestServer(t)
	before := store.Load()
	if rec := do(t, s, http.MethodPatch, "/config", `{"merge_gap_sec": -1}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, "/config", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if store.Load() != before {
		t.Fatal("tunables changed after rejected patch")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFlushClosesSession(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, http.MethodPost, "/flush", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a call, got %d", rec.Code)
	}
	src := &flushingStatus{}
	s.SetStatusSource(src)
	if rec := do(t, s, http.MethodPost, "/flush", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if src.flushes != 1 {
		t.Fatalf("expected one flush, got %d", src.flushes)
	}
}

func TestConfigTunablesRoundTrip(t *testing.T) {
	s, store := newTestServer(t)
	if rec := do(t, s, http.MethodPatch, "/config", `{"silence_close_sec": 0.8}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/config", "")
	var view struct {
		Tunables map[string]any `json:"tunables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if view.Tunables["silence_close_sec"] != 0.8 {
		t.Fatalf("expected silence_close_sec 0.8, got %v", view.Tunables)
	}
	if _, ok := view.Tunables["silence_close"]; ok {
		t.Fatalf("nanosecond key still present: %v", view.Tunables)
	}

	// feeding the GET body back through PATCH leaves the store unchanged
	before := store.Load()
	body, _ := json.Marshal(view.Tunables)
	if rec := do(t, s, http.MethodPatch, "/config", string(body)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.Load() != before {
		t.Fatalf("round trip changed tunables: %+v -> %+v", before, store.Load())
	}
}
