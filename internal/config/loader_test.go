package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func files(m map[string]string) func(string) ([]byte, error) {
	return func(p string) ([]byte, error) {
		if v, ok := m[p]; ok {
			return []byte(v), nil
		}
		return nil, os.ErrNotExist
	}
}

func TestLoadDefaultsWithRequiredEnv(t *testing.T) {
	cfg, err := Loader{Lookup: mapLookup(map[string]string{
		"WHISPER_URL": "http://stt:9000/asr",
		"TTS_URL":     "http://tts:5002/speak",
	})}.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tun := cfg.Pipeline.Tunables()
	if tun.SilenceClose != 1500*time.Millisecond || tun.MergeGap != 0.5 || tun.HysteresisSpan != 2.0 {
		t.Fatalf("unexpected default tunables: %+v", tun)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.PollInterval() != 100*time.Millisecond || cfg.Pipeline.Cooldown() != 250*time.Millisecond {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.MCP.Tool != "publish_transcript" {
		t.Fatalf("unexpected mcp tool default %q", cfg.MCP.Tool)
	}
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	yamlDoc := `
discord:
  guild_id: "g1"
  channel_id: "c1"
pipeline:
  silence_close_sec: 2
  merge_gap_sec: 0.8
  single_speaker: true
transcription:
  provider: whisper
  url: http://file-stt/asr
tts:
  url: http://file-tts/speak
mcp:
  servers:
    - name: notes
      url: ws://notes:9001/mcp/ws
`
	cfg, err := Loader{
		Lookup: mapLookup(map[string]string{
			"CONFIG_PATH":      "/etc/bot.yaml",
			"WHISPER_URL":      "http://env-stt/asr",
			"MERGE_GAP_SEC":    "0.3",
			"ALLOWED_USER_IDS": "u1, u2,,",
			"SINGLE_SPEAKER":   "false",
		}),
		ReadFile: files(map[string]string{"/etc/bot.yaml": yamlDoc}),
	}.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.GuildID != "g1" || cfg.Discord.ChannelID != "c1" {
		t.Fatalf("yaml discord values lost: %+v", cfg.Discord)
	}
	if cfg.Transcription.URL != "http://env-stt/asr" {
		t.Fatalf("env should override yaml, got %q", cfg.Transcription.URL)
	}
	if cfg.Pipeline.SilenceCloseSec != 2 || cfg.Pipeline.MergeGapSec != 0.3 {
		t.Fatalf("unexpected pipeline: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.SingleSpeaker {
		t.Fatalf("SINGLE_SPEAKER=false should override yaml")
	}
	if len(cfg.Discord.AllowedUsers) != 2 || cfg.Discord.AllowedUsers[1] != "u2" {
		t.Fatalf("unexpected allowed users: %v", cfg.Discord.AllowedUsers)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Name != "notes" {
		t.Fatalf("unexpected mcp servers: %+v", cfg.MCP.Servers)
	}
}

func TestLoadManifestMerges(t *testing.T) {
	manifestDoc := `{"mcpServers": {
		"notes": {"transport": {"type": "websocket", "url": "ws://override/mcp/ws"}},
		"local": {"command": "/usr/bin/mcp-notes", "args": ["--stdio"], "enabled": false}
	}}`
	yamlDoc := `
mcp:
  servers:
    - name: notes
      url: ws://notes:9001/mcp/ws
`
	cfg, err := Loader{
		Lookup: mapLookup(map[string]string{
			"CONFIG_PATH":     "/bot.yaml",
			"MCP_CONFIG_PATH": "/mcp.json",
			"WHISPER_URL":     "http://stt/asr",
			"TTS_URL":         "http://tts/speak",
		}),
		ReadFile: files(map[string]string{"/bot.yaml": yamlDoc, "/mcp.json": manifestDoc}),
	}.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.MCP.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %+v", cfg.MCP.Servers)
	}
	if cfg.MCP.Servers[0].URL != "ws://override/mcp/ws" {
		t.Fatalf("manifest should replace same-named server, got %+v", cfg.MCP.Servers[0])
	}
	local := cfg.MCP.Servers[1]
	if local.Name != "local" || local.EnabledValue() {
		t.Fatalf("unexpected local server: %+v", local)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unparsable float": {"WHISPER_URL": "x", "TTS_URL": "y", "MERGE_GAP_SEC": "abc"},
		"zero merge gap":   {"WHISPER_URL": "x", "TTS_URL": "y", "MERGE_GAP_SEC": "0"},
		"missing whisper":  {"TTS_URL": "y"},
		"missing tts":      {"WHISPER_URL": "x"},
		"bad provider":     {"WHISPER_URL": "x", "TTS_URL": "y", "STT_PROVIDER": "nope"},
		"gemini no key":    {"WHISPER_URL": "x", "TTS_URL": "y", "LLM_PROVIDER": "gemini"},
		"zero workers":     {"WHISPER_URL": "x", "TTS_URL": "y", "WORKERS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := (Loader{Lookup: mapLookup(env)}).Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Loader{
		Lookup:   mapLookup(map[string]string{"CONFIG_PATH": "/missing.yaml"}),
		ReadFile: files(nil),
	}.Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestGPT5DisabledPinsFallback(t *testing.T) {
	cfg, err := Loader{Lookup: mapLookup(map[string]string{
		"WHISPER_URL":           "x",
		"TTS_URL":               "y",
		"OPENAI_MODEL":          "gpt-5",
		"OPENAI_FALLBACK_MODEL": "local",
		"GPT5_ENABLED":          "false",
	})}.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Model != "local" {
		t.Fatalf("expected fallback model, got %q", cfg.LLM.Model)
	}
}

func TestRedacted(t *testing.T) {
	c := Default()
	c.Discord.Token = "secret"
	c.LLM.APIKey = "key"
	c.MCP.Servers = []MCPServer{{Name: "a", Command: "x", Env: map[string]string{"TOKEN": "t"}}}
	r := c.Redacted()
	if r.Discord.Token != "***" || r.LLM.APIKey != "***" || r.TTS.AuthToken != "" {
		t.Fatalf("secrets not masked: %+v", r)
	}
	if r.MCP.Servers[0].Env["TOKEN"] != "***" || c.MCP.Servers[0].Env["TOKEN"] != "t" {
		t.Fatalf("env masking must not touch the original")
	}
}
