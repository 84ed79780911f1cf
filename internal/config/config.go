package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/voice"
)

// Config is the complete bot configuration.
type Config struct {
	Discord       DiscordConfig       `yaml:"discord" json:"discord"`
	Pipeline      PipelineConfig      `yaml:"pipeline" json:"pipeline"`
	Transcription TranscriptionConfig `yaml:"transcription" json:"transcription"`
	LLM           LLMConfig           `yaml:"llm" json:"llm"`
	TTS           TTSConfig           `yaml:"tts" json:"tts"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	API           APIConfig           `yaml:"api" json:"api"`
	MCP           MCPConfig           `yaml:"mcp" json:"mcp"`
	Wake          WakeConfig          `yaml:"wake" json:"wake"`
	LogLevel      string              `yaml:"log_level" json:"log_level"`
}

type DiscordConfig struct {
	Token        string   `yaml:"token" json:"token"`
	GuildID      string   `yaml:"guild_id" json:"guild_id"`
	ChannelID    string   `yaml:"channel_id" json:"channel_id"`
	AllowedUsers []string `yaml:"allowed_users" json:"allowed_users"`
}

// PipelineConfig holds the turn-taking knobs. Durations are in seconds
// unless the name says otherwise.
type PipelineConfig struct {
	SilenceCloseSec   float64 `yaml:"silence_close_sec" json:"silence_close_sec"`
	MergeGapSec       float64 `yaml:"merge_gap_sec" json:"merge_gap_sec"`
	MaxMergeSec       float64 `yaml:"max_merge_sec" json:"max_merge_sec"`
	PollIntervalMs    int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	CooldownMs        int     `yaml:"cooldown_ms" json:"cooldown_ms"`
	SingleSpeaker     bool    `yaml:"single_speaker" json:"single_speaker"`
	HysteresisSpanSec float64 `yaml:"hysteresis_span_sec" json:"hysteresis_span_sec"`
	Workers           int     `yaml:"workers" json:"workers"`
	FallbackMessage   string  `yaml:"fallback_message" json:"fallback_message"`
	FallbackAudioPath string  `yaml:"fallback_audio_path" json:"fallback_audio_path"`
}

type TranscriptionConfig struct {
	// Provider is "whisper" (HTTP) or "google" (Cloud Speech).
	Provider  string `yaml:"provider" json:"provider"`
	URL       string `yaml:"url" json:"url"`
	Language  string `yaml:"language" json:"language"`
	Translate bool   `yaml:"translate" json:"translate"`
	BeamSize  int    `yaml:"beam_size" json:"beam_size"`
	TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"`
}

type LLMConfig struct {
	// Provider is "openai" (any compatible endpoint) or "gemini".
	Provider      string `yaml:"provider" json:"provider"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	Model         string `yaml:"model" json:"model"`
	FallbackModel string `yaml:"fallback_model" json:"fallback_model"`
	SystemPrompt  string `yaml:"system_prompt" json:"system_prompt"`
	MaxTokens     int    `yaml:"max_tokens" json:"max_tokens"`
	HistoryTurns  int    `yaml:"history_turns" json:"history_turns"`
}

type TTSConfig struct {
	URL       string `yaml:"url" json:"url"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
	TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"`
}

type StorageConfig struct {
	SaveDir            string  `yaml:"save_dir" json:"save_dir"`
	RetentionHours     float64 `yaml:"retention_hours" json:"retention_hours"`
	MaxFiles           int     `yaml:"max_files" json:"max_files"`
	CleanupIntervalMin int     `yaml:"cleanup_interval_min" json:"cleanup_interval_min"`
	RemoveAfterPlay    bool    `yaml:"remove_after_play" json:"remove_after_play"`
	Locking            bool    `yaml:"locking" json:"locking"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

type MCPConfig struct {
	ManifestPath string      `yaml:"manifest_path" json:"manifest_path"`
	Servers      []MCPServer `yaml:"servers" json:"servers"`
	// Tool is the tool called with each published transcript.
	Tool        string `yaml:"tool" json:"tool"`
	RegistryURL string `yaml:"registry_url" json:"registry_url"`
	PublicURL   string `yaml:"public_url" json:"public_url"`
}

type WakeConfig struct {
	Phrases     []string `yaml:"phrases" json:"phrases"`
	WindowWords int      `yaml:"window_words" json:"window_words"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			SilenceCloseSec:   1.5,
			MergeGapSec:       0.5,
			PollIntervalMs:    100,
			CooldownMs:        250,
			HysteresisSpanSec: 2.0,
			Workers:           4,
			FallbackMessage:   voice.DefaultFallbackMessage,
		},
		Transcription: TranscriptionConfig{Provider: "whisper", TimeoutMs: 30000},
		LLM: LLMConfig{
			Provider:     "openai",
			BaseURL:      "http://127.0.0.1:8000/v1",
			MaxTokens:    512,
			HistoryTurns: 6,
		},
		TTS: TTSConfig{TimeoutMs: 10000},
		Storage: StorageConfig{
			RetentionHours:     24,
			CleanupIntervalMin: 10,
		},
		API:      APIConfig{ListenAddr: ":8090"},
		MCP:      MCPConfig{Tool: "publish_transcript"},
		LogLevel: "info",
	}
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	switch strings.ToLower(c.Transcription.Provider) {
	case "whisper":
		if c.Transcription.URL == "" {
			return fmt.Errorf("transcription config: url is required for the whisper provider")
		}
	case "google":
	default:
		return fmt.Errorf("transcription config: unknown provider %q", c.Transcription.Provider)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
	case "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm config: api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("llm config: unknown provider %q", c.LLM.Provider)
	}
	if c.LLM.HistoryTurns < 0 {
		return fmt.Errorf("llm config: history_turns must be >= 0, got %d", c.LLM.HistoryTurns)
	}
	if c.TTS.URL == "" {
		return fmt.Errorf("tts config: url is required")
	}
	if c.Storage.MaxFiles < 0 {
		return fmt.Errorf("storage config: max_files must be >= 0, got %d", c.Storage.MaxFiles)
	}
	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			return fmt.Errorf("mcp config: server %d has no name", i)
		}
		if s.URL == "" && s.Command == "" {
			return fmt.Errorf("mcp config: server %s needs a url or a command", s.Name)
		}
	}
	return nil
}

func (p *PipelineConfig) Validate() error {
	if p.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", p.PollIntervalMs)
	}
	if p.CooldownMs < 0 {
		return fmt.Errorf("cooldown_ms must be >= 0, got %d", p.CooldownMs)
	}
	if p.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", p.Workers)
	}
	return p.Tunables().Validate()
}

// Tunables converts the runtime-adjustable part of the pipeline config.
func (p PipelineConfig) Tunables() voice.Tunables {
	return voice.Tunables{
		SilenceClose:   time.Duration(p.SilenceCloseSec * float64(time.Second)),
		MergeGap:       p.MergeGapSec,
		MaxMerge:       p.MaxMergeSec,
		SingleSpeaker:  p.SingleSpeaker,
		HysteresisSpan: p.HysteresisSpanSec,
	}
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMs) * time.Millisecond
}

func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours * float64(time.Hour))
}

func (s StorageConfig) CleanupInterval() time.Duration {
	if s.CleanupIntervalMin <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.CleanupIntervalMin) * time.Minute
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Discord.Token = mask(c.Discord.Token)
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.TTS.AuthToken = mask(c.TTS.AuthToken)
	servers := make([]MCPServer, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if len(s.Env) > 0 {
			env := make(map[string]string, len(s.Env))
			for k := range s.Env {
				env[k] = "***"
			}
			s.Env = env
		}
		servers[i] = s
	}
	c.MCP.Servers = servers
	return c
}
