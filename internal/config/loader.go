package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from defaults, an optional YAML file and
// environment overrides. Tests can override Lookup and ReadFile.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load resolves the configuration and validates it. The YAML file comes
// from CONFIG_PATH; environment variables win over the file.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}
	cfg := Default()

	if path, ok := l.Lookup("CONFIG_PATH"); ok && strings.TrimSpace(path) != "" {
		data, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.MCP.ManifestPath != "" {
		servers, err := loadManifest(l.ReadFile, cfg.MCP.ManifestPath)
		if err != nil {
			return Config{}, err
		}
		cfg.MCP.Servers = mergeServers(cfg.MCP.Servers, servers)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) applyEnv(cfg *Config) error {
	str := func(key string, target *string) { overrideString(l.Lookup, key, target) }
	str("DISCORD_BOT_TOKEN", &cfg.Discord.Token)
	str("GUILD_ID", &cfg.Discord.GuildID)
	str("VOICE_CHANNEL_ID", &cfg.Discord.ChannelID)
	overrideList(l.Lookup, "ALLOWED_USER_IDS", &cfg.Discord.AllowedUsers)

	str("FALLBACK_MESSAGE", &cfg.Pipeline.FallbackMessage)
	str("FALLBACK_AUDIO_PATH", &cfg.Pipeline.FallbackAudioPath)

	str("STT_PROVIDER", &cfg.Transcription.Provider)
	str("WHISPER_URL", &cfg.Transcription.URL)
	str("STT_LANGUAGE", &cfg.Transcription.Language)

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	str("OPENAI_MODEL", &cfg.LLM.Model)
	str("OPENAI_FALLBACK_MODEL", &cfg.LLM.FallbackModel)
	str("LLM_SYSTEM_PROMPT", &cfg.LLM.SystemPrompt)
	if strings.EqualFold(cfg.LLM.Provider, "gemini") {
		str("GEMINI_API_KEY", &cfg.LLM.APIKey)
		str("GEMINI_MODEL", &cfg.LLM.Model)
	}

	str("TTS_URL", &cfg.TTS.URL)
	str("TTS_AUTH_TOKEN", &cfg.TTS.AuthToken)

	str("SAVE_AUDIO_DIR", &cfg.Storage.SaveDir)
	str("API_LISTEN_ADDR", &cfg.API.ListenAddr)
	str("MCP_CONFIG_PATH", &cfg.MCP.ManifestPath)
	str("MCP_TRANSCRIPT_TOOL", &cfg.MCP.Tool)
	str("MCP_URL", &cfg.MCP.RegistryURL)
	str("MCP_PUBLIC_URL", &cfg.MCP.PublicURL)
	overrideList(l.Lookup, "WAKE_PHRASES", &cfg.Wake.Phrases)
	str("LOG_LEVEL", &cfg.LogLevel)

	floats := []struct {
		key    string
		target *float64
	}{
		{"SILENCE_CLOSE_SEC", &cfg.Pipeline.SilenceCloseSec},
		{"MERGE_GAP_SEC", &cfg.Pipeline.MergeGapSec},
		{"MAX_MERGE_SEC", &cfg.Pipeline.MaxMergeSec},
		{"HYSTERESIS_SPAN_SEC", &cfg.Pipeline.HysteresisSpanSec},
		{"SAVE_AUDIO_RETENTION_HOURS", &cfg.Storage.RetentionHours},
	}
	for _, f := range floats {
		if err := overrideFloat(l.Lookup, f.key, f.target); err != nil {
			return err
		}
	}
	ints := []struct {
		key    string
		target *int
	}{
		{"POLL_INTERVAL_MS", &cfg.Pipeline.PollIntervalMs},
		{"COOLDOWN_MS", &cfg.Pipeline.CooldownMs},
		{"WORKERS", &cfg.Pipeline.Workers},
		{"STT_BEAM_SIZE", &cfg.Transcription.BeamSize},
		{"WHISPER_TIMEOUT_MS", &cfg.Transcription.TimeoutMs},
		{"LLM_MAX_TOKENS", &cfg.LLM.MaxTokens},
		{"LLM_HISTORY_TURNS", &cfg.LLM.HistoryTurns},
		{"TTS_TIMEOUT_MS", &cfg.TTS.TimeoutMs},
		{"SAVE_AUDIO_MAX_FILES", &cfg.Storage.MaxFiles},
		{"SAVE_AUDIO_CLEAN_INTERVAL_MIN", &cfg.Storage.CleanupIntervalMin},
		{"WAKE_WINDOW_WORDS", &cfg.Wake.WindowWords},
	}
	for _, i := range ints {
		if err := overrideInt(l.Lookup, i.key, i.target); err != nil {
			return err
		}
	}
	bools := []struct {
		key    string
		target *bool
	}{
		{"SINGLE_SPEAKER", &cfg.Pipeline.SingleSpeaker},
		{"WHISPER_TRANSLATE", &cfg.Transcription.Translate},
		{"REMOVE_AFTER_PLAY", &cfg.Storage.RemoveAfterPlay},
		{"SIDECAR_LOCKING", &cfg.Storage.Locking},
	}
	for _, b := range bools {
		overrideBool(l.Lookup, b.key, b.target)
	}

	// GPT5_ENABLED=false pins the fallback model.
	if v, ok := l.Lookup("GPT5_ENABLED"); ok && strings.EqualFold(strings.TrimSpace(v), "false") && cfg.LLM.FallbackModel != "" {
		cfg.LLM.Model = cfg.LLM.FallbackModel
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideList(lookup func(string) (string, bool), key string, target *[]string) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*target = out
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = f
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) {
	value, ok := lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		*target = true
	case "0", "false", "no", "off":
		*target = false
	}
}
