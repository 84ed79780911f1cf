package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/discord-voice-lab/voiceturn/internal/api"
	"github.com/discord-voice-lab/voiceturn/internal/config"
	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/mcp"
	"github.com/discord-voice-lab/voiceturn/internal/metrics"
	"github.com/discord-voice-lab/voiceturn/internal/voice"
	"github.com/discord-voice-lab/voiceturn/llm"
)

const (
	serviceName    = "voiceturn-bot"
	serviceVersion = "v0.1.0"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.InitLevel(cfg.LogLevel)
	defer func() { _ = logging.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.FatalExitf("bot exited with error", "err", err)
	}
	logging.Infow("shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New()
	tunables := voice.NewTunableStore(cfg.Pipeline.Tunables())

	apiServer := api.NewServer(cfg, tunables, m.Handler())
	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		if err := apiServer.Run(ctx, cfg.API.ListenAddr); err != nil {
			logging.Errorw("api server failed", "err", err)
		}
	}()

	records := voice.NewTurnRecorder(cfg.Storage.SaveDir, cfg.Storage.Locking)
	if records != nil {
		bg.Add(1)
		voice.StartRecordCleaner(ctx, &bg, cfg.Storage.SaveDir, cfg.Storage.Retention(), cfg.Storage.CleanupInterval(), cfg.Storage.MaxFiles)
	}

	transcriber, closeTranscriber, err := buildTranscriber(ctx, cfg.Transcription)
	if err != nil {
		return err
	}
	defer closeTranscriber()

	backend, err := buildBackend(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	generator := llm.NewConversation(backend, cfg.LLM.SystemPrompt, cfg.LLM.HistoryTurns)

	tts := &voice.TTSClient{
		URL:       cfg.TTS.URL,
		AuthToken: cfg.TTS.AuthToken,
		Records:   records,
		SaveDir:   cfg.Storage.SaveDir,
		Timeout:   time.Duration(cfg.TTS.TimeoutMs) * time.Millisecond,
		Attempts:  3,
		Client:    &http.Client{},
	}

	var sinks []voice.TranscriptSink
	publishers := mcp.ConnectServers(ctx, cfg.MCP.Servers, cfg.MCP.Tool, serviceName, serviceVersion)
	for _, p := range publishers {
		sinks = append(sinks, p)
	}
	defer func() {
		for _, p := range publishers {
			_ = p.Close()
		}
	}()
	if cfg.MCP.PublicURL != "" {
		if err := mcp.Register(ctx, cfg.MCP.RegistryURL, serviceName, cfg.MCP.PublicURL); err != nil {
			logging.Warnw("mcp register failed", "err", err)
		}
	}

	dg, err := openSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	defer func() {
		if err := dg.Close(); err != nil {
			logging.Warnw("discord session close error", "err", err)
		}
	}()

	resolver := voice.NewDiscordResolver(dg, cfg.Discord.GuildID)
	logging.Infow("joining voice channel",
		append(logging.GuildFields(cfg.Discord.GuildID, resolver.GuildName(cfg.Discord.GuildID)),
			logging.ChannelFields(cfg.Discord.ChannelID, resolver.ChannelName(cfg.Discord.ChannelID))...)...)
	vc, err := dg.ChannelVoiceJoin(cfg.Discord.GuildID, cfg.Discord.ChannelID, false, false)
	if err != nil {
		return fmt.Errorf("voice join: %w", err)
	}
	defer func() {
		if err := vc.Disconnect(); err != nil {
			logging.Warnw("voice disconnect error", "err", err)
		}
	}()

	origin := time.Now()
	capture := voice.NewDiscordCapture(vc, origin, cfg.Discord.AllowedUsers)
	defer capture.Close()
	player := voice.NewDiscordPlayer(vc)
	defer player.Close()

	call := voice.NewCall(voice.CallConfig{
		Capture:           capture,
		Transcriber:       transcriber,
		Generator:         generator,
		Synthesizer:       tts,
		Player:            player,
		Tunables:          tunables,
		Workers:           cfg.Pipeline.Workers,
		PollInterval:      cfg.Pipeline.PollInterval(),
		Cooldown:          cfg.Pipeline.Cooldown(),
		Origin:            origin,
		FallbackMessage:   cfg.Pipeline.FallbackMessage,
		FallbackAudioPath: cfg.Pipeline.FallbackAudioPath,
		RemoveAfterPlay:   cfg.Storage.RemoveAfterPlay,
		Resolver:          resolver,
		Wake:              voice.NewWakeDetector(cfg.Wake.Phrases, cfg.Wake.WindowWords),
		Sinks:             sinks,
		Records:           records,
		Metrics:           m,
	})
	apiServer.SetStatusSource(call)

	err = call.Run(ctx)
	logging.Infow("shutdown signal received, closing resources")

	done := make(chan struct{})
	go func() {
		bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logging.Warnw("background workers did not stop in time")
	}
	return err
}

func openSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordgo.New: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	logging.Infow("using gateway intents", "intents", dg.Identify.Intents)
	dg.AddHandler(logEvent)
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("discord session open: %w", err)
	}
	logging.Infow("discord session opened")
	return dg, nil
}

func buildTranscriber(ctx context.Context, c config.TranscriptionConfig) (voice.Transcriber, func(), error) {
	switch c.Provider {
	case "google":
		g, err := voice.NewGoogleTranscriber(ctx, c.Language)
		if err != nil {
			return nil, nil, fmt.Errorf("google speech: %w", err)
		}
		return g, func() { _ = g.Close() }, nil
	default:
		return &voice.WhisperTranscriber{
			URL:       c.URL,
			Language:  c.Language,
			Translate: c.Translate,
			BeamSize:  c.BeamSize,
			Timeout:   time.Duration(c.TimeoutMs) * time.Millisecond,
			Attempts:  3,
			Client:    &http.Client{},
		}, func() {}, nil
	}
}

func buildBackend(ctx context.Context, c config.LLMConfig) (llm.Backend, error) {
	switch c.Provider {
	case "gemini":
		g, err := llm.NewGeminiClient(ctx, c.APIKey, c.Model, c.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return g, nil
	default:
		return &llm.Client{
			BaseURL:       c.BaseURL,
			APIKey:        c.APIKey,
			Model:         c.Model,
			FallbackModel: c.FallbackModel,
			MaxTokens:     c.MaxTokens,
			HTTP:          &http.Client{Timeout: 60 * time.Second},
		}, nil
	}
}
