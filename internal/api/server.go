package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/discord-voice-lab/voiceturn/internal/config"
	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/voice"
)

// StatusSource reports the live call's state.
type StatusSource interface {
	Status() voice.CallStatus
}

// Flusher is implemented by sources that can close the open capture
// session on demand.
type Flusher interface {
	Flush()
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TunablesPatch is the PATCH /config body. Absent fields are left alone.
type TunablesPatch struct {
	SilenceCloseSec   *float64 `json:"silence_close_sec"`
	MergeGapSec       *float64 `json:"merge_gap_sec"`
	MaxMergeSec       *float64 `json:"max_merge_sec"`
	SingleSpeaker     *bool    `json:"single_speaker"`
	HysteresisSpanSec *float64 `json:"hysteresis_span_sec"`
}

func (p TunablesPatch) apply(t voice.Tunables) voice.Tunables {
	if p.SilenceCloseSec != nil {
		t.SilenceClose = time.Duration(*p.SilenceCloseSec * float64(time.Second))
	}
	if p.MergeGapSec != nil {
		t.MergeGap = *p.MergeGapSec
	}
	if p.MaxMergeSec != nil {
		t.MaxMerge = *p.MaxMergeSec
	}
	if p.SingleSpeaker != nil {
		t.SingleSpeaker = *p.SingleSpeaker
	}
	if p.HysteresisSpanSec != nil {
		t.HysteresisSpan = *p.HysteresisSpanSec
	}
	return t
}

// Server is the bot's operational HTTP surface.
type Server struct {
	echo     *echo.Echo
	cfg      config.Config
	tunables *voice.TunableStore
	metrics  http.Handler

	mu     sync.RWMutex
	status StatusSource
}

func NewServer(cfg config.Config, tunables *voice.TunableStore, metricsHandler http.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	s := &Server{echo: e, cfg: cfg, tunables: tunables, metrics: metricsHandler}
	s.routes()
	return s
}

// SetStatusSource attaches the live call once it exists.
func (s *Server) SetStatusSource(src StatusSource) {
	s.mu.Lock()
	s.status = src
	s.mu.Unlock()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/status", s.getStatus)
	s.echo.GET("/config", s.getConfig)
	s.echo.PATCH("/config", s.patchConfig)
	s.echo.POST("/flush", s.flush)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "voiceturn"})
}

func (s *Server) getStatus(c echo.Context) error {
	s.mu.RLock()
	src := s.status
	s.mu.RUnlock()
	if src == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "not_ready",
			Message: "no active call",
		})
	}
	return c.JSON(http.StatusOK, src.Status())
}

func (s *Server) flush(c echo.Context) error {
	s.mu.RLock()
	src := s.status
	s.mu.RUnlock()
	f, ok := src.(Flusher)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "not_ready",
			Message: "no active call",
		})
	}
	f.Flush()
	logging.Infow("api: capture session flushed")
	return c.JSON(http.StatusAccepted, map[string]string{"status": "flushing"})
}

type configView struct {
	Config   config.Config  `json:"config"`
	Tunables voice.Tunables `json:"tunables"`
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, configView{Config: s.cfg.Redacted(), Tunables: s.tunables.Load()})
}

func (s *Server) patchConfig(c echo.Context) error {
	var patch TunablesPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "invalid request format",
		})
	}
	next := patch.apply(s.tunables.Load())
	if err := s.tunables.Store(next); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_tunables",
			Message: err.Error(),
		})
	}
	logging.Infow("api: tunables updated",
		"silence_close", next.SilenceClose.String(),
		"merge_gap_sec", next.MergeGap,
		"max_merge_sec", next.MaxMerge,
		"single_speaker", next.SingleSpeaker,
		"hysteresis_span_sec", next.HysteresisSpan)
	return c.JSON(http.StatusOK, next)
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Infow("api: listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
