package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/mcp"
)

func main() {
	_ = godotenv.Load()
	logging.InitLevel(os.Getenv("LOG_LEVEL"))
	defer func() { _ = logging.Sync() }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "9001"
	}
	capacity := 100
	if v := os.Getenv("HUB_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			capacity = n
		} else {
			logging.Warnw("invalid HUB_CAPACITY; using default", "value", v, "default", capacity)
		}
	}

	hub := mcp.NewHub("voiceturn-hub", "v0.1.0", capacity)
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	hub.Routes(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Infow("mcp hub listening", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("mcp hub failed", "err", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("mcp hub shutdown error", "err", err)
	}
}
