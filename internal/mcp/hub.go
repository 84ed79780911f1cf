package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// PublishedTranscript is a transcript as received by the hub.
type PublishedTranscript struct {
	ID         string           `json:"transcript_id"`
	Text       string           `json:"text"`
	Segments   []map[string]any `json:"segments,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Registration is a service record posted to /mcp/register.
type Registration struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Description  string    `json:"description,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

type publishArgs struct {
	TranscriptID string           `json:"transcript_id"`
	Text         string           `json:"text"`
	Segments     []map[string]any `json:"segments,omitempty"`
}

type recentArgs struct {
	Limit int `json:"limit,omitempty"`
}

// Hub is a small MCP server that collects transcripts published by bots
// and keeps the most recent ones in memory.
type Hub struct {
	server   *sdk.Server
	capacity int
	upgrader websocket.Upgrader

	mu            sync.Mutex
	transcripts   []PublishedTranscript
	registrations map[string]Registration
}

// NewHub builds a hub keeping up to capacity transcripts.
func NewHub(name, version string, capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	h := &Hub{
		server:        sdk.NewServer(&sdk.Implementation{Name: name, Version: version}, nil),
		capacity:      capacity,
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		registrations: make(map[string]Registration),
	}
	sdk.AddTool(h.server, &sdk.Tool{Name: "publish_transcript", Description: "store a finished voice transcript"}, h.publishTool)
	sdk.AddTool(h.server, &sdk.Tool{Name: "recent_transcripts", Description: "list recently published transcripts"}, h.recentTool)
	return h
}

func (h *Hub) publishTool(ctx context.Context, _ *sdk.CallToolRequest, args publishArgs) (*sdk.CallToolResult, any, error) {
	if strings.TrimSpace(args.TranscriptID) == "" {
		return &sdk.CallToolResult{
			IsError: true,
			Content: []sdk.Content{&sdk.TextContent{Text: "transcript_id is required"}},
		}, nil, nil
	}
	h.Add(PublishedTranscript{ID: args.TranscriptID, Text: args.Text, Segments: args.Segments, ReceivedAt: time.Now()})
	logging.Infow("hub: transcript received", "transcript_id", args.TranscriptID, "chars", len(args.Text))
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: "ok"}}}, nil, nil
}

func (h *Hub) recentTool(ctx context.Context, _ *sdk.CallToolRequest, args recentArgs) (*sdk.CallToolResult, any, error) {
	b, err := json.Marshal(h.Recent(args.Limit))
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(b)}}}, nil, nil
}

// Add stores t, evicting the oldest entry when full.
func (h *Hub) Add(t PublishedTranscript) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcripts = append(h.transcripts, t)
	if over := len(h.transcripts) - h.capacity; over > 0 {
		h.transcripts = append([]PublishedTranscript(nil), h.transcripts[over:]...)
	}
}

// Recent returns up to limit transcripts, newest first. limit <= 0 means all.
func (h *Hub) Recent(limit int) []PublishedTranscript {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.transcripts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]PublishedTranscript, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.transcripts[i])
	}
	return out
}

func (h *Hub) Registrations() []Registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Registration, 0, len(h.registrations))
	for _, r := range h.registrations {
		out = append(out, r)
	}
	return out
}

// Routes mounts the hub's HTTP surface on e.
func (h *Hub) Routes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/mcp/register", h.handleRegister)
	e.GET("/mcp/registrations", func(c echo.Context) error { return c.JSON(http.StatusOK, h.Registrations()) })
	e.GET("/mcp/ws", h.handleWebSocket)
}

func (h *Hub) handleRegister(c echo.Context) error {
	var req Registration
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid json")
	}
	if req.Name == "" || req.URL == "" {
		return c.String(http.StatusBadRequest, "name and url required")
	}
	req.RegisteredAt = time.Now()
	h.mu.Lock()
	h.registrations[req.Name] = req
	h.mu.Unlock()
	logging.Infow("hub: service registered", "name", req.Name, "url", req.URL)
	return c.String(http.StatusOK, "ok")
}

func (h *Hub) handleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Warnw("hub: ws upgrade failed", "err", err)
		return nil
	}
	go func() {
		sess, err := h.server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
		if err != nil {
			logging.Warnw("hub: mcp connect failed", "err", err)
			_ = conn.Close()
			return
		}
		if err := sess.Wait(); err != nil {
			logging.Debugw("hub: mcp session ended", "err", err)
			return
		}
		logging.Debugw("hub: mcp session ended")
	}()
	return nil
}
