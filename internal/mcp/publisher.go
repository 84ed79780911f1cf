package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/discord-voice-lab/voiceturn/internal/config"
	"github.com/discord-voice-lab/voiceturn/internal/logging"
	"github.com/discord-voice-lab/voiceturn/internal/voice"
)

// toolCaller is the part of ClientWrapper a publisher needs.
type toolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// TranscriptPublisher forwards transcripts to one MCP server as tool calls.
type TranscriptPublisher struct {
	server string
	tool   string
	client toolCaller
}

func NewTranscriptPublisher(server, tool string, client *ClientWrapper) *TranscriptPublisher {
	return &TranscriptPublisher{server: server, tool: tool, client: client}
}

// PublishTranscript implements voice.TranscriptSink.
func (p *TranscriptPublisher) PublishTranscript(ctx context.Context, t voice.Transcript) error {
	segments := make([]map[string]any, 0, len(t.Segments))
	for _, s := range t.Segments {
		segments = append(segments, map[string]any{
			"timestamp":  s.Timestamp,
			"speaker_id": s.SpeakerID,
			"speaker":    s.Speaker,
			"text":       s.Text,
		})
	}
	_, err := p.client.CallTool(ctx, p.tool, map[string]any{
		"transcript_id": t.ID,
		"text":          t.Text(),
		"segments":      segments,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.server, err)
	}
	logging.DebugwCtx(ctx, "mcp: transcript published", "server", p.server, "tool", p.tool)
	return nil
}

func (p *TranscriptPublisher) Close() error { return p.client.Close() }

// ConnectServers connects to every enabled server and returns one publisher
// each. Servers that fail to connect are logged and skipped.
func ConnectServers(ctx context.Context, servers []config.MCPServer, tool, name, version string) []*TranscriptPublisher {
	var out []*TranscriptPublisher
	for _, srv := range servers {
		if !srv.EnabledValue() {
			logging.Infow("mcp: server disabled", "server", srv.Name)
			continue
		}
		client := NewClientWrapper(name, version)
		var err error
		switch {
		case srv.URL != "":
			err = client.ConnectWebSocket(ctx, srv.URL)
		case srv.Command != "":
			err = client.ConnectCommand(ctx, srv.Name, srv.Command, srv.Args, srv.Env)
		default:
			err = errors.New("no url or command")
		}
		if err != nil {
			logging.Warnw("mcp: server unavailable", "server", srv.Name, "err", err)
			_ = client.Close()
			continue
		}
		out = append(out, NewTranscriptPublisher(srv.Name, tool, client))
	}
	return out
}
