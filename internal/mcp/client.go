package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// keepaliveInterval is how often an idle session is pinged.
var keepaliveInterval = 30 * time.Second

// ClientWrapper owns one MCP client session over a websocket or a spawned
// command.
type ClientWrapper struct {
	name   string
	client *sdk.Client

	mu              sync.Mutex
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
	closers         []func() error
}

func NewClientWrapper(name, version string) *ClientWrapper {
	return &ClientWrapper{
		name:   name,
		client: sdk.NewClient(&sdk.Implementation{Name: name, Version: version}, nil),
	}
}

// ConnectWebSocket dials rawurl; http(s) schemes are mapped to ws(s).
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("mcp: dial %s: %w", u.Redacted(), err)
	}
	if err := w.connect(ctx, NewWebSocketTransport(conn)); err != nil {
		_ = conn.Close()
		return err
	}
	logging.Infow("mcp: connected", "server", u.Redacted())
	return nil
}

// ConnectCommand spawns a local MCP server and connects over its stdio.
func (w *ClientWrapper) ConnectCommand(ctx context.Context, serverName, command string, args []string, env map[string]string) error {
	if command == "" {
		return errors.New("mcp: command is required")
	}
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = stdout.Close()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdin.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdin.Close()
		_ = stderr.Close()
		return err
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logging.Debugw("mcp: server stderr", "server", serverName, "line", scanner.Text())
		}
	}()
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	if err := w.connect(ctx, newCommandTransport(stdout, stdin)); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = cmd.Process.Kill()
		<-waitCh
		return err
	}
	logging.Infow("mcp: command server started", "server", serverName, "command", command+" "+strings.Join(args, " "))

	w.appendCloser(func() error {
		_ = stdin.Close()
		_ = stdout.Close()
		var err error
		select {
		case err = <-waitCh:
		case <-time.After(2 * time.Second):
			_ = cmd.Process.Kill()
			err = <-waitCh
		}
		if err != nil {
			logging.Debugw("mcp: command server exited", "server", serverName, "err", err)
		}
		return nil
	})
	return nil
}

func (w *ClientWrapper) appendCloser(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closers = append(w.closers, fn)
}

func (w *ClientWrapper) connect(ctx context.Context, transport sdk.Transport) error {
	sess, err := w.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: connect: %w", err)
	}
	kaCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
	}
	w.session = sess
	w.keepaliveCancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				pctx, pcancel := context.WithTimeout(kaCtx, 5*time.Second)
				if err := sess.Ping(pctx, nil); err != nil {
					logging.Debugw("mcp: keepalive ping failed", "client", w.name, "err", err)
				}
				pcancel()
			}
		}
	}()
	return nil
}

// CallTool invokes a tool and returns its text content joined by newlines.
// A tool-level error result is returned as an error.
func (w *ClientWrapper) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()
	if sess == nil {
		return "", errors.New("mcp: not connected")
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp: call %s: %w", name, err)
	}
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("mcp: tool %s failed: %s", name, text)
	}
	return text, nil
}

// Close ends the session and stops any spawned server.
func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		if err := w.session.Close(); err != nil {
			errs = append(errs, err)
		}
		w.session = nil
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
