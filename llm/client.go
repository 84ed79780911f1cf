package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	HTTP          *http.Client
}

// Message is one chat message. Role is system, user or assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	Model   string `json:"model,omitempty"`
	Content string `json:"content,omitempty"`
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

const (
	defaultMaxTokens = 512
	maxTokensCeiling = 4000
)

// NewClientFromEnv reads OPENAI_BASE_URL, OPENAI_API_KEY, OPENAI_MODEL,
// OPENAI_FALLBACK_MODEL, GPT5_ENABLED and LLM_MAX_TOKENS.
func NewClientFromEnv() *Client {
	base := os.Getenv("OPENAI_BASE_URL")
	if base == "" {
		base = "http://127.0.0.1:8000/v1"
	}
	model := os.Getenv("OPENAI_MODEL")
	fallback := os.Getenv("OPENAI_FALLBACK_MODEL")
	if strings.EqualFold(os.Getenv("GPT5_ENABLED"), "false") && fallback != "" {
		model = fallback
	}
	maxTokens := 0
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_TOKENS")); err == nil {
		maxTokens = v
	}
	return &Client{
		BaseURL:       strings.TrimRight(base, "/"),
		APIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:         model,
		FallbackModel: fallback,
		MaxTokens:     maxTokens,
		HTTP:          &http.Client{Timeout: 20 * time.Second},
	}
}

// CreateChatCompletion sends req. Transient failures (network, 429, 5xx)
// are retried once on the fallback model when one is configured.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = "local"
	}
	req.MaxTokens = c.clampTokens(req.MaxTokens)

	resp, err := c.do(ctx, model, req)
	if err == nil || !errors.Is(err, ErrTransient) {
		return resp, err
	}
	fallback := c.FallbackModel
	if fallback == "" || fallback == model {
		return ChatResponse{}, err
	}
	logging.Warnw("llm: primary model failed, trying fallback", "model", model, "fallback", fallback, "err", err)
	select {
	case <-ctx.Done():
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	case <-time.After(250 * time.Millisecond):
	}
	return c.do(ctx, fallback, req)
}

func (c *Client) clampTokens(n int) int {
	if n <= 0 {
		n = defaultMaxTokens
	}
	ceiling := maxTokensCeiling
	if c.MaxTokens > 0 {
		ceiling = c.MaxTokens
	}
	if n > ceiling {
		n = ceiling
	}
	return n
}

func (c *Client) do(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	req.Model = model
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			Choices []struct {
				Message Message `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return ChatResponse{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		if len(out.Choices) == 0 {
			return ChatResponse{}, fmt.Errorf("%w: no choices in response", ErrTransient)
		}
		return ChatResponse{Model: model, Content: out.Choices[0].Message.Content}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ChatResponse{}, fmt.Errorf("%w: model %s status %d", ErrTransient, model, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ChatResponse{}, fmt.Errorf("%w: model %s status %d: %s", ErrPermanent, model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

// Chat implements Backend.
func (c *Client) Chat(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
