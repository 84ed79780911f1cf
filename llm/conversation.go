package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// Backend answers a chat history with the next assistant message.
type Backend interface {
	Chat(ctx context.Context, msgs []Message) (string, error)
}

// Conversation keeps a system prompt and a bounded history of exchanges
// and turns each prompt into one Backend call. It satisfies the voice
// pipeline's Generator.
type Conversation struct {
	backend  Backend
	system   string
	maxTurns int

	mu      sync.Mutex
	history []Message
}

// NewConversation keeps at most maxTurns user/assistant exchanges; 0 keeps
// none.
func NewConversation(b Backend, systemPrompt string, maxTurns int) *Conversation {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &Conversation{backend: b, system: strings.TrimSpace(systemPrompt), maxTurns: maxTurns}
}

// Generate sends prompt with the retained history. The exchange is kept
// only when the backend answers.
func (c *Conversation) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	msgs := make([]Message, 0, len(c.history)+2)
	if c.system != "" {
		msgs = append(msgs, Message{Role: "system", Content: c.system})
	}
	msgs = append(msgs, c.history...)
	c.mu.Unlock()
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	reply, err := c.backend.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	c.remember(prompt, reply)
	logging.Debugw("llm: reply generated", "prompt_chars", len(prompt), "reply_chars", len(reply))
	return reply, nil
}

func (c *Conversation) remember(prompt, reply string) {
	if c.maxTurns == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Message{Role: "user", Content: prompt}, Message{Role: "assistant", Content: reply})
	if over := len(c.history) - 2*c.maxTurns; over > 0 {
		c.history = append([]Message(nil), c.history[over:]...)
	}
}

// History returns a copy of the retained messages.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

// Reset forgets the history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
