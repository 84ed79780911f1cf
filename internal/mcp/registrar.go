package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// Register posts a service record to the hub's register endpoint. An empty
// hubURL is a no-op.
func Register(ctx context.Context, hubURL, name, serviceURL string) error {
	if hubURL == "" {
		return nil
	}
	b, err := json.Marshal(map[string]string{"name": name, "url": serviceURL})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	endpoint := strings.TrimRight(hubURL, "/") + "/mcp/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcp register failed: %s", resp.Status)
	}
	logging.Infow("mcp: registered", "name", name, "hub", hubURL)
	return nil
}
