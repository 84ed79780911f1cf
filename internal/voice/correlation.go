package voice

import (
	"context"

	"github.com/google/uuid"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

type correlationKey struct{}

// WithCorrelationID tags ctx with a turn correlation id. The id is also
// attached as a log field for the *Ctx logging helpers.
func WithCorrelationID(ctx context.Context, cid string) context.Context {
	if cid == "" {
		cid = uuid.NewString()
	}
	ctx = context.WithValue(ctx, correlationKey{}, cid)
	return logging.WithFields(ctx, "correlation_id", cid)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}
