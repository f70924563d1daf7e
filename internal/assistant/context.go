package assistant

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	assistantKey contextKey = "assistant"
	userKey      contextKey = "user"
)

func WithAssistantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, assistantKey, id)
}

// IDFromContext returns uuid.Nil when the request is not scoped to an
// assistant.
func IDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(assistantKey).(uuid.UUID)
	return id
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey, id)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}
