package common

import "context"

type ctxKey string

const userIDKey ctxKey = "auth/user-id"

// SystemActor is recorded as creator/updater when no authenticated user is present.
const SystemActor = "system"

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Actor returns the user identifier or SystemActor.
func Actor(ctx context.Context) string {
	if id, ok := UserID(ctx); ok {
		return id
	}
	return SystemActor
}
