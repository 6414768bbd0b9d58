package middleware

import "context"

// Context keys for identity resolved during ticket consumption and carried
// through the HTTP ticket-issuance path and the hub's per-connection context.
type contextKey string

const (
	// UserIDKey is the context key for the authenticated user's id.
	UserIDKey contextKey = "user_id"
	// BoardIDKey is the context key for the board a request/connection is scoped to.
	BoardIDKey contextKey = "board_id"
)

// WithUserID returns a new context with the user id set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithBoardID returns a new context with the board id set.
func WithBoardID(ctx context.Context, boardID string) context.Context {
	return context.WithValue(ctx, BoardIDKey, boardID)
}

// GetUserID extracts the user id from the context.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserIDKey).(string)
	return v, ok
}

// GetBoardID extracts the board id from the context.
func GetBoardID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(BoardIDKey).(string)
	return v, ok
}
