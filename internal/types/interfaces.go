// internal/types/interfaces.go
package types

import "context"

// SessionRegistry maps a conversation to the last resumable CLI session.
// Persistence failures are handled inside implementations, so none of the
// methods return errors.
type SessionRegistry interface {
	Get(ctx context.Context, key ConversationKey) (string, bool)
	Set(ctx context.Context, key ConversationKey, sessionID string)
	Remove(ctx context.Context, key ConversationKey)
}
