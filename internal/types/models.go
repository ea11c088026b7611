// internal/types/models.go
package types

import "time"

// SessionEntry is one row of the session registry as seen by callers.
type SessionEntry struct {
	Key       ConversationKey `json:"key"`
	SessionID string          `json:"session_id"`
	UpdatedAt time.Time       `json:"updated_at"`
}
