// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// ConversationKey identifies a logical multi-turn conversation. Keys derived
// from a caller header carry the "hdr" prefix, fingerprinted keys carry "hash".
type ConversationKey string

type MessageID string

const (
	KeyPrefixHeader = "hdr"
	KeyPrefixHash   = "hash"
)

// NewMessageID returns an id shaped like the upstream API's: "msg_" followed
// by 24 hex characters.
func NewMessageID() MessageID {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return MessageID("msg_" + hex[:24])
}

func NewConversationKey(prefix, value string) ConversationKey {
	return ConversationKey(prefix + ":" + value)
}
