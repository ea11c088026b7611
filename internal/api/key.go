package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/user/claudebridge/internal/protocol"
	"github.com/user/claudebridge/internal/types"
)

// conversationHeaders are checked in order for a caller-supplied id.
var conversationHeaders = []string{
	"X-Conversation-Id",
	"X-Openclaw-Conversation-Id",
	"X-Session-Id",
}

// hashPrefixChars is how much of the first message feeds the derived key.
const hashPrefixChars = 500

// ConversationKey identifies the conversation a request belongs to. A
// caller header wins; otherwise the key hashes the system text and the start
// of the first message, which stay fixed as a conversation grows.
func ConversationKey(h http.Header, system string, messages []protocol.InputMessage) types.ConversationKey {
	for _, name := range conversationHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return types.NewConversationKey(types.KeyPrefixHeader, v)
		}
	}

	var first string
	if len(messages) > 0 && len(messages[0].Content) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, messages[0].Content); err == nil {
			first = buf.String()
		} else {
			first = string(messages[0].Content)
		}
		if r := []rune(first); len(r) > hashPrefixChars {
			first = string(r[:hashPrefixChars])
		}
	}
	sum := sha256.Sum256([]byte(system + first))
	return types.NewConversationKey(types.KeyPrefixHash, hex.EncodeToString(sum[:])[:16])
}
