// Package state provides the session registry and its storage backends.
package state

import "github.com/user/claudebridge/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionRegistry = (*Registry)(nil)
var _ Backend = (*FileBackend)(nil)
var _ Backend = (*MemoryBackend)(nil)
