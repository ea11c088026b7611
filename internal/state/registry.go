// internal/state/registry.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/user/claudebridge/internal/types"
)

// entry is the persisted form: {"sessionId": "...", "updatedAt": <epoch ms>}.
type entry struct {
	SessionID string `json:"sessionId"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Registry maps conversation keys to resumable CLI session ids.
//
// Every operation reloads the whole table from the backend before acting, so
// separate processes sharing one file see each other's writes. Two writers
// touching different keys can still clobber each other between load and
// save; there is no cross-key transaction.
//
// Save failures are logged and swallowed. Until a save succeeds again the
// in-memory table is authoritative and reloads are skipped.
type Registry struct {
	backend Backend
	maxAge  time.Duration
	now     func() time.Time

	mu         sync.Mutex
	table      map[types.ConversationKey]entry
	saveFailed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for ages.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a Registry over backend. Entries older than maxAge are
// treated as absent.
func NewRegistry(backend Backend, maxAge time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend: backend,
		maxAge:  maxAge,
		now:     time.Now,
		table:   make(map[types.ConversationKey]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFileRegistry is NewRegistry over a FileBackend at path.
func NewFileRegistry(path string, maxAge time.Duration, opts ...RegistryOption) *Registry {
	return NewRegistry(NewFileBackend(path), maxAge, opts...)
}

// Open loads the table and drops expired entries. Call once at startup.
func (r *Registry) Open(_ context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	slog.Info("session registry opened", "entries", len(r.table), "max_age", r.maxAge)
}

// Flush writes the current table. Call on shutdown.
func (r *Registry) Flush(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.marshal()
	if err != nil {
		return err
	}
	if err := r.backend.Save(data); err != nil {
		return err
	}
	r.saveFailed = false
	return nil
}

// Get returns the session id stored for key. Entries past max-age are evicted
// on read.
func (r *Registry) Get(_ context.Context, key types.ConversationKey) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load()
	e, ok := r.table[key]
	if !ok {
		return "", false
	}
	if r.expired(e) {
		delete(r.table, key)
		r.save()
		return "", false
	}
	return e.SessionID, true
}

// Set stores sessionID for key, stamped with the current time.
func (r *Registry) Set(_ context.Context, key types.ConversationKey, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load()
	r.table[key] = entry{SessionID: sessionID, UpdatedAt: r.now().UnixMilli()}
	r.save()
}

// Remove deletes the entry for key.
func (r *Registry) Remove(_ context.Context, key types.ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load()
	delete(r.table, key)
	r.save()
}

// Prune reloads the table, dropping expired entries, and returns how many
// were dropped.
func (r *Registry) Prune(_ context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Entries returns the live entries, most recently updated first.
func (r *Registry) Entries(_ context.Context) []types.SessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load()
	out := make([]types.SessionEntry, 0, len(r.table))
	for key, e := range r.table {
		out = append(out, types.SessionEntry{
			Key:       key,
			SessionID: e.SessionID,
			UpdatedAt: time.UnixMilli(e.UpdatedAt),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// load refreshes the table from the backend and prunes it, re-persisting when
// anything was dropped. A missing or corrupt blob loads as an empty table.
// Caller must hold r.mu.
func (r *Registry) load() int {
	if !r.saveFailed {
		r.table = r.read()
	}
	purged := 0
	for key, e := range r.table {
		if r.expired(e) {
			delete(r.table, key)
			purged++
		}
	}
	if purged > 0 {
		slog.Debug("pruned expired sessions", "count", purged)
		r.save()
	}
	return purged
}

func (r *Registry) read() map[types.ConversationKey]entry {
	table := make(map[types.ConversationKey]entry)
	data, err := r.backend.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read session registry", "error", err)
		}
		return table
	}
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Warn("session registry is corrupt, starting empty", "error", err)
		return make(map[types.ConversationKey]entry)
	}
	if table == nil {
		table = make(map[types.ConversationKey]entry)
	}
	return table
}

// save persists the table. Caller must hold r.mu.
func (r *Registry) save() {
	data, err := r.marshal()
	if err == nil {
		err = r.backend.Save(data)
	}
	if err != nil {
		slog.Error("failed to save session registry", "error", err)
		r.saveFailed = true
		return
	}
	r.saveFailed = false
}

func (r *Registry) marshal() ([]byte, error) {
	return json.MarshalIndent(r.table, "", "  ")
}

func (r *Registry) expired(e entry) bool {
	return r.now().UnixMilli()-e.UpdatedAt > r.maxAge.Milliseconds()
}
