// Package memory implements the storage-and-query engine for the knowledge
// graph: load/merge/save discipline over a storage adapter plus the graph
// algorithms operating on the in-memory snapshot.
package memory

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
	"github.com/atelier-ai/threadmem/internal/storage"
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// timestampLayout is the canonical zero-padded ISO-8601 form all persisted
// timestamps are normalized to. Lexicographic ordering of this form matches
// chronological ordering.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Manager is the engine's explicit store object. Every public operation is
// load -> compute -> (optionally) save, synchronous, with no caches.
//
// Mutating operations hold mu across their whole load/mutate/save span,
// serializing all writers through this Manager so that two concurrent
// mutations cannot silently lose one another's changes. Reads load their own
// snapshot and never take the lock.
type Manager struct {
	mu    sync.Mutex
	store storage.Store
	log   *zap.Logger
}

// NewManager creates an engine over the given storage adapter.
func NewManager(store storage.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log}
}

// nowTimestamp returns the current time in canonical form.
func nowTimestamp() string {
	return timeNow().UTC().Format(timestampLayout)
}

// normalizeTimestamp enforces the canonical timestamp form at the boundary.
// An empty input becomes "now"; anything else must parse as RFC-3339.
func normalizeTimestamp(ts string) (string, error) {
	if ts == "" {
		return nowTimestamp(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", fmt.Errorf("timestamp %q is not valid ISO-8601: %w", ts, err)
	}
	return t.UTC().Format(timestampLayout), nil
}

// entityNames returns the set of entity names present in the graph.
func entityNames(g *models.KnowledgeGraph) map[string]bool {
	names := make(map[string]bool, len(g.Entities))
	for _, e := range g.Entities {
		names[e.Name] = true
	}
	return names
}

// findEntity returns a pointer into the graph's entity slice, or nil.
func findEntity(g *models.KnowledgeGraph, name string) *models.Entity {
	for i := range g.Entities {
		if g.Entities[i].Name == name {
			return &g.Entities[i]
		}
	}
	return nil
}

// relationKey builds the identity triple used for relation uniqueness.
func relationKey(from, to, relationType string) string {
	return from + "\x00" + to + "\x00" + relationType
}

// containsString reports whether list holds s verbatim.
func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
