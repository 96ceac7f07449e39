package memory

import (
	"context"
	"sort"

	"github.com/atelier-ai/threadmem/internal/models"
)

// PruneMemory removes entities by age and importance while guaranteeing a
// minimum retained count via backfill, then drops every relation that lost
// an endpoint. When opts.ThreadID is set only that thread's entities are
// candidates; all others survive untouched.
//
// Backfill order is importance descending, ties broken by timestamp
// descending, and never exceeds the pre-filter candidate count.
func (m *Manager) PruneMemory(ctx context.Context, opts models.PruneOptions) (*models.PruneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	originalEntities := len(graph.Entities)
	originalRelations := len(graph.Relations)

	var candidates, exempt []models.Entity
	for _, e := range graph.Entities {
		if opts.ThreadID != "" && e.AgentThreadID != opts.ThreadID {
			exempt = append(exempt, e)
			continue
		}
		candidates = append(candidates, e)
	}

	var surviving, removed []models.Entity
	for _, e := range candidates {
		switch {
		case opts.OlderThan != "" && e.Timestamp < opts.OlderThan:
			removed = append(removed, e)
		case opts.ImportanceLessThan != nil && e.Importance < *opts.ImportanceLessThan:
			removed = append(removed, e)
		default:
			surviving = append(surviving, e)
		}
	}

	if len(surviving) < opts.KeepMinEntities {
		sort.SliceStable(removed, func(i, j int) bool {
			if removed[i].Importance != removed[j].Importance {
				return removed[i].Importance > removed[j].Importance
			}
			return removed[i].Timestamp > removed[j].Timestamp
		})
		for _, e := range removed {
			if len(surviving) >= opts.KeepMinEntities {
				break
			}
			surviving = append(surviving, e)
		}
	}

	graph.Entities = append(exempt, surviving...)

	names := entityNames(graph)
	keptRels := graph.Relations[:0]
	for _, r := range graph.Relations {
		if names[r.From] && names[r.To] {
			keptRels = append(keptRels, r)
		}
	}
	graph.Relations = keptRels

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return &models.PruneResult{
		RemovedEntities:  originalEntities - len(graph.Entities),
		RemovedRelations: originalRelations - len(graph.Relations),
	}, nil
}
