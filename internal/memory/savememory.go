package memory

import (
	"context"
	"fmt"

	"github.com/atelier-ai/threadmem/internal/models"
)

// SaveMemory is the atomic validated save: it validates every entity's
// observations and every relation, and either applies the whole batch or
// nothing. Validation failures come back as a structured result with
// Success=false, never as an error. Naming-convention issues are returned as
// warnings without blocking the save.
//
// Every entity in the batch must participate in at least one relation of the
// batch, and relation endpoints must name an entity in the batch or one that
// already exists in the store.
func (m *Manager) SaveMemory(ctx context.Context, entities []models.Entity, relations []models.Relation) (*models.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.SaveResult{}

	batchNames := make(map[string]bool, len(entities))
	for _, e := range entities {
		batchNames[e.Name] = true
	}
	related := make(map[string]bool)
	for _, r := range relations {
		related[r.From] = true
		related[r.To] = true
	}
	known := entityNames(graph)

	// All validation happens before anything is applied, timestamps included,
	// so an error result never carries partially created records.
	for i, e := range entities {
		for j, obs := range e.Observations {
			if err := ValidateObservation(obs); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("entity %q observation %d: %v", e.Name, j+1, err))
			}
		}
		if !related[e.Name] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("entity %q has no relation in the batch", e.Name))
		}
		ts, err := normalizeTimestamp(e.Timestamp)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entity %q: %v", e.Name, err))
		} else {
			entities[i].Timestamp = ts
		}
		result.Warnings = append(result.Warnings, ValidateEntityType(e.EntityType)...)
	}

	for i, r := range relations {
		if !batchNames[r.From] && !known[r.From] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("relation source %q is not in the batch or the store", r.From))
		}
		if !batchNames[r.To] && !known[r.To] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("relation target %q is not in the batch or the store", r.To))
		}
		ts, err := normalizeTimestamp(r.Timestamp)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("relation %s->%s: %v", r.From, r.To, err))
		} else {
			relations[i].Timestamp = ts
		}
	}

	if len(result.Errors) > 0 {
		return result, nil
	}

	// Apply with the usual create semantics: existing names and duplicate
	// triples are silently dropped from the created lists.
	result.CreatedEntities = []models.Entity{}
	for _, e := range entities {
		if known[e.Name] {
			continue
		}
		if e.Observations == nil {
			e.Observations = []string{}
		}
		graph.Entities = append(graph.Entities, e)
		known[e.Name] = true
		result.CreatedEntities = append(result.CreatedEntities, e)
	}

	seen := make(map[string]bool, len(graph.Relations))
	for _, r := range graph.Relations {
		seen[relationKey(r.From, r.To, r.RelationType)] = true
	}
	result.CreatedRelations = []models.Relation{}
	for _, r := range relations {
		key := relationKey(r.From, r.To, r.RelationType)
		if seen[key] {
			continue
		}
		graph.Relations = append(graph.Relations, r)
		seen[key] = true
		result.CreatedRelations = append(result.CreatedRelations, r)
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	result.Success = true
	return result, nil
}
