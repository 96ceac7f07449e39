package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
)

// CreateEntities appends the entities whose names are not already taken.
// The first create of a name wins, globally across threads; later creates
// are dropped from the result. Each entity's own agentThreadId is trusted.
// Returns exactly the entities that were newly added.
func (m *Manager) CreateEntities(ctx context.Context, entities []models.Entity) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	existing := entityNames(graph)
	added := []models.Entity{}
	for _, e := range entities {
		if existing[e.Name] {
			continue
		}
		ts, err := normalizeTimestamp(e.Timestamp)
		if err != nil {
			m.log.Warn("dropping entity with invalid timestamp",
				zap.String("entity", e.Name), zap.Error(err))
			continue
		}
		e.Timestamp = ts
		if e.Observations == nil {
			e.Observations = []string{}
		}
		graph.Entities = append(graph.Entities, e)
		existing[e.Name] = true
		added = append(added, e)
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return added, nil
}

// CreateRelations appends relations whose endpoints exist and whose
// (from, to, relationType) triple is not already present. Relations with
// unknown endpoints are dropped with a warning, not an error.
func (m *Manager) CreateRelations(ctx context.Context, relations []models.Relation) ([]models.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	known := entityNames(graph)
	seen := make(map[string]bool, len(graph.Relations))
	for _, r := range graph.Relations {
		seen[relationKey(r.From, r.To, r.RelationType)] = true
	}

	added := []models.Relation{}
	for _, r := range relations {
		if !known[r.From] || !known[r.To] {
			m.log.Warn("dropping relation with unknown endpoint",
				zap.String("from", r.From), zap.String("to", r.To),
				zap.String("relationType", r.RelationType))
			continue
		}
		key := relationKey(r.From, r.To, r.RelationType)
		if seen[key] {
			continue
		}
		ts, err := normalizeTimestamp(r.Timestamp)
		if err != nil {
			m.log.Warn("dropping relation with invalid timestamp",
				zap.String("from", r.From), zap.String("to", r.To), zap.Error(err))
			continue
		}
		r.Timestamp = ts
		graph.Relations = append(graph.Relations, r)
		seen[key] = true
		added = append(added, r)
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return added, nil
}

// AddObservations appends observation strings to existing entities. The whole
// call fails if any referenced entity is missing. Contents already present
// verbatim are skipped. The request's timestamp/confidence/importance
// overwrite the entity's metadata; the entity keeps its own thread id.
func (m *Manager) AddObservations(ctx context.Context, requests []models.ObservationRequest) ([]models.AddedObservations, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, req := range requests {
		if findEntity(graph, req.EntityName) == nil {
			return nil, fmt.Errorf("entity %q not found", req.EntityName)
		}
	}

	results := []models.AddedObservations{}
	for _, req := range requests {
		ts, err := normalizeTimestamp(req.Timestamp)
		if err != nil {
			return nil, err
		}
		entity := findEntity(graph, req.EntityName)
		added := []string{}
		for _, content := range req.Contents {
			if containsString(entity.Observations, content) {
				continue
			}
			entity.Observations = append(entity.Observations, content)
			added = append(added, content)
		}
		entity.Timestamp = ts
		entity.Confidence = req.Confidence
		entity.Importance = req.Importance
		results = append(results, models.AddedObservations{EntityName: req.EntityName, Added: added})
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return results, nil
}

// AddObservationsV2 appends versioned observations. On first use for an
// entity that only has legacy strings, every legacy string is migrated into
// a synthesized version-1 Observation carrying the entity's own metadata.
// New contents become fresh version-1 Observations and are mirrored into the
// legacy string list for backward compatibility.
func (m *Manager) AddObservationsV2(ctx context.Context, requests []models.ObservationRequest) ([]models.AddedVersioned, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, req := range requests {
		if findEntity(graph, req.EntityName) == nil {
			return nil, fmt.Errorf("entity %q not found", req.EntityName)
		}
	}

	results := []models.AddedVersioned{}
	for _, req := range requests {
		ts, err := normalizeTimestamp(req.Timestamp)
		if err != nil {
			return nil, err
		}
		entity := findEntity(graph, req.EntityName)

		// Lazy migration from the legacy string list.
		if entity.ObservationsV2 == nil && len(entity.Observations) > 0 {
			for _, content := range entity.Observations {
				entity.ObservationsV2 = append(entity.ObservationsV2, models.Observation{
					ID:            uuid.New().String(),
					Content:       content,
					Timestamp:     entity.Timestamp,
					Version:       1,
					AgentThreadID: entity.AgentThreadID,
					Confidence:    entity.Confidence,
					Importance:    entity.Importance,
				})
			}
		}

		present := make(map[string]bool, len(entity.ObservationsV2))
		for _, obs := range entity.ObservationsV2 {
			present[obs.Content] = true
		}

		added := []models.Observation{}
		for _, content := range req.Contents {
			if present[content] {
				continue
			}
			obs := models.Observation{
				ID:            uuid.New().String(),
				Content:       content,
				Timestamp:     ts,
				Version:       1,
				AgentThreadID: req.AgentThreadID,
				Confidence:    req.Confidence,
				Importance:    req.Importance,
			}
			entity.ObservationsV2 = append(entity.ObservationsV2, obs)
			present[content] = true
			if !containsString(entity.Observations, content) {
				entity.Observations = append(entity.Observations, content)
			}
			added = append(added, obs)
		}

		entity.Timestamp = ts
		entity.Confidence = req.Confidence
		entity.Importance = req.Importance
		results = append(results, models.AddedVersioned{EntityName: req.EntityName, Added: added})
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteEntities removes the named entities and cascades to every relation
// referencing any of them. Deletion is global across threads. Returns the
// number of entities removed.
func (m *Manager) DeleteEntities(ctx context.Context, names []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	doomed := make(map[string]bool, len(names))
	for _, name := range names {
		doomed[name] = true
	}

	kept := graph.Entities[:0]
	removed := 0
	for _, e := range graph.Entities {
		if doomed[e.Name] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	graph.Entities = kept

	keptRels := graph.Relations[:0]
	for _, r := range graph.Relations {
		if doomed[r.From] || doomed[r.To] {
			continue
		}
		keptRels = append(keptRels, r)
	}
	graph.Relations = keptRels

	if err := m.store.Save(ctx, graph); err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteObservations removes the listed observation strings from each
// entity's legacy list. Versioned observations are not touched by this path.
// Returns the number of strings removed.
func (m *Manager) DeleteObservations(ctx context.Context, deletions []models.ObservationDeletion) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range deletions {
		entity := findEntity(graph, d.EntityName)
		if entity == nil {
			continue
		}
		drop := make(map[string]bool, len(d.Observations))
		for _, obs := range d.Observations {
			drop[obs] = true
		}
		kept := entity.Observations[:0]
		for _, obs := range entity.Observations {
			if drop[obs] {
				removed++
				continue
			}
			kept = append(kept, obs)
		}
		entity.Observations = kept
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteRelations removes every relation matching any of the given
// (from, to, relationType) triples, globally across threads. Returns the
// number of relations removed.
func (m *Manager) DeleteRelations(ctx context.Context, relations []models.RelationKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	doomed := make(map[string]bool, len(relations))
	for _, r := range relations {
		doomed[relationKey(r.From, r.To, r.RelationType)] = true
	}

	kept := graph.Relations[:0]
	removed := 0
	for _, r := range graph.Relations {
		if doomed[relationKey(r.From, r.To, r.RelationType)] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	graph.Relations = kept

	if err := m.store.Save(ctx, graph); err != nil {
		return 0, err
	}
	return removed, nil
}

// BulkUpdate applies partial updates to named entities in one load/save.
// Unknown names are reported separately from the updated count. Every
// updated entity gets its timestamp stamped to now.
func (m *Manager) BulkUpdate(ctx context.Context, updates []models.EntityUpdate) (*models.BulkUpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.BulkUpdateResult{NotFound: []string{}}
	now := nowTimestamp()
	for _, update := range updates {
		entity := findEntity(graph, update.Name)
		if entity == nil {
			result.NotFound = append(result.NotFound, update.Name)
			continue
		}
		if update.Confidence != nil {
			entity.Confidence = *update.Confidence
		}
		if update.Importance != nil {
			entity.Importance = *update.Importance
		}
		for _, content := range update.Observations {
			if !containsString(entity.Observations, content) {
				entity.Observations = append(entity.Observations, content)
			}
		}
		entity.Timestamp = now
		result.Updated++
	}

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	return result, nil
}

// FlagForReview marks an entity as needing human review, recording the
// reason and optional reviewer, and refreshes its timestamp. Fails if the
// entity does not exist.
func (m *Manager) FlagForReview(ctx context.Context, name, reason, reviewer string) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	entity := findEntity(graph, name)
	if entity == nil {
		return nil, fmt.Errorf("entity %q not found", name)
	}

	entity.Flagged = true
	entity.FlagReason = reason
	entity.FlaggedBy = reviewer
	entity.Timestamp = nowTimestamp()

	if err := m.store.Save(ctx, graph); err != nil {
		return nil, err
	}
	flagged := *entity
	return &flagged, nil
}

// GetFlagged returns every entity currently flagged for review.
func (m *Manager) GetFlagged(ctx context.Context) ([]models.Entity, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	flagged := []models.Entity{}
	for _, e := range graph.Entities {
		if e.Flagged {
			flagged = append(flagged, e)
		}
	}
	return flagged, nil
}
