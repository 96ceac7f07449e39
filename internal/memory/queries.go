package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/atelier-ai/threadmem/internal/models"
)

// filterThread returns the sub-graph authored by threadID, or the whole
// graph when threadID is empty. Thread isolation is a query-time filter:
// the entity namespace itself is shared.
func filterThread(g *models.KnowledgeGraph, threadID string) *models.KnowledgeGraph {
	if threadID == "" {
		return g
	}
	out := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	for _, e := range g.Entities {
		if e.AgentThreadID == threadID {
			out.Entities = append(out.Entities, e)
		}
	}
	for _, r := range g.Relations {
		if r.AgentThreadID == threadID {
			out.Relations = append(out.Relations, r)
		}
	}
	return out
}

// induceRelations keeps the relations whose both endpoints are in the
// matched entity set.
func induceRelations(relations []models.Relation, matched map[string]bool) []models.Relation {
	out := []models.Relation{}
	for _, r := range relations {
		if matched[r.From] && matched[r.To] {
			out = append(out, r)
		}
	}
	return out
}

// ReadGraph returns the graph, optionally filtered to one thread.
func (m *Manager) ReadGraph(ctx context.Context, threadID string) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filterThread(graph, threadID), nil
}

// SearchNodes does a case-insensitive substring match against entity names,
// types and observation contents. Relations are included only when both
// endpoints matched.
func (m *Manager) SearchNodes(ctx context.Context, query, threadID string) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	scoped := filterThread(graph, threadID)

	needle := strings.ToLower(query)
	matched := make(map[string]bool)
	result := &models.KnowledgeGraph{Entities: []models.Entity{}}
	for _, e := range scoped.Entities {
		if entityMatches(&e, needle) {
			matched[e.Name] = true
			result.Entities = append(result.Entities, e)
		}
	}
	result.Relations = induceRelations(scoped.Relations, matched)
	return result, nil
}

func entityMatches(e *models.Entity, needle string) bool {
	if strings.Contains(strings.ToLower(e.Name), needle) ||
		strings.Contains(strings.ToLower(e.EntityType), needle) {
		return true
	}
	for _, obs := range e.Observations {
		if strings.Contains(strings.ToLower(obs), needle) {
			return true
		}
	}
	for _, obs := range e.ObservationsV2 {
		if strings.Contains(strings.ToLower(obs.Content), needle) {
			return true
		}
	}
	return false
}

// OpenNodes retrieves entities by exact name, with relations induced the
// same way as search.
func (m *Manager) OpenNodes(ctx context.Context, names []string, threadID string) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	scoped := filterThread(graph, threadID)

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	matched := make(map[string]bool)
	result := &models.KnowledgeGraph{Entities: []models.Entity{}}
	for _, e := range scoped.Entities {
		if wanted[e.Name] {
			matched[e.Name] = true
			result.Entities = append(result.Entities, e)
		}
	}
	result.Relations = induceRelations(scoped.Relations, matched)
	return result, nil
}

// QueryNodes applies a conjunctive range filter over timestamp, confidence
// and importance. Surviving relations must connect two surviving entities
// and independently satisfy the same ranges.
func (m *Manager) QueryNodes(ctx context.Context, filters models.QueryFilters) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	inRange := func(timestamp string, confidence, importance float64) bool {
		if filters.TimestampAfter != "" && timestamp < filters.TimestampAfter {
			return false
		}
		if filters.TimestampBefore != "" && timestamp > filters.TimestampBefore {
			return false
		}
		if filters.MinConfidence != nil && confidence < *filters.MinConfidence {
			return false
		}
		if filters.MaxConfidence != nil && confidence > *filters.MaxConfidence {
			return false
		}
		if filters.MinImportance != nil && importance < *filters.MinImportance {
			return false
		}
		if filters.MaxImportance != nil && importance > *filters.MaxImportance {
			return false
		}
		return true
	}

	result := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	matched := make(map[string]bool)
	for _, e := range graph.Entities {
		if inRange(e.Timestamp, e.Confidence, e.Importance) {
			matched[e.Name] = true
			result.Entities = append(result.Entities, e)
		}
	}
	for _, r := range graph.Relations {
		if matched[r.From] && matched[r.To] && inRange(r.Timestamp, r.Confidence, r.Importance) {
			result.Relations = append(result.Relations, r)
		}
	}
	return result, nil
}

// GetMemoryStats computes aggregate statistics over the whole store,
// including a day-bucketed count of entities touched in the trailing 7 days.
func (m *Manager) GetMemoryStats(ctx context.Context) (*models.MemoryStats, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.MemoryStats{
		EntityCount:   len(graph.Entities),
		RelationCount: len(graph.Relations),
		EntityTypes:   make(map[string]int),
	}

	threads := make(map[string]bool)
	var confidenceSum, importanceSum float64
	cutoff := timeNow().UTC().AddDate(0, 0, -7).Format(timestampLayout)
	buckets := make(map[string]int)
	for _, e := range graph.Entities {
		threads[e.AgentThreadID] = true
		stats.EntityTypes[e.EntityType]++
		confidenceSum += e.Confidence
		importanceSum += e.Importance
		if e.Timestamp >= cutoff && len(e.Timestamp) >= 10 {
			buckets[e.Timestamp[:10]]++
		}
	}
	for _, r := range graph.Relations {
		threads[r.AgentThreadID] = true
	}
	stats.ThreadCount = len(threads)

	if len(graph.Entities) > 0 {
		stats.AvgConfidence = confidenceSum / float64(len(graph.Entities))
		stats.AvgImportance = importanceSum / float64(len(graph.Entities))
	}

	stats.RecentActivity = []models.DayCount{}
	for date, count := range buckets {
		stats.RecentActivity = append(stats.RecentActivity, models.DayCount{Date: date, Count: count})
	}
	sort.Slice(stats.RecentActivity, func(i, j int) bool {
		return stats.RecentActivity[i].Date < stats.RecentActivity[j].Date
	})
	return stats, nil
}

// GetRecentChanges returns entities and relations touched at or after the
// given timestamp (lexicographic comparison).
func (m *Manager) GetRecentChanges(ctx context.Context, since string) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	result := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	for _, e := range graph.Entities {
		if e.Timestamp >= since {
			result.Entities = append(result.Entities, e)
		}
	}
	for _, r := range graph.Relations {
		if r.Timestamp >= since {
			result.Relations = append(result.Relations, r)
		}
	}
	return result, nil
}

// GetObservationHistory returns an entity's versioned observations, ordered
// by timestamp then version. Entities that predate versioned observations
// get a synthesized view of their legacy strings; the synthesized records
// are not persisted.
func (m *Manager) GetObservationHistory(ctx context.Context, name string) ([]models.Observation, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	entity := findEntity(graph, name)
	if entity == nil {
		return nil, fmt.Errorf("entity %q not found", name)
	}

	history := make([]models.Observation, 0, len(entity.ObservationsV2))
	if entity.ObservationsV2 != nil {
		history = append(history, entity.ObservationsV2...)
	} else {
		for _, content := range entity.Observations {
			history = append(history, models.Observation{
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
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Timestamp != history[j].Timestamp {
			return history[i].Timestamp < history[j].Timestamp
		}
		return history[i].Version < history[j].Version
	})
	return history, nil
}

// ListConversations groups all records by thread and reports per-thread
// counts and first/last activity, sorted by last activity descending.
func (m *Manager) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]*models.ConversationSummary)
	observe := func(threadID, timestamp string) *models.ConversationSummary {
		s, ok := summaries[threadID]
		if !ok {
			s = &models.ConversationSummary{ThreadID: threadID, FirstActivity: timestamp, LastActivity: timestamp}
			summaries[threadID] = s
		}
		if timestamp < s.FirstActivity {
			s.FirstActivity = timestamp
		}
		if timestamp > s.LastActivity {
			s.LastActivity = timestamp
		}
		return s
	}
	for _, e := range graph.Entities {
		observe(e.AgentThreadID, e.Timestamp).EntityCount++
	}
	for _, r := range graph.Relations {
		observe(r.AgentThreadID, r.Timestamp).RelationCount++
	}

	out := make([]models.ConversationSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity > out[j].LastActivity
	})
	return out, nil
}

// GetAnalytics produces the four thread-scoped reports: last-10 entities by
// recency, top-10 by importance, top-10 by undirected relation degree, and
// orphaned entities (no relations, or relations pointing outside the
// thread's entity set).
func (m *Manager) GetAnalytics(ctx context.Context, threadID string) (*models.ThreadAnalytics, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	scoped := filterThread(graph, threadID)

	analytics := &models.ThreadAnalytics{
		ThreadID:      threadID,
		Recent:        []models.EntityActivity{},
		TopImportance: []models.Entity{},
		MostConnected: []models.ConnectedEntity{},
		Orphaned:      models.OrphanReport{NoRelations: []string{}, BrokenRelation: []string{}},
	}

	byRecency := make([]models.Entity, len(scoped.Entities))
	copy(byRecency, scoped.Entities)
	sort.SliceStable(byRecency, func(i, j int) bool {
		return byRecency[i].Timestamp > byRecency[j].Timestamp
	})
	for i, e := range byRecency {
		if i >= 10 {
			break
		}
		change := "created"
		for _, obs := range e.ObservationsV2 {
			if obs.Version > 1 {
				change = "updated"
				break
			}
		}
		analytics.Recent = append(analytics.Recent, models.EntityActivity{Entity: e, Change: change})
	}

	byImportance := make([]models.Entity, len(scoped.Entities))
	copy(byImportance, scoped.Entities)
	sort.SliceStable(byImportance, func(i, j int) bool {
		return byImportance[i].Importance > byImportance[j].Importance
	})
	for i, e := range byImportance {
		if i >= 10 {
			break
		}
		analytics.TopImportance = append(analytics.TopImportance, e)
	}

	// Undirected degree, each distinct neighbor counted once.
	neighbors := make(map[string]map[string]bool)
	for _, r := range scoped.Relations {
		if neighbors[r.From] == nil {
			neighbors[r.From] = make(map[string]bool)
		}
		if neighbors[r.To] == nil {
			neighbors[r.To] = make(map[string]bool)
		}
		neighbors[r.From][r.To] = true
		neighbors[r.To][r.From] = true
	}
	connected := []models.ConnectedEntity{}
	for _, e := range scoped.Entities {
		peers := neighbors[e.Name]
		if len(peers) == 0 {
			continue
		}
		names := make([]string, 0, len(peers))
		for name := range peers {
			names = append(names, name)
		}
		sort.Strings(names)
		connected = append(connected, models.ConnectedEntity{Name: e.Name, Degree: len(names), Connected: names})
	}
	sort.SliceStable(connected, func(i, j int) bool {
		return connected[i].Degree > connected[j].Degree
	})
	if len(connected) > 10 {
		connected = connected[:10]
	}
	analytics.MostConnected = connected

	threadNames := entityNames(scoped)
	for _, e := range scoped.Entities {
		touching := false
		broken := false
		for _, r := range scoped.Relations {
			if r.From != e.Name && r.To != e.Name {
				continue
			}
			touching = true
			if !threadNames[r.From] || !threadNames[r.To] {
				broken = true
			}
		}
		switch {
		case !touching:
			analytics.Orphaned.NoRelations = append(analytics.Orphaned.NoRelations, e.Name)
		case broken:
			analytics.Orphaned.BrokenRelation = append(analytics.Orphaned.BrokenRelation, e.Name)
		}
	}

	return analytics, nil
}
