package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/threadmem/internal/models"
)

// seedTwoThreads stores a small graph split across threads t1 and t2.
func seedTwoThreads(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()

	alice := testEntity("Alice", "t1")
	alice.Observations = []string{"works at Acme"}
	bob := testEntity("Bob", "t1")
	bob.EntityType = "Robot"
	carol := testEntity("Carol", "t2")

	_, err := m.CreateEntities(ctx, []models.Entity{alice, bob, carol})
	require.NoError(t, err)
	_, err = m.CreateRelations(ctx, []models.Relation{
		testRelation("Alice", "Bob", "knows", "t1"),
		testRelation("Bob", "Carol", "knows", "t2"),
	})
	require.NoError(t, err)
}

func TestReadGraphThreadIsolation(t *testing.T) {
	m := newTestManager(t)
	seedTwoThreads(t, m)

	graph, err := m.ReadGraph(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 2)
	for _, e := range graph.Entities {
		assert.Equal(t, "t1", e.AgentThreadID)
	}
	require.Len(t, graph.Relations, 1)
	assert.Equal(t, "knows", graph.Relations[0].RelationType)

	whole, err := m.ReadGraph(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, whole.Entities, 3)
	assert.Len(t, whole.Relations, 2)
}

func TestSearchNodesMatchesNamesTypesObservations(t *testing.T) {
	m := newTestManager(t)
	seedTwoThreads(t, m)
	ctx := context.Background()

	byName, err := m.SearchNodes(ctx, "ali", "")
	require.NoError(t, err)
	require.Len(t, byName.Entities, 1)
	assert.Equal(t, "Alice", byName.Entities[0].Name)

	byType, err := m.SearchNodes(ctx, "robot", "")
	require.NoError(t, err)
	require.Len(t, byType.Entities, 1)
	assert.Equal(t, "Bob", byType.Entities[0].Name)

	byObs, err := m.SearchNodes(ctx, "ACME", "")
	require.NoError(t, err)
	require.Len(t, byObs.Entities, 1)
	assert.Equal(t, "Alice", byObs.Entities[0].Name)

	none, err := m.SearchNodes(ctx, "zzz", "")
	require.NoError(t, err)
	assert.Empty(t, none.Entities)
	assert.Empty(t, none.Relations)
}

func TestSearchNodesInducesRelations(t *testing.T) {
	m := newTestManager(t)
	seedTwoThreads(t, m)

	// "Person" matches Alice and Carol but not Bob, so no relation has both
	// endpoints in the result.
	result, err := m.SearchNodes(context.Background(), "person", "")
	require.NoError(t, err)
	assert.Len(t, result.Entities, 2)
	assert.Empty(t, result.Relations)
}

func TestOpenNodes(t *testing.T) {
	m := newTestManager(t)
	seedTwoThreads(t, m)

	result, err := m.OpenNodes(context.Background(), []string{"Alice", "Bob", "Ghost"}, "")
	require.NoError(t, err)
	assert.Len(t, result.Entities, 2)
	require.Len(t, result.Relations, 1)
	assert.Equal(t, "Alice", result.Relations[0].From)
}

func TestQueryNodesRanges(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	low := testEntity("Low", "t1")
	low.Importance = 0.2
	low.Timestamp = "2025-01-01T00:00:00.000Z"
	high := testEntity("High", "t1")
	high.Importance = 0.9
	high.Timestamp = "2025-06-01T00:00:00.000Z"
	_, err := m.CreateEntities(ctx, []models.Entity{low, high})
	require.NoError(t, err)

	minImp := 0.5
	result, err := m.QueryNodes(ctx, models.QueryFilters{MinImportance: &minImp})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "High", result.Entities[0].Name)

	result, err = m.QueryNodes(ctx, models.QueryFilters{TimestampBefore: "2025-03-01T00:00:00.000Z"})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "Low", result.Entities[0].Name)
}

func TestQueryNodesRelationsFilteredIndependently(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a := testEntity("A", "t1")
	b := testEntity("B", "t1")
	_, err := m.CreateEntities(ctx, []models.Entity{a, b})
	require.NoError(t, err)

	weak := testRelation("A", "B", "knows", "t1")
	weak.Confidence = 0.1
	_, err = m.CreateRelations(ctx, []models.Relation{weak})
	require.NoError(t, err)

	// Both entities pass the filter but the relation's own confidence fails it.
	minConf := 0.5
	result, err := m.QueryNodes(ctx, models.QueryFilters{MinConfidence: &minConf})
	require.NoError(t, err)
	assert.Len(t, result.Entities, 2)
	assert.Empty(t, result.Relations)
}

func TestGetMemoryStats(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	freezeClock(t, mustParseTime(t, "2025-06-05T00:00:00Z"))

	recent := testEntity("Recent", "t1")
	recent.Timestamp = "2025-06-03T10:00:00.000Z"
	recent.Confidence = 1.0
	recent.Importance = 1.0
	old := testEntity("Old", "t2")
	old.Timestamp = "2025-01-01T00:00:00.000Z"
	old.Confidence = 0.5
	old.Importance = 0.0
	old.EntityType = "Place"
	_, err := m.CreateEntities(ctx, []models.Entity{recent, old})
	require.NoError(t, err)

	stats, err := m.GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 0, stats.RelationCount)
	assert.Equal(t, 2, stats.ThreadCount)
	assert.Equal(t, map[string]int{"Person": 1, "Place": 1}, stats.EntityTypes)
	assert.InDelta(t, 0.75, stats.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.5, stats.AvgImportance, 1e-9)
	require.Len(t, stats.RecentActivity, 1)
	assert.Equal(t, models.DayCount{Date: "2025-06-03", Count: 1}, stats.RecentActivity[0])
}

func TestGetRecentChanges(t *testing.T) {
	m := newTestManager(t)
	seedTwoThreads(t, m)

	changes, err := m.GetRecentChanges(context.Background(), "2025-06-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Len(t, changes.Entities, 3)

	changes, err = m.GetRecentChanges(context.Background(), "2025-07-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Empty(t, changes.Entities)
	assert.Empty(t, changes.Relations)
}

func TestGetObservationHistorySynthesizesLegacyView(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	e := testEntity("Alice", "t1")
	e.Observations = []string{"likes tea", "works at Acme"}
	_, err := m.CreateEntities(ctx, []models.Entity{e})
	require.NoError(t, err)

	history, err := m.GetObservationHistory(ctx, "Alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, obs := range history {
		assert.Equal(t, 1, obs.Version)
		assert.Equal(t, "2025-06-01T10:00:00.000Z", obs.Timestamp)
		assert.NotEmpty(t, obs.ID)
	}

	_, err = m.GetObservationHistory(ctx, "Ghost")
	assert.Error(t, err)
}

func TestGetObservationHistorySortedByTimestamp(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{testEntity("Alice", "t1")})
	require.NoError(t, err)
	_, err = m.AddObservationsV2(ctx, []models.ObservationRequest{{
		EntityName: "Alice", Contents: []string{"later"},
		Timestamp: "2025-07-01T00:00:00Z", Confidence: 0.9, Importance: 0.5,
	}})
	require.NoError(t, err)
	_, err = m.AddObservationsV2(ctx, []models.ObservationRequest{{
		EntityName: "Alice", Contents: []string{"earlier"},
		Timestamp: "2025-06-15T00:00:00Z", Confidence: 0.9, Importance: 0.5,
	}})
	require.NoError(t, err)

	history, err := m.GetObservationHistory(ctx, "Alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "earlier", history[0].Content)
	assert.Equal(t, "later", history[1].Content)
}

func TestListConversations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := testEntity("A", "t1")
	first.Timestamp = "2025-06-01T00:00:00.000Z"
	second := testEntity("B", "t1")
	second.Timestamp = "2025-06-03T00:00:00.000Z"
	other := testEntity("C", "t2")
	other.Timestamp = "2025-06-02T00:00:00.000Z"
	_, err := m.CreateEntities(ctx, []models.Entity{first, second, other})
	require.NoError(t, err)
	rel := testRelation("A", "B", "knows", "t1")
	rel.Timestamp = "2025-06-04T00:00:00.000Z"
	_, err = m.CreateRelations(ctx, []models.Relation{rel})
	require.NoError(t, err)

	summaries, err := m.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Sorted by last activity descending: t1's relation is the newest record.
	assert.Equal(t, "t1", summaries[0].ThreadID)
	assert.Equal(t, 2, summaries[0].EntityCount)
	assert.Equal(t, 1, summaries[0].RelationCount)
	assert.Equal(t, "2025-06-01T00:00:00.000Z", summaries[0].FirstActivity)
	assert.Equal(t, "2025-06-04T00:00:00.000Z", summaries[0].LastActivity)
	assert.Equal(t, "t2", summaries[1].ThreadID)
}

func TestGetAnalyticsOrphans(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		testEntity("Hub", "t1"), testEntity("Spoke", "t1"), testEntity("Loner", "t1"),
		testEntity("Outside", "t2"),
	})
	require.NoError(t, err)
	_, err = m.CreateRelations(ctx, []models.Relation{
		testRelation("Hub", "Spoke", "knows", "t1"),
		// Authored under t1 but pointing at an entity owned by t2, so within
		// t1's scope Hub has a relation referencing a name outside its set.
		testRelation("Hub", "Outside", "knows", "t1"),
	})
	require.NoError(t, err)

	analytics, err := m.GetAnalytics(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", analytics.ThreadID)
	assert.Len(t, analytics.Recent, 3)
	assert.Len(t, analytics.TopImportance, 3)

	require.NotEmpty(t, analytics.MostConnected)
	assert.Equal(t, "Hub", analytics.MostConnected[0].Name)
	assert.Equal(t, 2, analytics.MostConnected[0].Degree)
	assert.Equal(t, []string{"Outside", "Spoke"}, analytics.MostConnected[0].Connected)

	assert.Equal(t, []string{"Loner"}, analytics.Orphaned.NoRelations)
	assert.Equal(t, []string{"Hub"}, analytics.Orphaned.BrokenRelation)
}

func TestGetAnalyticsRecentClassification(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	created := testEntity("Created", "t1")
	updated := testEntity("Updated", "t1")
	updated.ObservationsV2 = []models.Observation{
		{ID: "x", Content: "v2", Timestamp: "2025-06-01T10:00:00.000Z", Version: 2, AgentThreadID: "t1"},
	}
	_, err := m.CreateEntities(ctx, []models.Entity{created, updated})
	require.NoError(t, err)

	analytics, err := m.GetAnalytics(ctx, "t1")
	require.NoError(t, err)
	byName := map[string]string{}
	for _, a := range analytics.Recent {
		byName[a.Entity.Name] = a.Change
	}
	assert.Equal(t, "created", byName["Created"])
	assert.Equal(t, "updated", byName["Updated"])
}
