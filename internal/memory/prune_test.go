package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/threadmem/internal/models"
)

func scoredEntity(name, threadID, timestamp string, importance float64) models.Entity {
	e := testEntity(name, threadID)
	e.Timestamp = timestamp
	e.Importance = importance
	return e
}

func TestPruneMemoryByImportanceWithBackfill(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Three entities below the cutoff plus one above. keepMinEntities forces
	// the two best-scoring candidates back in.
	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("Keep", "t1", "2025-06-01T00:00:00.000Z", 0.9),
		scoredEntity("BestOfRest", "t1", "2025-06-01T00:00:00.000Z", 0.4),
		scoredEntity("Middling", "t1", "2025-06-01T00:00:00.000Z", 0.3),
		scoredEntity("Worst", "t1", "2025-06-01T00:00:00.000Z", 0.1),
	})
	require.NoError(t, err)

	cutoff := 0.5
	result, err := m.PruneMemory(ctx, models.PruneOptions{
		ImportanceLessThan: &cutoff,
		KeepMinEntities:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedEntities)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	names := entityNames(graph)
	assert.True(t, names["Keep"])
	assert.True(t, names["BestOfRest"])
	assert.True(t, names["Middling"])
	assert.False(t, names["Worst"])
}

func TestPruneMemoryKeepMinWithTwoSurvivors(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("High", "t1", "2025-06-01T00:00:00.000Z", 0.9),
		scoredEntity("Low", "t1", "2025-06-01T00:00:00.000Z", 0.2),
	})
	require.NoError(t, err)

	cutoff := 0.5
	result, err := m.PruneMemory(ctx, models.PruneOptions{
		ImportanceLessThan: &cutoff,
		KeepMinEntities:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemovedEntities)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 2)
}

func TestPruneMemoryByAge(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("Ancient", "t1", "2024-01-01T00:00:00.000Z", 0.9),
		scoredEntity("Fresh", "t1", "2025-06-01T00:00:00.000Z", 0.9),
	})
	require.NoError(t, err)

	result, err := m.PruneMemory(ctx, models.PruneOptions{
		OlderThan: "2025-01-01T00:00:00.000Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedEntities)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 1)
	assert.Equal(t, "Fresh", graph.Entities[0].Name)
}

func TestPruneMemoryDropsOrphanedRelations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("Stays", "t1", "2025-06-01T00:00:00.000Z", 0.9),
		scoredEntity("Goes", "t1", "2025-06-01T00:00:00.000Z", 0.1),
	})
	require.NoError(t, err)
	_, err = m.CreateRelations(ctx, []models.Relation{
		testRelation("Stays", "Goes", "knows", "t1"),
	})
	require.NoError(t, err)

	cutoff := 0.5
	result, err := m.PruneMemory(ctx, models.PruneOptions{ImportanceLessThan: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedEntities)
	assert.Equal(t, 1, result.RemovedRelations)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, graph.Relations)
}

func TestPruneMemoryThreadScoped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("Mine", "t1", "2025-06-01T00:00:00.000Z", 0.1),
		scoredEntity("Theirs", "t2", "2025-06-01T00:00:00.000Z", 0.1),
	})
	require.NoError(t, err)

	cutoff := 0.5
	result, err := m.PruneMemory(ctx, models.PruneOptions{
		ImportanceLessThan: &cutoff,
		ThreadID:           "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedEntities)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 1)
	assert.Equal(t, "Theirs", graph.Entities[0].Name)
}

func TestPruneMemoryCountsConserve(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		scoredEntity("A", "t1", "2025-06-01T00:00:00.000Z", 0.1),
		scoredEntity("B", "t1", "2025-06-01T00:00:00.000Z", 0.2),
		scoredEntity("C", "t1", "2025-06-01T00:00:00.000Z", 0.9),
	})
	require.NoError(t, err)

	cutoff := 0.5
	result, err := m.PruneMemory(ctx, models.PruneOptions{ImportanceLessThan: &cutoff})
	require.NoError(t, err)

	graph, err := m.ReadGraph(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.RemovedEntities+len(graph.Entities))
}
