package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/threadmem/internal/models"
)

// seedChain stores A -> B -> C -> D plus an isolated node.
func seedChain(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()

	_, err := m.CreateEntities(ctx, []models.Entity{
		testEntity("A", "t1"), testEntity("B", "t1"), testEntity("C", "t1"),
		testEntity("D", "t1"), testEntity("Island", "t1"),
	})
	require.NoError(t, err)
	_, err = m.CreateRelations(ctx, []models.Relation{
		testRelation("A", "B", "knows", "t1"),
		testRelation("B", "C", "knows", "t1"),
		testRelation("C", "D", "knows", "t1"),
	})
	require.NoError(t, err)
}

func TestFindRelationPath(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)

	result, err := m.FindRelationPath(context.Background(), "A", "C", 5)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, []string{"A", "B", "C"}, result.Path)
	require.Len(t, result.Relations, 2)
	assert.Equal(t, "A", result.Relations[0].From)
	assert.Equal(t, "B", result.Relations[1].From)
}

func TestFindRelationPathTraversesBackwards(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)

	// Relations are directed but traversal is not.
	result, err := m.FindRelationPath(context.Background(), "D", "A", 5)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, []string{"D", "C", "B", "A"}, result.Path)
	// Returned relations keep their stored direction.
	assert.Equal(t, "C", result.Relations[0].From)
	assert.Equal(t, "D", result.Relations[0].To)
}

func TestFindRelationPathRespectsMaxDepth(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)

	result, err := m.FindRelationPath(context.Background(), "A", "D", 2)
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Empty(t, result.Path)

	result, err = m.FindRelationPath(context.Background(), "A", "D", 3)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Len(t, result.Path, 4)
}

func TestFindRelationPathNoRoute(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)

	result, err := m.FindRelationPath(context.Background(), "A", "Island", 10)
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Empty(t, result.Path)
	assert.Empty(t, result.Relations)
}

func TestFindRelationPathTrivialSelf(t *testing.T) {
	m := newTestManager(t)

	// Works even against an empty store: the trivial path needs no lookup.
	result, err := m.FindRelationPath(context.Background(), "A", "A", 3)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, []string{"A"}, result.Path)
	assert.Empty(t, result.Relations)
}

func TestGetContextDepth(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)
	ctx := context.Background()

	// The chain's relations are stored in path order, so scanning them while
	// growing the set would leak the whole chain into one round. Each round
	// must add exactly one hop.
	one, err := m.GetContext(ctx, []string{"A"}, 1, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, graphNames(one))
	assert.Len(t, one.Relations, 1)

	two, err := m.GetContext(ctx, []string{"A"}, 2, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, graphNames(two))
	assert.Len(t, two.Relations, 2)

	three, err := m.GetContext(ctx, []string{"A"}, 3, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, graphNames(three))
}

func graphNames(g *models.KnowledgeGraph) []string {
	names := make([]string, 0, len(g.Entities))
	for _, e := range g.Entities {
		names = append(names, e.Name)
	}
	return names
}

func TestGetContextExcludesUnreachable(t *testing.T) {
	m := newTestManager(t)
	seedChain(t, m)

	result, err := m.GetContext(context.Background(), []string{"Island"}, 5, "")
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "Island", result.Entities[0].Name)
	assert.Empty(t, result.Relations)
}
