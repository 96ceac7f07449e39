package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
	"github.com/atelier-ai/threadmem/internal/storage"
)

// newTestManager builds an engine over a file store in a temp directory.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, zap.NewNop())
}

// freezeClock pins timeNow for the duration of one test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = prev })
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return at
}

// testEntity builds a valid entity with sensible defaults.
func testEntity(name, threadID string) models.Entity {
	return models.Entity{
		Name:          name,
		EntityType:    "Person",
		Observations:  []string{},
		AgentThreadID: threadID,
		Timestamp:     "2025-06-01T10:00:00.000Z",
		Confidence:    0.8,
		Importance:    0.5,
	}
}

func testRelation(from, to, relationType, threadID string) models.Relation {
	return models.Relation{
		From:          from,
		To:            to,
		RelationType:  relationType,
		AgentThreadID: threadID,
		Timestamp:     "2025-06-01T10:00:00.000Z",
		Confidence:    0.8,
		Importance:    0.5,
	}
}

func TestNormalizeTimestampEmpty(t *testing.T) {
	freezeClock(t, time.Date(2025, 6, 15, 12, 30, 45, 0, time.UTC))

	ts, err := normalizeTimestamp("")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15T12:30:45.000Z", ts)
}

func TestNormalizeTimestampCanonicalizes(t *testing.T) {
	cases := map[string]string{
		"2025-06-01T10:00:00Z":      "2025-06-01T10:00:00.000Z",
		"2025-06-01T10:00:00.000Z":  "2025-06-01T10:00:00.000Z",
		"2025-06-01T12:00:00+02:00": "2025-06-01T10:00:00.000Z",
		"2025-06-01T10:00:00.5Z":    "2025-06-01T10:00:00.500Z",
	}
	for input, want := range cases {
		got, err := normalizeTimestamp(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestNormalizeTimestampRejectsGarbage(t *testing.T) {
	for _, input := range []string{"yesterday", "2025-06-01", "1718000000"} {
		_, err := normalizeTimestamp(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestNormalizedTimestampsSortChronologically(t *testing.T) {
	earlier, err := normalizeTimestamp("2025-06-01T09:59:59Z")
	require.NoError(t, err)
	later, err := normalizeTimestamp("2025-06-01T10:00:00Z")
	require.NoError(t, err)
	assert.Less(t, earlier, later)
}
