package storage

import (
	"context"
	"testing"

	"github.com/atelier-ai/threadmem/internal/models"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ss, err := OpenSQLite(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ss := setupSQLiteStore(t)
	ctx := context.Background()

	in := &models.KnowledgeGraph{
		Entities: []models.Entity{
			sampleEntity("Alice", "t1"),
			sampleEntity("Bob", "t1"),
		},
		Relations: []models.Relation{sampleRelation("Alice", "Bob", "t1")},
	}
	in.Entities[0].ObservationsV2 = []models.Observation{
		{ID: "obs-1", Content: "likes tea", Timestamp: "2025-06-01T10:00:00.000Z", Version: 1, AgentThreadID: "t1", Confidence: 0.8, Importance: 0.5},
	}
	in.Entities[1].Flagged = true
	in.Entities[1].FlagReason = "needs verification"
	in.Entities[1].FlaggedBy = "reviewer-1"

	if err := ss.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := ss.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(out.Entities))
	}
	if len(out.Relations) != 1 {
		t.Fatalf("Expected 1 relation, got %d", len(out.Relations))
	}

	// Entities come back ordered by name.
	alice, bob := out.Entities[0], out.Entities[1]
	if alice.Name != "Alice" || bob.Name != "Bob" {
		t.Fatalf("Unexpected entity order: %q, %q", alice.Name, bob.Name)
	}
	if len(alice.ObservationsV2) != 1 || alice.ObservationsV2[0].ID != "obs-1" {
		t.Errorf("Versioned observations not preserved: %+v", alice.ObservationsV2)
	}
	if !bob.Flagged || bob.FlagReason != "needs verification" || bob.FlaggedBy != "reviewer-1" {
		t.Errorf("Flag fields not preserved: %+v", bob)
	}
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	ss := setupSQLiteStore(t)
	ctx := context.Background()

	first := &models.KnowledgeGraph{
		Entities:  []models.Entity{sampleEntity("Alice", "t1"), sampleEntity("Bob", "t1")},
		Relations: []models.Relation{sampleRelation("Alice", "Bob", "t1")},
	}
	if err := ss.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := &models.KnowledgeGraph{
		Entities: []models.Entity{sampleEntity("Carol", "t2")},
	}
	if err := ss.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := ss.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Name != "Carol" {
		t.Errorf("Save should fully replace state, got %+v", out.Entities)
	}
	if len(out.Relations) != 0 {
		t.Errorf("Old relations should be gone, got %+v", out.Relations)
	}
}

func TestSQLiteStoreEmpty(t *testing.T) {
	ss := setupSQLiteStore(t)

	graph, err := ss.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(graph.Entities) != 0 || len(graph.Relations) != 0 {
		t.Errorf("Expected empty graph, got %d entities / %d relations",
			len(graph.Entities), len(graph.Relations))
	}
}
