// Package storage provides the persistence adapters for the knowledge graph.
//
// Every adapter implements the same full-reconciliation contract: Load
// returns the complete current graph (empty if nothing is persisted), and
// Save replaces the entire persisted state with the given graph, including
// removal of data for threads absent from it.
package storage

import (
	"context"

	"github.com/atelier-ai/threadmem/internal/models"
)

// Store is the persistence contract consumed by the memory engine.
type Store interface {
	// Load returns the complete persisted graph. Absence of persisted
	// state is not an error and yields an empty graph.
	Load(ctx context.Context) (*models.KnowledgeGraph, error)

	// Save replaces the entire persisted state with g.
	Save(ctx context.Context, g *models.KnowledgeGraph) error

	Close() error
}
