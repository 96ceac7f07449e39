package memory

import (
	"context"

	"github.com/atelier-ai/threadmem/internal/models"
)

type edge struct {
	neighbor string
	relation models.Relation
}

// adjacency builds an undirected adjacency map over the graph's relations.
// The stored relation is kept on each edge so returned paths preserve the
// original direction.
func adjacency(relations []models.Relation) map[string][]edge {
	adj := make(map[string][]edge)
	for _, r := range relations {
		adj[r.From] = append(adj[r.From], edge{neighbor: r.To, relation: r})
		adj[r.To] = append(adj[r.To], edge{neighbor: r.From, relation: r})
	}
	return adj
}

// FindRelationPath runs a breadth-first search from one entity to another,
// treating every relation as traversable in both directions, and returns the
// first shortest path within maxDepth hops. A search for an entity from
// itself yields the trivial single-node path.
func (m *Manager) FindRelationPath(ctx context.Context, from, to string, maxDepth int) (*models.PathResult, error) {
	if from == to {
		return &models.PathResult{Found: true, Path: []string{from}, Relations: []models.Relation{}}, nil
	}

	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	adj := adjacency(graph.Relations)
	visited := map[string]pathStep{from: {}}
	frontier := []string{from}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			for _, e := range adj[name] {
				if _, seen := visited[e.neighbor]; seen {
					continue
				}
				visited[e.neighbor] = pathStep{prev: name, via: e.relation}
				if e.neighbor == to {
					return reconstructPath(from, to, visited), nil
				}
				next = append(next, e.neighbor)
			}
		}
		frontier = next
	}

	return &models.PathResult{Found: false, Path: []string{}, Relations: []models.Relation{}}, nil
}

type pathStep struct {
	prev string
	via  models.Relation
}

func reconstructPath(from, to string, visited map[string]pathStep) *models.PathResult {
	var names []string
	var relations []models.Relation
	for at := to; at != from; {
		s := visited[at]
		names = append(names, at)
		relations = append(relations, s.via)
		at = s.prev
	}
	names = append(names, from)

	// Reverse into from -> to order.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	for i, j := 0, len(relations)-1; i < j; i, j = i+1, j-1 {
		relations[i], relations[j] = relations[j], relations[i]
	}
	return &models.PathResult{Found: true, Path: names, Relations: relations}
}

// GetContext expands a seed entity set breadth-first: for depth rounds, both
// endpoints of every relation touching an included entity are added. The
// induced sub-graph is returned: entities in the closure plus relations
// with both endpoints inside it.
func (m *Manager) GetContext(ctx context.Context, names []string, depth int, threadID string) (*models.KnowledgeGraph, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	scoped := filterThread(graph, threadID)

	included := make(map[string]bool, len(names))
	for _, name := range names {
		included[name] = true
	}

	for round := 0; round < depth; round++ {
		// Additions are collected separately and merged after the scan, so
		// one round expands exactly one hop regardless of relation order.
		next := make(map[string]bool)
		for _, r := range scoped.Relations {
			if included[r.From] || included[r.To] {
				if !included[r.From] {
					next[r.From] = true
				}
				if !included[r.To] {
					next[r.To] = true
				}
			}
		}
		if len(next) == 0 {
			break
		}
		for name := range next {
			included[name] = true
		}
	}

	result := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	for _, e := range scoped.Entities {
		if included[e.Name] {
			result.Entities = append(result.Entities, e)
		}
	}
	for _, r := range scoped.Relations {
		if included[r.From] && included[r.To] {
			result.Relations = append(result.Relations, r)
		}
	}
	return result, nil
}
