package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/atelier-ai/threadmem/internal/memory"
	"github.com/atelier-ai/threadmem/internal/tools"
)

// New creates a fully configured MCP server with every memory operation
// registered as a tool.
func New(mem *memory.Manager) *mcp.Server {
	kt := &tools.KnowledgeTools{Mem: mem}
	it := &tools.InsightTools{Mem: mem}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "threadmem",
		Version: "0.1.0",
	}, nil)

	// Graph mutations
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create entities in the shared knowledge graph; names already taken are skipped",
	}, kt.CreateEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relations",
		Description: "Create directed relations between existing entities; duplicates and unknown endpoints are skipped",
	}, kt.CreateRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Append observation strings to existing entities and refresh their metadata",
	}, kt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations_v2",
		Description: "Append versioned observations, migrating legacy strings on first use",
	}, kt.AddObservationsV2)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Delete entities and cascade-delete every relation referencing them",
	}, kt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_observations",
		Description: "Remove specific observation strings from entities",
	}, kt.DeleteObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Delete relations matching (from, to, relationType) triples",
	}, kt.DeleteRelations)

	// Graph reads
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_graph",
		Description: "Read the knowledge graph, optionally scoped to one thread",
	}, kt.ReadGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Case-insensitive substring search over entity names, types and observations",
	}, kt.SearchNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_nodes",
		Description: "Retrieve specific entities by exact name",
	}, kt.OpenNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "query_nodes",
		Description: "Filter entities and relations by timestamp, confidence and importance ranges",
	}, kt.QueryNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_relation_path",
		Description: "Find the shortest undirected relation path between two entities",
	}, kt.FindRelationPath)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_context",
		Description: "Expand a seed entity set by following relations for a bounded number of hops",
	}, kt.GetContext)

	// Insights and maintenance
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_memory_stats",
		Description: "Aggregate statistics: counts, type histogram, score averages and recent activity",
	}, it.GetMemoryStats)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_recent_changes",
		Description: "Entities and relations changed at or after a given timestamp",
	}, it.GetRecentChanges)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "detect_conflicts",
		Description: "Flag observation pairs that look contradictory (lexical negation heuristic)",
	}, it.DetectConflicts)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_conversations",
		Description: "Per-thread record counts and activity window, most recently updated first",
	}, it.ListConversations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_analytics",
		Description: "Thread analytics: recent entities, top importance, most connected, orphaned",
	}, it.GetAnalytics)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "prune_memory",
		Description: "Remove old or unimportant entities while keeping a guaranteed minimum",
	}, it.PruneMemory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "bulk_update",
		Description: "Update scores and append observations across many entities at once",
	}, it.BulkUpdate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "flag_for_review",
		Description: "Mark an entity as needing human review with a reason",
	}, it.FlagForReview)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_flagged",
		Description: "List entities currently flagged for review",
	}, it.GetFlagged)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_observation_history",
		Description: "Read an entity's versioned observation history",
	}, it.GetObservationHistory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_memory",
		Description: "Atomically create validated entities and relations; rejects the whole batch on any validation error",
	}, it.SaveMemory)

	return srv
}
