package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/atelier-ai/threadmem/internal/memory"
	"github.com/atelier-ai/threadmem/internal/models"
)

// InsightTools holds the statistics, maintenance and validated-save handlers.
type InsightTools struct {
	Mem *memory.Manager
}

// --- Input types ---

type GetRecentChangesInput struct {
	Since string `json:"since" jsonschema:"ISO-8601 timestamp; records at or after it are returned"`
}

type PruneMemoryInput struct {
	OlderThan          string   `json:"olderThan,omitempty" jsonschema:"Drop entities with timestamps before this ISO-8601 value"`
	ImportanceLessThan *float64 `json:"importanceLessThan,omitempty" jsonschema:"Drop entities with importance strictly below this value"`
	KeepMinEntities    int      `json:"keepMinEntities,omitempty" jsonschema:"Guaranteed minimum number of retained entities"`
	AgentThreadID      string   `json:"agentThreadId,omitempty" jsonschema:"Restrict pruning to one thread"`
}

type BulkUpdateItemInput struct {
	Name         string   `json:"name" jsonschema:"Entity name"`
	Confidence   *float64 `json:"confidence,omitempty" jsonschema:"New confidence, if set"`
	Importance   *float64 `json:"importance,omitempty" jsonschema:"New importance, if set"`
	Observations []string `json:"observations,omitempty" jsonschema:"Observation strings to append"`
}

type BulkUpdateInput struct {
	Updates []BulkUpdateItemInput `json:"updates" jsonschema:"Per-entity updates"`
}

type FlagForReviewInput struct {
	Name     string `json:"name" jsonschema:"Entity name to flag"`
	Reason   string `json:"reason" jsonschema:"Why the entity needs review"`
	Reviewer string `json:"reviewer,omitempty" jsonschema:"Who requested the review"`
}

type GetObservationHistoryInput struct {
	Name string `json:"name" jsonschema:"Entity whose versioned observations to read"`
}

type GetAnalyticsInput struct {
	AgentThreadID string `json:"agentThreadId" jsonschema:"Thread to report on"`
}

type SaveMemoryInput struct {
	Entities  []EntityInput   `json:"entities" jsonschema:"Entities to create after validation"`
	Relations []RelationInput `json:"relations" jsonschema:"Relations to create after validation"`
}

// --- Handlers ---

func (t *InsightTools) GetMemoryStats(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	stats, err := t.Mem.GetMemoryStats(ctx)
	if err != nil {
		return toolError("Failed to compute stats: %v", err), nil, nil
	}
	return toolJSON(stats)
}

func (t *InsightTools) GetRecentChanges(ctx context.Context, _ *mcp.CallToolRequest, input GetRecentChangesInput) (*mcp.CallToolResult, any, error) {
	changes, err := t.Mem.GetRecentChanges(ctx, input.Since)
	if err != nil {
		return toolError("Failed to get recent changes: %v", err), nil, nil
	}
	return toolJSON(changes)
}

func (t *InsightTools) DetectConflicts(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	reports, err := t.Mem.DetectConflicts(ctx)
	if err != nil {
		return toolError("Conflict detection failed: %v", err), nil, nil
	}
	return toolJSON(reports)
}

func (t *InsightTools) ListConversations(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	conversations, err := t.Mem.ListConversations(ctx)
	if err != nil {
		return toolError("Failed to list conversations: %v", err), nil, nil
	}
	return toolJSON(conversations)
}

func (t *InsightTools) GetAnalytics(ctx context.Context, _ *mcp.CallToolRequest, input GetAnalyticsInput) (*mcp.CallToolResult, any, error) {
	analytics, err := t.Mem.GetAnalytics(ctx, input.AgentThreadID)
	if err != nil {
		return toolError("Failed to compute analytics: %v", err), nil, nil
	}
	return toolJSON(analytics)
}

func (t *InsightTools) PruneMemory(ctx context.Context, _ *mcp.CallToolRequest, input PruneMemoryInput) (*mcp.CallToolResult, any, error) {
	result, err := t.Mem.PruneMemory(ctx, models.PruneOptions{
		OlderThan:          input.OlderThan,
		ImportanceLessThan: input.ImportanceLessThan,
		KeepMinEntities:    input.KeepMinEntities,
		ThreadID:           input.AgentThreadID,
	})
	if err != nil {
		return toolError("Pruning failed: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *InsightTools) BulkUpdate(ctx context.Context, _ *mcp.CallToolRequest, input BulkUpdateInput) (*mcp.CallToolResult, any, error) {
	updates := make([]models.EntityUpdate, len(input.Updates))
	for i, u := range input.Updates {
		updates[i] = models.EntityUpdate{
			Name:         u.Name,
			Confidence:   u.Confidence,
			Importance:   u.Importance,
			Observations: u.Observations,
		}
	}
	result, err := t.Mem.BulkUpdate(ctx, updates)
	if err != nil {
		return toolError("Bulk update failed: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *InsightTools) FlagForReview(ctx context.Context, _ *mcp.CallToolRequest, input FlagForReviewInput) (*mcp.CallToolResult, any, error) {
	entity, err := t.Mem.FlagForReview(ctx, input.Name, input.Reason, input.Reviewer)
	if err != nil {
		return toolError("Failed to flag entity: %v", err), nil, nil
	}
	return toolJSON(entity)
}

func (t *InsightTools) GetFlagged(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	flagged, err := t.Mem.GetFlagged(ctx)
	if err != nil {
		return toolError("Failed to list flagged entities: %v", err), nil, nil
	}
	return toolJSON(flagged)
}

func (t *InsightTools) GetObservationHistory(ctx context.Context, _ *mcp.CallToolRequest, input GetObservationHistoryInput) (*mcp.CallToolResult, any, error) {
	history, err := t.Mem.GetObservationHistory(ctx, input.Name)
	if err != nil {
		return toolError("Failed to read observation history: %v", err), nil, nil
	}
	return toolJSON(history)
}

func (t *InsightTools) SaveMemory(ctx context.Context, _ *mcp.CallToolRequest, input SaveMemoryInput) (*mcp.CallToolResult, any, error) {
	entities := make([]models.Entity, len(input.Entities))
	for i, e := range input.Entities {
		entities[i] = entityFromInput(e)
	}
	relations := make([]models.Relation, len(input.Relations))
	for i, r := range input.Relations {
		relations[i] = relationFromInput(r)
	}
	result, err := t.Mem.SaveMemory(ctx, entities, relations)
	if err != nil {
		return toolError("Save failed: %v", err), nil, nil
	}
	return toolJSON(result)
}
