package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/atelier-ai/threadmem/internal/memory"
	"github.com/atelier-ai/threadmem/internal/models"
)

// KnowledgeTools holds the graph CRUD and read tool handlers.
type KnowledgeTools struct {
	Mem *memory.Manager
}

// --- Input types ---

type EntityInput struct {
	Name          string   `json:"name" jsonschema:"Globally unique entity name"`
	EntityType    string   `json:"entityType" jsonschema:"Entity type (e.g. Person, Technology, Concept)"`
	Observations  []string `json:"observations,omitempty" jsonschema:"Initial atomic observations about the entity"`
	AgentThreadID string   `json:"agentThreadId" jsonschema:"Conversation thread that authored the entity"`
	Timestamp     string   `json:"timestamp,omitempty" jsonschema:"ISO-8601 creation time; defaults to now"`
	Confidence    float64  `json:"confidence" jsonschema:"Confidence score in [0,1]"`
	Importance    float64  `json:"importance" jsonschema:"Importance score in [0,1]"`
}

type CreateEntitiesInput struct {
	Entities []EntityInput `json:"entities" jsonschema:"Entities to create"`
}

type RelationInput struct {
	From          string  `json:"from" jsonschema:"Source entity name"`
	To            string  `json:"to" jsonschema:"Target entity name"`
	RelationType  string  `json:"relationType" jsonschema:"Relation type in active voice (e.g. uses, manages)"`
	AgentThreadID string  `json:"agentThreadId" jsonschema:"Conversation thread that authored the relation"`
	Timestamp     string  `json:"timestamp,omitempty" jsonschema:"ISO-8601 creation time; defaults to now"`
	Confidence    float64 `json:"confidence" jsonschema:"Confidence score in [0,1]"`
	Importance    float64 `json:"importance" jsonschema:"Importance score in [0,1]"`
}

type CreateRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Relations to create"`
}

type ObservationRequestInput struct {
	EntityName    string   `json:"entityName" jsonschema:"Name of the entity"`
	Contents      []string `json:"contents" jsonschema:"Observation texts to append"`
	AgentThreadID string   `json:"agentThreadId,omitempty" jsonschema:"Requesting thread (the entity keeps its own)"`
	Timestamp     string   `json:"timestamp,omitempty" jsonschema:"ISO-8601 time; defaults to now"`
	Confidence    float64  `json:"confidence" jsonschema:"New confidence for the entity"`
	Importance    float64  `json:"importance" jsonschema:"New importance for the entity"`
}

type AddObservationsInput struct {
	Observations []ObservationRequestInput `json:"observations" jsonschema:"Observation batches to add"`
}

type DeleteEntitiesInput struct {
	Names []string `json:"names" jsonschema:"Entity names to delete (cascades to their relations)"`
}

type ObservationDeletionInput struct {
	EntityName   string   `json:"entityName" jsonschema:"Name of the entity"`
	Observations []string `json:"observations" jsonschema:"Observation strings to remove"`
}

type DeleteObservationsInput struct {
	Deletions []ObservationDeletionInput `json:"deletions" jsonschema:"Observation deletions"`
}

type RelationKeyInput struct {
	From         string `json:"from" jsonschema:"Source entity name"`
	To           string `json:"to" jsonschema:"Target entity name"`
	RelationType string `json:"relationType" jsonschema:"Relation type"`
}

type DeleteRelationsInput struct {
	Relations []RelationKeyInput `json:"relations" jsonschema:"Relations to delete"`
}

type ReadGraphInput struct {
	AgentThreadID string `json:"agentThreadId,omitempty" jsonschema:"Restrict to one thread; empty for the whole graph"`
}

type SearchNodesInput struct {
	Query         string `json:"query" jsonschema:"Case-insensitive substring matched against names, types and observations"`
	AgentThreadID string `json:"agentThreadId,omitempty" jsonschema:"Restrict to one thread"`
}

type OpenNodesInput struct {
	Names         []string `json:"names" jsonschema:"Exact entity names to retrieve"`
	AgentThreadID string   `json:"agentThreadId,omitempty" jsonschema:"Restrict to one thread"`
}

type QueryNodesInput struct {
	TimestampAfter  string   `json:"timestampAfter,omitempty" jsonschema:"Inclusive lower timestamp bound"`
	TimestampBefore string   `json:"timestampBefore,omitempty" jsonschema:"Inclusive upper timestamp bound"`
	MinConfidence   *float64 `json:"minConfidence,omitempty" jsonschema:"Inclusive lower confidence bound"`
	MaxConfidence   *float64 `json:"maxConfidence,omitempty" jsonschema:"Inclusive upper confidence bound"`
	MinImportance   *float64 `json:"minImportance,omitempty" jsonschema:"Inclusive lower importance bound"`
	MaxImportance   *float64 `json:"maxImportance,omitempty" jsonschema:"Inclusive upper importance bound"`
}

type FindRelationPathInput struct {
	From     string `json:"from" jsonschema:"Start entity name"`
	To       string `json:"to" jsonschema:"Target entity name"`
	MaxDepth int    `json:"maxDepth" jsonschema:"Maximum number of hops to search"`
}

type GetContextInput struct {
	Names         []string `json:"names" jsonschema:"Seed entity names"`
	Depth         int      `json:"depth" jsonschema:"Number of expansion rounds"`
	AgentThreadID string   `json:"agentThreadId,omitempty" jsonschema:"Restrict to one thread"`
}

// --- Handlers ---

func entityFromInput(e EntityInput) models.Entity {
	return models.Entity{
		Name:          e.Name,
		EntityType:    e.EntityType,
		Observations:  e.Observations,
		AgentThreadID: e.AgentThreadID,
		Timestamp:     e.Timestamp,
		Confidence:    e.Confidence,
		Importance:    e.Importance,
	}
}

func relationFromInput(r RelationInput) models.Relation {
	return models.Relation{
		From:          r.From,
		To:            r.To,
		RelationType:  r.RelationType,
		AgentThreadID: r.AgentThreadID,
		Timestamp:     r.Timestamp,
		Confidence:    r.Confidence,
		Importance:    r.Importance,
	}
}

func observationRequests(inputs []ObservationRequestInput) []models.ObservationRequest {
	requests := make([]models.ObservationRequest, len(inputs))
	for i, in := range inputs {
		requests[i] = models.ObservationRequest{
			EntityName:    in.EntityName,
			Contents:      in.Contents,
			AgentThreadID: in.AgentThreadID,
			Timestamp:     in.Timestamp,
			Confidence:    in.Confidence,
			Importance:    in.Importance,
		}
	}
	return requests
}

func (t *KnowledgeTools) CreateEntities(ctx context.Context, _ *mcp.CallToolRequest, input CreateEntitiesInput) (*mcp.CallToolResult, any, error) {
	entities := make([]models.Entity, len(input.Entities))
	for i, e := range input.Entities {
		entities[i] = entityFromInput(e)
	}
	created, err := t.Mem.CreateEntities(ctx, entities)
	if err != nil {
		return toolError("Failed to create entities: %v", err), nil, nil
	}
	return toolJSON(created)
}

func (t *KnowledgeTools) CreateRelations(ctx context.Context, _ *mcp.CallToolRequest, input CreateRelationsInput) (*mcp.CallToolResult, any, error) {
	relations := make([]models.Relation, len(input.Relations))
	for i, r := range input.Relations {
		relations[i] = relationFromInput(r)
	}
	created, err := t.Mem.CreateRelations(ctx, relations)
	if err != nil {
		return toolError("Failed to create relations: %v", err), nil, nil
	}
	return toolJSON(created)
}

func (t *KnowledgeTools) AddObservations(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	added, err := t.Mem.AddObservations(ctx, observationRequests(input.Observations))
	if err != nil {
		return toolError("Failed to add observations: %v", err), nil, nil
	}
	return toolJSON(added)
}

func (t *KnowledgeTools) AddObservationsV2(ctx context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	added, err := t.Mem.AddObservationsV2(ctx, observationRequests(input.Observations))
	if err != nil {
		return toolError("Failed to add versioned observations: %v", err), nil, nil
	}
	return toolJSON(added)
}

func (t *KnowledgeTools) DeleteEntities(ctx context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Mem.DeleteEntities(ctx, input.Names)
	if err != nil {
		return toolError("Failed to delete entities: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d entities.", count)), nil, nil
}

func (t *KnowledgeTools) DeleteObservations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteObservationsInput) (*mcp.CallToolResult, any, error) {
	deletions := make([]models.ObservationDeletion, len(input.Deletions))
	for i, d := range input.Deletions {
		deletions[i] = models.ObservationDeletion{EntityName: d.EntityName, Observations: d.Observations}
	}
	count, err := t.Mem.DeleteObservations(ctx, deletions)
	if err != nil {
		return toolError("Failed to delete observations: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d observations.", count)), nil, nil
}

func (t *KnowledgeTools) DeleteRelations(ctx context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	keys := make([]models.RelationKey, len(input.Relations))
	for i, r := range input.Relations {
		keys[i] = models.RelationKey{From: r.From, To: r.To, RelationType: r.RelationType}
	}
	count, err := t.Mem.DeleteRelations(ctx, keys)
	if err != nil {
		return toolError("Failed to delete relations: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}

func (t *KnowledgeTools) ReadGraph(ctx context.Context, _ *mcp.CallToolRequest, input ReadGraphInput) (*mcp.CallToolResult, any, error) {
	graph, err := t.Mem.ReadGraph(ctx, input.AgentThreadID)
	if err != nil {
		return toolError("Failed to read graph: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *KnowledgeTools) SearchNodes(ctx context.Context, _ *mcp.CallToolRequest, input SearchNodesInput) (*mcp.CallToolResult, any, error) {
	graph, err := t.Mem.SearchNodes(ctx, input.Query, input.AgentThreadID)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *KnowledgeTools) OpenNodes(ctx context.Context, _ *mcp.CallToolRequest, input OpenNodesInput) (*mcp.CallToolResult, any, error) {
	graph, err := t.Mem.OpenNodes(ctx, input.Names, input.AgentThreadID)
	if err != nil {
		return toolError("Failed to open nodes: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *KnowledgeTools) QueryNodes(ctx context.Context, _ *mcp.CallToolRequest, input QueryNodesInput) (*mcp.CallToolResult, any, error) {
	graph, err := t.Mem.QueryNodes(ctx, models.QueryFilters{
		TimestampAfter:  input.TimestampAfter,
		TimestampBefore: input.TimestampBefore,
		MinConfidence:   input.MinConfidence,
		MaxConfidence:   input.MaxConfidence,
		MinImportance:   input.MinImportance,
		MaxImportance:   input.MaxImportance,
	})
	if err != nil {
		return toolError("Query failed: %v", err), nil, nil
	}
	return toolJSON(graph)
}

func (t *KnowledgeTools) FindRelationPath(ctx context.Context, _ *mcp.CallToolRequest, input FindRelationPathInput) (*mcp.CallToolResult, any, error) {
	path, err := t.Mem.FindRelationPath(ctx, input.From, input.To, input.MaxDepth)
	if err != nil {
		return toolError("Path search failed: %v", err), nil, nil
	}
	return toolJSON(path)
}

func (t *KnowledgeTools) GetContext(ctx context.Context, _ *mcp.CallToolRequest, input GetContextInput) (*mcp.CallToolResult, any, error) {
	graph, err := t.Mem.GetContext(ctx, input.Names, input.Depth, input.AgentThreadID)
	if err != nil {
		return toolError("Context expansion failed: %v", err), nil, nil
	}
	return toolJSON(graph)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
