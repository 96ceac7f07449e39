package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
)

// Neo4jStore delegates persistence to an external Neo4j database while
// keeping the same full-reconciliation contract: Save detach-deletes the
// stored graph and recreates it inside one write transaction.
//
// Entities become (:Entity) nodes keyed by name; relations become generic
// [:RELATES] edges carrying their relationType as a property, since relation
// types are free-form strings. Versioned observations are stored as a JSON
// string property because Neo4j properties cannot nest.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	log    *zap.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, user, password string, log *zap.Logger) (*Neo4jStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver, log: log}, nil
}

// Close closes the underlying driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// Load reads the complete stored graph. Nodes with malformed versioned
// observation payloads are skipped with a warning, matching the other
// adapters' skip-on-corrupt behavior.
func (s *Neo4jStore) Load(ctx context.Context) (*models.KnowledgeGraph, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	graph := &models.KnowledgeGraph{}

	result, err := session.Run(ctx, `
		MATCH (e:Entity)
		RETURN e.name AS name, e.entityType AS entityType,
		       e.observations AS observations, e.observationsV2 AS observationsV2,
		       e.agentThreadId AS agentThreadId, e.timestamp AS timestamp,
		       e.confidence AS confidence, e.importance AS importance,
		       e.flagged AS flagged, e.flagReason AS flagReason, e.flaggedBy AS flaggedBy
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		e := models.Entity{
			Name:          recordString(record, "name"),
			EntityType:    recordString(record, "entityType"),
			Observations:  recordStringSlice(record, "observations"),
			AgentThreadID: recordString(record, "agentThreadId"),
			Timestamp:     recordString(record, "timestamp"),
			Confidence:    recordFloat(record, "confidence"),
			Importance:    recordFloat(record, "importance"),
			Flagged:       recordBool(record, "flagged"),
			FlagReason:    recordString(record, "flagReason"),
			FlaggedBy:     recordString(record, "flaggedBy"),
		}
		if v2 := recordString(record, "observationsV2"); v2 != "" {
			if err := json.Unmarshal([]byte(v2), &e.ObservationsV2); err != nil {
				s.log.Warn("skipping entity with malformed versioned observations",
					zap.String("entity", e.Name), zap.Error(err))
				continue
			}
		}
		graph.Entities = append(graph.Entities, e)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}

	relResult, err := session.Run(ctx, `
		MATCH (a:Entity)-[r:RELATES]->(b:Entity)
		RETURN a.name AS from, b.name AS to, r.relationType AS relationType,
		       r.agentThreadId AS agentThreadId, r.timestamp AS timestamp,
		       r.confidence AS confidence, r.importance AS importance
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	for relResult.Next(ctx) {
		record := relResult.Record()
		graph.Relations = append(graph.Relations, models.Relation{
			From:          recordString(record, "from"),
			To:            recordString(record, "to"),
			RelationType:  recordString(record, "relationType"),
			AgentThreadID: recordString(record, "agentThreadId"),
			Timestamp:     recordString(record, "timestamp"),
			Confidence:    recordFloat(record, "confidence"),
			Importance:    recordFloat(record, "importance"),
		})
	}
	if err := relResult.Err(); err != nil {
		return nil, fmt.Errorf("read relations: %w", err)
	}

	return graph, nil
}

// Save replaces the stored graph with g in one write transaction.
func (s *Neo4jStore) Save(ctx context.Context, g *models.KnowledgeGraph) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (e:Entity) DETACH DELETE e`, nil); err != nil {
			return nil, fmt.Errorf("clear graph: %w", err)
		}

		for _, e := range g.Entities {
			params := map[string]any{
				"name":          e.Name,
				"entityType":    e.EntityType,
				"observations":  e.Observations,
				"agentThreadId": e.AgentThreadID,
				"timestamp":     e.Timestamp,
				"confidence":    e.Confidence,
				"importance":    e.Importance,
				"flagged":       e.Flagged,
				"flagReason":    e.FlagReason,
				"flaggedBy":     e.FlaggedBy,
				"observationsV2": "",
			}
			if e.ObservationsV2 != nil {
				data, err := json.Marshal(e.ObservationsV2)
				if err != nil {
					return nil, fmt.Errorf("marshal versioned observations for %q: %w", e.Name, err)
				}
				params["observationsV2"] = string(data)
			}
			_, err := tx.Run(ctx, `
				CREATE (e:Entity {
					name: $name, entityType: $entityType,
					observations: $observations, observationsV2: $observationsV2,
					agentThreadId: $agentThreadId, timestamp: $timestamp,
					confidence: $confidence, importance: $importance,
					flagged: $flagged, flagReason: $flagReason, flaggedBy: $flaggedBy
				})
			`, params)
			if err != nil {
				return nil, fmt.Errorf("create entity %q: %w", e.Name, err)
			}
		}

		for _, r := range g.Relations {
			_, err := tx.Run(ctx, `
				MATCH (a:Entity {name: $from}), (b:Entity {name: $to})
				CREATE (a)-[:RELATES {
					relationType: $relationType, agentThreadId: $agentThreadId,
					timestamp: $timestamp, confidence: $confidence, importance: $importance
				}]->(b)
			`, map[string]any{
				"from":          r.From,
				"to":            r.To,
				"relationType":  r.RelationType,
				"agentThreadId": r.AgentThreadID,
				"timestamp":     r.Timestamp,
				"confidence":    r.Confidence,
				"importance":    r.Importance,
			})
			if err != nil {
				return nil, fmt.Errorf("create relation %s->%s: %w", r.From, r.To, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// --- record helpers ---

func recordString(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func recordFloat(record *neo4j.Record, key string) float64 {
	if v, ok := record.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

func recordBool(record *neo4j.Record, key string) bool {
	if v, ok := record.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func recordStringSlice(record *neo4j.Record, key string) []string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
