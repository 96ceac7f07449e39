package models

// Entity represents a named, typed node in the knowledge graph. Entity names
// are globally unique across all threads; the thread id records which
// conversation authored the entity.
type Entity struct {
	Name           string        `json:"name"`
	EntityType     string        `json:"entityType"`
	Observations   []string      `json:"observations"`
	ObservationsV2 []Observation `json:"observationsV2,omitempty"`
	AgentThreadID  string        `json:"agentThreadId"`
	Timestamp      string        `json:"timestamp"`
	Confidence     float64       `json:"confidence"`
	Importance     float64       `json:"importance"`
	Flagged        bool          `json:"flagged,omitempty"`
	FlagReason     string        `json:"flagReason,omitempty"`
	FlaggedBy      string        `json:"flaggedBy,omitempty"`
}

// Observation is a versioned atomic fact attached to an entity.
// Supersedes is declared for future supersession semantics but is never
// populated by the current write paths.
type Observation struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	Timestamp     string  `json:"timestamp"`
	Version       int     `json:"version"`
	Supersedes    string  `json:"supersedes,omitempty"`
	AgentThreadID string  `json:"agentThreadId"`
	Confidence    float64 `json:"confidence"`
	Importance    float64 `json:"importance"`
}

// Relation is a directed, typed edge between two entities, scoped to the
// thread that authored it. Identity is the (from, to, relationType) triple.
type Relation struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	RelationType  string  `json:"relationType"`
	AgentThreadID string  `json:"agentThreadId"`
	Timestamp     string  `json:"timestamp"`
	Confidence    float64 `json:"confidence"`
	Importance    float64 `json:"importance"`
}

// KnowledgeGraph is a full in-memory snapshot of the persisted state.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// RelationKey identifies a relation for deletion requests.
type RelationKey struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// ObservationRequest asks to append observation contents to a named entity.
// The timestamp/confidence/importance overwrite the entity's metadata; the
// entity keeps its own thread id.
type ObservationRequest struct {
	EntityName    string   `json:"entityName"`
	Contents      []string `json:"contents"`
	AgentThreadID string   `json:"agentThreadId"`
	Timestamp     string   `json:"timestamp"`
	Confidence    float64  `json:"confidence"`
	Importance    float64  `json:"importance"`
}

// AddedObservations reports which observation strings were actually appended
// to one entity.
type AddedObservations struct {
	EntityName string   `json:"entityName"`
	Added      []string `json:"added"`
}

// AddedVersioned reports which versioned observations were appended to one
// entity.
type AddedVersioned struct {
	EntityName string        `json:"entityName"`
	Added      []Observation `json:"added"`
}

// ObservationDeletion asks to remove observation strings from a named entity.
type ObservationDeletion struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

// EntityUpdate describes a partial update for one entity. Nil score fields
// leave the current value untouched.
type EntityUpdate struct {
	Name         string   `json:"name"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Importance   *float64 `json:"importance,omitempty"`
	Observations []string `json:"observations,omitempty"`
}

// BulkUpdateResult reports the outcome of a bulk update.
type BulkUpdateResult struct {
	Updated  int      `json:"updated"`
	NotFound []string `json:"notFound"`
}

// PruneOptions controls importance/age-based pruning. A zero OlderThan or nil
// ImportanceLessThan disables that filter. ThreadID, when set, restricts
// candidates to a single thread; entities of other threads always survive.
type PruneOptions struct {
	OlderThan          string   `json:"olderThan,omitempty"`
	ImportanceLessThan *float64 `json:"importanceLessThan,omitempty"`
	KeepMinEntities    int      `json:"keepMinEntities,omitempty"`
	ThreadID           string   `json:"threadId,omitempty"`
}

// PruneResult reports how many records pruning actually removed.
type PruneResult struct {
	RemovedEntities  int `json:"removedEntities"`
	RemovedRelations int `json:"removedRelations"`
}

// QueryFilters is a conjunctive range filter over timestamp, confidence and
// importance. Timestamps are compared lexicographically.
type QueryFilters struct {
	TimestampAfter  string   `json:"timestampAfter,omitempty"`
	TimestampBefore string   `json:"timestampBefore,omitempty"`
	MinConfidence   *float64 `json:"minConfidence,omitempty"`
	MaxConfidence   *float64 `json:"maxConfidence,omitempty"`
	MinImportance   *float64 `json:"minImportance,omitempty"`
	MaxImportance   *float64 `json:"maxImportance,omitempty"`
}

// DayCount is one bucket of the recent-activity histogram.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// MemoryStats holds aggregate statistics over the whole store.
type MemoryStats struct {
	EntityCount    int            `json:"entityCount"`
	RelationCount  int            `json:"relationCount"`
	ThreadCount    int            `json:"threadCount"`
	EntityTypes    map[string]int `json:"entityTypes"`
	AvgConfidence  float64        `json:"avgConfidence"`
	AvgImportance  float64        `json:"avgImportance"`
	RecentActivity []DayCount     `json:"recentActivity"`
}

// PathResult is the outcome of a shortest-path search. Path lists entity
// names from source to target; Relations lists the edges used, preserving
// their stored direction even though traversal is undirected.
type PathResult struct {
	Found     bool       `json:"found"`
	Path      []string   `json:"path"`
	Relations []Relation `json:"relations"`
}

// ConflictPair is one pair of observation strings flagged as possibly
// contradictory.
type ConflictPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// ConflictReport lists the flagged observation pairs for one entity.
type ConflictReport struct {
	EntityName string         `json:"entityName"`
	Conflicts  []ConflictPair `json:"conflicts"`
	Reason     string         `json:"reason"`
}

// ConversationSummary describes one thread's footprint in the store.
type ConversationSummary struct {
	ThreadID      string `json:"threadId"`
	EntityCount   int    `json:"entityCount"`
	RelationCount int    `json:"relationCount"`
	FirstActivity string `json:"firstActivity"`
	LastActivity  string `json:"lastActivity"`
}

// EntityActivity classifies a recently touched entity as created or updated.
type EntityActivity struct {
	Entity Entity `json:"entity"`
	Change string `json:"change"`
}

// ConnectedEntity reports an entity's undirected relation degree, counting
// each distinct neighbor once.
type ConnectedEntity struct {
	Name      string   `json:"name"`
	Degree    int      `json:"degree"`
	Connected []string `json:"connected"`
}

// OrphanReport splits unconnected entities from entities whose relations
// point outside the thread's entity set.
type OrphanReport struct {
	NoRelations    []string `json:"no_relations"`
	BrokenRelation []string `json:"broken_relation"`
}

// ThreadAnalytics bundles the four thread-scoped analytics reports.
type ThreadAnalytics struct {
	ThreadID      string            `json:"threadId"`
	Recent        []EntityActivity  `json:"recent"`
	TopImportance []Entity          `json:"topImportance"`
	MostConnected []ConnectedEntity `json:"mostConnected"`
	Orphaned      OrphanReport      `json:"orphaned"`
}

// SaveResult is the structured outcome of the atomic validated save. When
// Success is false nothing was persisted and Errors explains why.
type SaveResult struct {
	Success          bool       `json:"success"`
	Errors           []string   `json:"errors,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	CreatedEntities  []Entity   `json:"createdEntities,omitempty"`
	CreatedRelations []Relation `json:"createdRelations,omitempty"`
}
