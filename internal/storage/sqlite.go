package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
)

// SQLiteStore persists the graph in a single SQLite database. It keeps the
// same full-reconciliation contract as the file store: Save runs one
// transaction that clears both tables and reinserts the graph.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the memory database under dir and runs the
// schema migration.
func OpenSQLite(dir string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	dbPath := filepath.Join(dir, "memory.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate memory db: %w", err)
	}
	return &SQLiteStore{db: db, log: log}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the complete graph. Rows whose JSON columns fail to parse are
// skipped with a warning.
func (s *SQLiteStore) Load(ctx context.Context) (*models.KnowledgeGraph, error) {
	graph := &models.KnowledgeGraph{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, entity_type, observations, observations_v2, agent_thread_id,
		        timestamp, confidence, importance, flagged, flag_reason, flagged_by
		 FROM entities ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Entity
		var obsJSON string
		var obsV2JSON sql.NullString
		if err := rows.Scan(&e.Name, &e.EntityType, &obsJSON, &obsV2JSON, &e.AgentThreadID,
			&e.Timestamp, &e.Confidence, &e.Importance, &e.Flagged, &e.FlagReason, &e.FlaggedBy); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if err := json.Unmarshal([]byte(obsJSON), &e.Observations); err != nil {
			s.log.Warn("skipping entity with malformed observations",
				zap.String("entity", e.Name), zap.Error(err))
			continue
		}
		if obsV2JSON.Valid && obsV2JSON.String != "" {
			if err := json.Unmarshal([]byte(obsV2JSON.String), &e.ObservationsV2); err != nil {
				s.log.Warn("skipping entity with malformed versioned observations",
					zap.String("entity", e.Name), zap.Error(err))
				continue
			}
		}
		graph.Entities = append(graph.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	relRows, err := s.db.QueryContext(ctx,
		`SELECT from_entity, to_entity, relation_type, agent_thread_id,
		        timestamp, confidence, importance
		 FROM relations ORDER BY from_entity, to_entity`,
	)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var r models.Relation
		if err := relRows.Scan(&r.From, &r.To, &r.RelationType, &r.AgentThreadID,
			&r.Timestamp, &r.Confidence, &r.Importance); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		graph.Relations = append(graph.Relations, r)
	}
	if err := relRows.Err(); err != nil {
		return nil, err
	}

	return graph, nil
}

// Save replaces the persisted state with g in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, g *models.KnowledgeGraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relations`); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}

	for _, e := range g.Entities {
		obsJSON, err := json.Marshal(e.Observations)
		if err != nil {
			return fmt.Errorf("marshal observations for %q: %w", e.Name, err)
		}
		var obsV2JSON sql.NullString
		if e.ObservationsV2 != nil {
			data, err := json.Marshal(e.ObservationsV2)
			if err != nil {
				return fmt.Errorf("marshal versioned observations for %q: %w", e.Name, err)
			}
			obsV2JSON = sql.NullString{String: string(data), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (name, entity_type, observations, observations_v2, agent_thread_id,
			                       timestamp, confidence, importance, flagged, flag_reason, flagged_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Name, e.EntityType, string(obsJSON), obsV2JSON, e.AgentThreadID,
			e.Timestamp, e.Confidence, e.Importance, e.Flagged, e.FlagReason, e.FlaggedBy,
		)
		if err != nil {
			return fmt.Errorf("insert entity %q: %w", e.Name, err)
		}
	}

	for _, r := range g.Relations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO relations (from_entity, to_entity, relation_type, agent_thread_id,
			                        timestamp, confidence, importance)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.From, r.To, r.RelationType, r.AgentThreadID,
			r.Timestamp, r.Confidence, r.Importance,
		)
		if err != nil {
			return fmt.Errorf("insert relation %s->%s: %w", r.From, r.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
