package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/models"
)

const (
	threadFilePrefix = "thread_"
	threadFileSuffix = ".jsonl"

	// Generous line limit; observations are capped at 150 chars but legacy
	// data may carry longer lines.
	maxLineBytes = 1 << 20
)

// FileStore persists the graph as one line-delimited JSON file per thread
// under a single directory. Each line is one record with a "type"
// discriminator of "entity" or "relation".
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the state directory if needed and returns a store.
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &FileStore{dir: dir, log: log}, nil
}

// Close implements Store. The file store holds no open handles.
func (s *FileStore) Close() error { return nil }

// Load enumerates every thread file and merges the records into one graph.
// Malformed lines and records missing required fields are skipped with a
// warning; a missing directory yields an empty graph.
func (s *FileStore) Load(_ context.Context) (*models.KnowledgeGraph, error) {
	graph := &models.KnowledgeGraph{}

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return graph, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, threadFilePrefix) || !strings.HasSuffix(name, threadFileSuffix) {
			continue
		}
		if err := s.loadFile(filepath.Join(s.dir, name), graph); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func (s *FileStore) loadFile(path string, graph *models.KnowledgeGraph) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thread file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.decodeLine(path, lineNo, []byte(line), graph)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

// decodeLine parses one persisted record. Every failure here is a skippable
// data failure: the line is dropped with a warning and loading continues.
func (s *FileStore) decodeLine(path string, lineNo int, line []byte, graph *models.KnowledgeGraph) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		s.log.Warn("skipping malformed line",
			zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
		return
	}

	switch probe.Type {
	case "entity":
		e, err := decodeEntity(line)
		if err != nil {
			s.log.Warn("skipping invalid entity record",
				zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
			return
		}
		graph.Entities = append(graph.Entities, *e)
	case "relation":
		r, err := decodeRelation(line)
		if err != nil {
			s.log.Warn("skipping invalid relation record",
				zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
			return
		}
		graph.Relations = append(graph.Relations, *r)
	default:
		s.log.Warn("skipping record with unknown type",
			zap.String("file", path), zap.Int("line", lineNo), zap.String("type", probe.Type))
	}
}

// decodeEntity unmarshals an entity line strictly: required fields must be
// present with the right type, never defaulted.
func decodeEntity(line []byte) (*models.Entity, error) {
	var raw struct {
		Name           *string              `json:"name"`
		EntityType     *string              `json:"entityType"`
		Observations   []string             `json:"observations"`
		ObservationsV2 []models.Observation `json:"observationsV2"`
		AgentThreadID  *string              `json:"agentThreadId"`
		Timestamp      *string              `json:"timestamp"`
		Confidence     *float64             `json:"confidence"`
		Importance     *float64             `json:"importance"`
		Flagged        bool                 `json:"flagged"`
		FlagReason     string               `json:"flagReason"`
		FlaggedBy      string               `json:"flaggedBy"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	switch {
	case raw.Name == nil || *raw.Name == "":
		return nil, fmt.Errorf("missing name")
	case raw.EntityType == nil || *raw.EntityType == "":
		return nil, fmt.Errorf("missing entityType")
	case raw.AgentThreadID == nil || *raw.AgentThreadID == "":
		return nil, fmt.Errorf("missing agentThreadId")
	case raw.Timestamp == nil || *raw.Timestamp == "":
		return nil, fmt.Errorf("missing timestamp")
	case raw.Confidence == nil:
		return nil, fmt.Errorf("missing confidence")
	case raw.Importance == nil:
		return nil, fmt.Errorf("missing importance")
	}
	return &models.Entity{
		Name:           *raw.Name,
		EntityType:     *raw.EntityType,
		Observations:   raw.Observations,
		ObservationsV2: raw.ObservationsV2,
		AgentThreadID:  *raw.AgentThreadID,
		Timestamp:      *raw.Timestamp,
		Confidence:     *raw.Confidence,
		Importance:     *raw.Importance,
		Flagged:        raw.Flagged,
		FlagReason:     raw.FlagReason,
		FlaggedBy:      raw.FlaggedBy,
	}, nil
}

// decodeRelation unmarshals a relation line with the same strictness.
func decodeRelation(line []byte) (*models.Relation, error) {
	var raw struct {
		From          *string  `json:"from"`
		To            *string  `json:"to"`
		RelationType  *string  `json:"relationType"`
		AgentThreadID *string  `json:"agentThreadId"`
		Timestamp     *string  `json:"timestamp"`
		Confidence    *float64 `json:"confidence"`
		Importance    *float64 `json:"importance"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	switch {
	case raw.From == nil || *raw.From == "":
		return nil, fmt.Errorf("missing from")
	case raw.To == nil || *raw.To == "":
		return nil, fmt.Errorf("missing to")
	case raw.RelationType == nil || *raw.RelationType == "":
		return nil, fmt.Errorf("missing relationType")
	case raw.AgentThreadID == nil || *raw.AgentThreadID == "":
		return nil, fmt.Errorf("missing agentThreadId")
	case raw.Timestamp == nil || *raw.Timestamp == "":
		return nil, fmt.Errorf("missing timestamp")
	case raw.Confidence == nil:
		return nil, fmt.Errorf("missing confidence")
	case raw.Importance == nil:
		return nil, fmt.Errorf("missing importance")
	}
	return &models.Relation{
		From:          *raw.From,
		To:            *raw.To,
		RelationType:  *raw.RelationType,
		AgentThreadID: *raw.AgentThreadID,
		Timestamp:     *raw.Timestamp,
		Confidence:    *raw.Confidence,
		Importance:    *raw.Importance,
	}, nil
}

type threadGroup struct {
	entities  []models.Entity
	relations []models.Relation
}

// Save writes the whole graph, one file per thread, and removes thread files
// that no longer correspond to a non-empty group. Cleanup failures are
// logged but never fail the save.
func (s *FileStore) Save(_ context.Context, g *models.KnowledgeGraph) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	groups := make(map[string]*threadGroup)
	group := func(threadID string) *threadGroup {
		tg, ok := groups[threadID]
		if !ok {
			tg = &threadGroup{}
			groups[threadID] = tg
		}
		return tg
	}
	for _, e := range g.Entities {
		tg := group(e.AgentThreadID)
		tg.entities = append(tg.entities, e)
	}
	for _, r := range g.Relations {
		tg := group(r.AgentThreadID)
		tg.relations = append(tg.relations, r)
	}

	expected := make(map[string]bool, len(groups))
	for threadID, tg := range groups {
		name := threadFileName(threadID)
		expected[name] = true
		if err := s.writeThreadFile(filepath.Join(s.dir, name), tg); err != nil {
			return err
		}
	}

	// Full reconciliation: files for threads absent from the graph are
	// deleted, not left behind, so a removed thread cannot resurrect on
	// the next load.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read memory dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, threadFilePrefix) || !strings.HasSuffix(name, threadFileSuffix) {
			continue
		}
		if expected[name] {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn("failed to remove stale thread file",
				zap.String("file", name), zap.Error(err))
		}
	}
	return nil
}

func (s *FileStore) writeThreadFile(path string, tg *threadGroup) error {
	var buf strings.Builder
	for _, e := range tg.entities {
		line, err := json.Marshal(struct {
			Type string `json:"type"`
			models.Entity
		}{Type: "entity", Entity: e})
		if err != nil {
			return fmt.Errorf("marshal entity %q: %w", e.Name, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	for _, r := range tg.relations {
		line, err := json.Marshal(struct {
			Type string `json:"type"`
			models.Relation
		}{Type: "relation", Relation: r})
		if err != nil {
			return fmt.Errorf("marshal relation %s->%s: %w", r.From, r.To, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write thread file: %w", err)
	}
	return nil
}

// threadFileName maps a thread id onto a stable file name. Path-hostile
// bytes are percent-encoded so that distinct thread ids can never collide
// onto the same file.
func threadFileName(threadID string) string {
	var b strings.Builder
	for i := 0; i < len(threadID); i++ {
		c := threadID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return threadFilePrefix + b.String() + threadFileSuffix
}
