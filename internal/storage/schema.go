package storage

// Schema is the SQL schema for the SQLite-backed store. The observation
// lists are kept as JSON columns: the engine always works on full graph
// snapshots, so there is nothing to gain from normalizing them.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    name            TEXT PRIMARY KEY,
    entity_type     TEXT NOT NULL,
    observations    TEXT NOT NULL DEFAULT '[]',
    observations_v2 TEXT,
    agent_thread_id TEXT NOT NULL,
    timestamp       TEXT NOT NULL,
    confidence      REAL NOT NULL,
    importance      REAL NOT NULL,
    flagged         INTEGER NOT NULL DEFAULT 0,
    flag_reason     TEXT NOT NULL DEFAULT '',
    flagged_by      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS relations (
    from_entity     TEXT NOT NULL,
    to_entity       TEXT NOT NULL,
    relation_type   TEXT NOT NULL,
    agent_thread_id TEXT NOT NULL,
    timestamp       TEXT NOT NULL,
    confidence      REAL NOT NULL,
    importance      REAL NOT NULL,
    PRIMARY KEY (from_entity, to_entity, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_entities_thread ON entities(agent_thread_id);
CREATE INDEX IF NOT EXISTS idx_relations_thread ON relations(agent_thread_id);
`
