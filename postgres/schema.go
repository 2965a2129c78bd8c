package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_nodes (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    type        TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'waiting',
    pos_x       DOUBLE PRECISION NOT NULL DEFAULT 0,
    pos_y       DOUBLE PRECISION NOT NULL DEFAULT 0,
    config      JSONB NOT NULL DEFAULT '{}',
    seq         BIGSERIAL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_connections (
    id           TEXT PRIMARY KEY,
    workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    from_node_id TEXT NOT NULL REFERENCES workflow_nodes(id) ON DELETE CASCADE,
    to_node_id   TEXT NOT NULL REFERENCES workflow_nodes(id) ON DELETE CASCADE,
    from_port    TEXT NOT NULL DEFAULT '',
    to_port      TEXT NOT NULL DEFAULT '',
    label        TEXT NOT NULL DEFAULT '',
    style        JSONB,
    seq          BIGSERIAL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_executions (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    status      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    record      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_nodes_workflow_id       ON workflow_nodes(workflow_id);
CREATE INDEX IF NOT EXISTS idx_workflow_connections_workflow_id ON workflow_connections(workflow_id);
CREATE INDEX IF NOT EXISTS idx_workflow_connections_from        ON workflow_connections(from_node_id);
CREATE INDEX IF NOT EXISTS idx_workflow_connections_to          ON workflow_connections(to_node_id);
CREATE INDEX IF NOT EXISTS idx_workflow_executions_workflow_id  ON workflow_executions(workflow_id, started_at);
`

// CreateSchema creates the workflow tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops every workflow table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`DROP TABLE IF EXISTS workflow_executions, workflow_connections, workflow_nodes, workflows CASCADE;`)
	return err
}
