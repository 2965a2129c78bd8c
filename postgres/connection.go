package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/workflow"
)

const connColumns = `id, from_node_id, to_node_id, from_port, to_port, label, style`

func scanConnection(row pgx.Row) (workflow.Connection, error) {
	var (
		c     workflow.Connection
		style []byte
	)
	if err := row.Scan(&c.ID, &c.From, &c.To, &c.FromPort, &c.ToPort, &c.Label, &style); err != nil {
		return workflow.Connection{}, err
	}
	if len(style) > 0 {
		c.Style = json.RawMessage(style)
	}
	return c, nil
}

// styleArg stores an absent style as NULL.
func styleArg(style json.RawMessage) any {
	if len(style) == 0 {
		return nil
	}
	return []byte(style)
}

const insertConnSQL = `INSERT INTO workflow_connections (id, workflow_id, from_node_id, to_node_id, from_port, to_port, label, style)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// lockWorkflow serialises graph edits on one workflow until tx ends.
func lockWorkflow(ctx context.Context, tx pgx.Tx, workflowID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM workflows WHERE id = $1 FOR UPDATE`, workflowID).Scan(&id)
	if isNoRows(err) {
		return fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return fmt.Errorf("workflow: lock %s: %w", workflowID, err)
	}
	return nil
}

// checkGraph validates conn against the workflow's current nodes and connections.
func checkGraph(ctx context.Context, tx pgx.Tx, workflowID string, conn workflow.Connection) error {
	nodes, err := listNodes(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	conns, err := listConnections(ctx, tx, workflowID)
	if err != nil {
		return err
	}
	return workflow.CheckConnection(nodes, conns, conn)
}

// AddConnection inserts a single connection into a workflow.
// If conn.ID is empty, a UUID is auto-generated.
// Validates that adding this connection does not create a cycle.
// Returns the connection ID (generated or provided).
func (s *PGStore) AddConnection(ctx context.Context, workflowID string, conn *workflow.Connection) (string, error) {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockWorkflow(ctx, tx, workflowID); err != nil {
		return "", err
	}
	if err := checkGraph(ctx, tx, workflowID, *conn); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, insertConnSQL,
		conn.ID, workflowID, conn.From, conn.To, conn.FromPort, conn.ToPort, conn.Label, styleArg(conn.Style))
	if err != nil {
		if uniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", workflow.ErrConnectionConflict, conn.ID)
		}
		return "", fmt.Errorf("workflow: insert connection: %w", err)
	}
	if err := touch(ctx, tx, workflowID); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("workflow: commit: %w", err)
	}
	conn.FromRef, conn.ToRef = "", ""
	return conn.ID, nil
}

// GetConnection fetches a single connection by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetConnection(ctx context.Context, connID string) (*workflow.Connection, error) {
	c, err := scanConnection(s.db.QueryRow(ctx,
		`SELECT `+connColumns+` FROM workflow_connections WHERE id = $1`, connID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get connection: %w", err)
	}
	return &c, nil
}

// UpdateConnection rewires an existing connection and replaces its metadata.
// Validates that the update does not create a cycle.
// Returns ErrConnectionNotFound if the connection doesn't exist.
func (s *PGStore) UpdateConnection(ctx context.Context, conn *workflow.Connection) error {
	var workflowID string
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id FROM workflow_connections WHERE id = $1`, conn.ID,
	).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return workflow.ErrConnectionNotFound
		}
		return fmt.Errorf("workflow: find connection: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockWorkflow(ctx, tx, workflowID); err != nil {
		return err
	}
	if err := checkGraph(ctx, tx, workflowID, *conn); err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE workflow_connections
		 SET from_node_id = $1, to_node_id = $2, from_port = $3, to_port = $4, label = $5, style = $6
		 WHERE id = $7`,
		conn.From, conn.To, conn.FromPort, conn.ToPort, conn.Label, styleArg(conn.Style), conn.ID,
	)
	if err != nil {
		return fmt.Errorf("workflow: update connection: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return workflow.ErrConnectionNotFound
	}
	if err := touch(ctx, tx, workflowID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit: %w", err)
	}
	conn.FromRef, conn.ToRef = "", ""
	return nil
}

// DeleteConnection deletes a connection by its ID.
// No error if the connection doesn't exist.
func (s *PGStore) DeleteConnection(ctx context.Context, connID string) error {
	var workflowID string
	err := s.db.QueryRow(ctx,
		`DELETE FROM workflow_connections WHERE id = $1 RETURNING workflow_id`, connID).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return nil
		}
		return fmt.Errorf("workflow: delete connection: %w", err)
	}
	return touch(ctx, s.db, workflowID)
}

// ListConnections returns all connections for a workflow in insertion order.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListConnections(ctx context.Context, workflowID string) ([]workflow.Connection, error) {
	return listConnections(ctx, s.db, workflowID)
}

func listConnections(ctx context.Context, q querier, workflowID string) ([]workflow.Connection, error) {
	rows, err := q.Query(ctx,
		`SELECT `+connColumns+` FROM workflow_connections WHERE workflow_id = $1 ORDER BY seq`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list connections: %w", err)
	}
	defer rows.Close()

	conns := []workflow.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows connections: %w", err)
	}
	return conns, nil
}
