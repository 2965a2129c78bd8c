package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/workflow"
)

const nodeColumns = `id, type, name, status, pos_x, pos_y, config`

func scanNode(row pgx.Row) (workflow.Node, error) {
	var (
		n           workflow.Node
		typ, status string
		raw         []byte
	)
	if err := row.Scan(&n.ID, &typ, &n.Name, &status, &n.Position.X, &n.Position.Y, &raw); err != nil {
		return workflow.Node{}, err
	}
	n.Type, n.Status = workflow.NodeType(typ), workflow.Status(status)
	cfg, err := workflow.DecodeConfig(n.Type, raw)
	if err != nil {
		return workflow.Node{}, fmt.Errorf("workflow: decode node %s: %w", n.ID, err)
	}
	n.Config = cfg
	return n, nil
}

func nodeArgs(workflowID string, n *workflow.Node) ([]any, error) {
	raw, err := workflow.EncodeConfig(n.Config)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode node %s: %w", n.ID, err)
	}
	return []any{n.ID, workflowID, string(n.Type), n.Name, string(n.Status), n.Position.X, n.Position.Y, []byte(raw)}, nil
}

const insertNodeSQL = `INSERT INTO workflow_nodes (id, workflow_id, type, name, status, pos_x, pos_y, config)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// AddNode inserts a single node into a workflow.
// If node.ID is empty, a UUID is auto-generated.
// Returns the node ID (generated or provided).
func (s *PGStore) AddNode(ctx context.Context, workflowID string, node *workflow.Node) (string, error) {
	if err := workflow.PrepareNode(node); err != nil {
		return "", err
	}
	node.Ref = ""
	args, err := nodeArgs(workflowID, node)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertNodeSQL, args...); err != nil {
		if foreignKeyViolation(err) {
			return "", fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
		}
		if uniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", workflow.ErrNodeConflict, node.ID)
		}
		return "", fmt.Errorf("workflow: insert node: %w", err)
	}
	if err := touch(ctx, tx, workflowID); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("workflow: commit: %w", err)
	}
	return node.ID, nil
}

// GetNode fetches a single node by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetNode(ctx context.Context, nodeID string) (*workflow.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM workflow_nodes WHERE id = $1`, nodeID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get node: %w", err)
	}
	return &n, nil
}

// UpdateNode replaces the fields of an existing node.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) UpdateNode(ctx context.Context, node *workflow.Node) error {
	if err := workflow.PrepareNode(node); err != nil {
		return err
	}
	node.Ref = ""
	raw, err := workflow.EncodeConfig(node.Config)
	if err != nil {
		return fmt.Errorf("workflow: encode node %s: %w", node.ID, err)
	}

	var workflowID string
	err = s.db.QueryRow(ctx,
		`UPDATE workflow_nodes SET type = $1, name = $2, status = $3, pos_x = $4, pos_y = $5, config = $6
		 WHERE id = $7 RETURNING workflow_id`,
		string(node.Type), node.Name, string(node.Status), node.Position.X, node.Position.Y, []byte(raw), node.ID,
	).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return workflow.ErrNodeNotFound
		}
		return fmt.Errorf("workflow: update node: %w", err)
	}
	return touch(ctx, s.db, workflowID)
}

// DeleteNode deletes a node by its ID.
// Associated connections are cascade-deleted by the DB.
// No error if the node doesn't exist.
func (s *PGStore) DeleteNode(ctx context.Context, nodeID string) error {
	var workflowID string
	err := s.db.QueryRow(ctx,
		`DELETE FROM workflow_nodes WHERE id = $1 RETURNING workflow_id`, nodeID).Scan(&workflowID)
	if err != nil {
		if isNoRows(err) {
			return nil
		}
		return fmt.Errorf("workflow: delete node: %w", err)
	}
	return touch(ctx, s.db, workflowID)
}

// ListNodes returns all nodes for a workflow in insertion order.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListNodes(ctx context.Context, workflowID string) ([]workflow.Node, error) {
	return listNodes(ctx, s.db, workflowID)
}

func listNodes(ctx context.Context, q querier, workflowID string) ([]workflow.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT `+nodeColumns+` FROM workflow_nodes WHERE workflow_id = $1 ORDER BY seq`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []workflow.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows nodes: %w", err)
	}
	return nodes, nil
}
