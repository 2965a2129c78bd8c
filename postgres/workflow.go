package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/meikuraledutech/workflow"
)

// CreateWorkflow saves a full document (nodes + connections) in one transaction.
// Nodes/connections without IDs get auto-generated UUIDs and connection refs
// (fromRef/toRef) are resolved to real node IDs. An existing document with
// the same ID is replaced; its execution history is kept.
// Returns the document with all IDs filled in.
func (s *PGStore) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if wf.ID != "" {
		var created time.Time
		err := tx.QueryRow(ctx,
			`SELECT created_at FROM workflows WHERE id = $1 FOR UPDATE`, wf.ID).Scan(&created)
		switch {
		case err == nil:
			wf.CreatedAt = created
		case !isNoRows(err):
			return nil, fmt.Errorf("workflow: lock %s: %w", wf.ID, err)
		}
	}
	if err := workflow.PrepareWorkflow(wf, time.Now().UTC()); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO workflows (id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at`,
		wf.ID, wf.Name, wf.Description, wf.CreatedAt, wf.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("workflow: upsert workflow: %w", err)
	}

	// Replace semantics: connections go with their nodes.
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, wf.ID); err != nil {
		return nil, fmt.Errorf("workflow: delete nodes: %w", err)
	}

	for i := range wf.Nodes {
		args, err := nodeArgs(wf.ID, &wf.Nodes[i])
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, insertNodeSQL, args...); err != nil {
			if uniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", workflow.ErrNodeConflict, wf.Nodes[i].ID)
			}
			return nil, fmt.Errorf("workflow: insert node %s: %w", wf.Nodes[i].ID, err)
		}
	}

	for _, c := range wf.Connections {
		if _, err := tx.Exec(ctx, insertConnSQL,
			c.ID, wf.ID, c.From, c.To, c.FromPort, c.ToPort, c.Label, styleArg(c.Style),
		); err != nil {
			if uniqueViolation(err) {
				return nil, fmt.Errorf("%w: %s", workflow.ErrConnectionConflict, c.ID)
			}
			return nil, fmt.Errorf("workflow: insert connection %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workflow: commit: %w", err)
	}
	return wf, nil
}

// GetWorkflow retrieves a full document by its ID.
// Returns nil, nil if the workflow doesn't exist.
func (s *PGStore) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	wf := &workflow.Workflow{ID: workflowID}
	err := s.db.QueryRow(ctx,
		`SELECT name, description, created_at, updated_at FROM workflows WHERE id = $1`, workflowID,
	).Scan(&wf.Name, &wf.Description, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: get workflow: %w", err)
	}

	if wf.Nodes, err = listNodes(ctx, s.db, workflowID); err != nil {
		return nil, err
	}
	if wf.Connections, err = listConnections(ctx, s.db, workflowID); err != nil {
		return nil, err
	}
	return wf, nil
}

// ListWorkflows returns document metadata without nodes or connections.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("workflow: list workflows: %w", err)
	}
	defer rows.Close()

	out := []workflow.Workflow{}
	for rows.Next() {
		var wf workflow.Workflow
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("workflow: scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows workflows: %w", err)
	}
	return out, nil
}

// DeleteWorkflow removes a document with its nodes, connections and history.
// No error if the workflowID doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, workflowID); err != nil {
		return fmt.Errorf("workflow: delete workflow: %w", err)
	}
	return nil
}
