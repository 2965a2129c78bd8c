package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/workflow"
)

// SaveExecution archives a run record. Saving the same ID again replaces it.
func (s *PGStore) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	record, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("workflow: encode execution %s: %w", exec.ID, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, status, started_at, record)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record`,
		exec.ID, exec.WorkflowID, string(exec.Status), exec.StartTime, record,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, exec.WorkflowID)
		}
		return fmt.Errorf("workflow: save execution: %w", err)
	}
	return nil
}

// ListExecutions returns the archived runs of a workflow, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at, id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list executions: %w", err)
	}
	defer rows.Close()

	out := []workflow.Execution{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("workflow: scan execution: %w", err)
		}
		var exec workflow.Execution
		if err := json.Unmarshal(raw, &exec); err != nil {
			return nil, fmt.Errorf("workflow: decode execution: %w", err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: rows executions: %w", err)
	}
	return out, nil
}
