// Package memory is an in-process workflow.Store for tests and for running
// without a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

var _ workflow.Store = (*Store)(nil)

// Store keeps documents and execution history in maps guarded by one RWMutex.
// Slices preserve insertion order like ORDER BY created_at does in Postgres.
type Store struct {
	mu         sync.RWMutex
	order      []string
	workflows  map[string]*workflow.Workflow
	nodeOwner  map[string]string
	connOwner  map[string]string
	executions map[string][]workflow.Execution
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	s := &Store{now: time.Now}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.order = nil
	s.workflows = make(map[string]*workflow.Workflow)
	s.nodeOwner = make(map[string]string)
	s.connOwner = make(map[string]string)
	s.executions = make(map[string][]workflow.Execution)
}

// CreateSchema is a no-op; the maps exist from New.
func (s *Store) CreateSchema(ctx context.Context) error {
	return nil
}

// DropSchema discards everything.
func (s *Store) DropSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// CreateWorkflow saves a full document, replacing any existing one with the same id.
func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.workflows[wf.ID]; ok && wf.ID != "" {
		wf.CreatedAt = old.CreatedAt
	}
	if err := workflow.PrepareWorkflow(wf, s.now()); err != nil {
		return nil, err
	}
	for _, n := range wf.Nodes {
		if owner, ok := s.nodeOwner[n.ID]; ok && owner != wf.ID {
			return nil, fmt.Errorf("%w: %s belongs to workflow %s", workflow.ErrNodeConflict, n.ID, owner)
		}
	}
	for _, c := range wf.Connections {
		if owner, ok := s.connOwner[c.ID]; ok && owner != wf.ID {
			return nil, fmt.Errorf("%w: %s belongs to workflow %s", workflow.ErrConnectionConflict, c.ID, owner)
		}
	}

	if old, ok := s.workflows[wf.ID]; ok {
		s.forget(old)
	} else {
		s.order = append(s.order, wf.ID)
	}
	cp := wf.Clone()
	s.workflows[wf.ID] = &cp
	for _, n := range cp.Nodes {
		s.nodeOwner[n.ID] = cp.ID
	}
	for _, c := range cp.Connections {
		s.connOwner[c.ID] = cp.ID
	}
	return wf, nil
}

// forget drops the node and connection index entries of wf.
func (s *Store) forget(wf *workflow.Workflow) {
	for _, n := range wf.Nodes {
		delete(s.nodeOwner, n.ID)
	}
	for _, c := range wf.Connections {
		delete(s.connOwner, c.ID)
	}
}

// GetWorkflow returns nil, nil when the workflow does not exist.
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, nil
	}
	cp := wf.Clone()
	if cp.Nodes == nil {
		cp.Nodes = []workflow.Node{}
	}
	if cp.Connections == nil {
		cp.Connections = []workflow.Connection{}
	}
	return &cp, nil
}

// ListWorkflows returns document metadata in creation order.
func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Workflow, 0, len(s.order))
	for _, id := range s.order {
		wf := s.workflows[id]
		out = append(out, workflow.Workflow{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			CreatedAt:   wf.CreatedAt,
			UpdatedAt:   wf.UpdatedAt,
		})
	}
	return out, nil
}

// DeleteWorkflow removes a document and its history. Missing ids are not an error.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil
	}
	s.forget(wf)
	delete(s.workflows, workflowID)
	delete(s.executions, workflowID)
	for i, id := range s.order {
		if id == workflowID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) touch(wf *workflow.Workflow) {
	wf.UpdatedAt = s.now()
}

// AddNode appends a node to an existing workflow.
func (s *Store) AddNode(ctx context.Context, workflowID string, node *workflow.Node) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return "", fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
	}
	if err := workflow.PrepareNode(node); err != nil {
		return "", err
	}
	if _, dup := s.nodeOwner[node.ID]; dup {
		return "", fmt.Errorf("%w: %s", workflow.ErrNodeConflict, node.ID)
	}
	node.Ref = ""
	wf.Nodes = append(wf.Nodes, node.Clone())
	s.nodeOwner[node.ID] = workflowID
	s.touch(wf)
	return node.ID, nil
}

func (s *Store) findNode(nodeID string) (*workflow.Workflow, int) {
	wfID, ok := s.nodeOwner[nodeID]
	if !ok {
		return nil, -1
	}
	wf := s.workflows[wfID]
	for i := range wf.Nodes {
		if wf.Nodes[i].ID == nodeID {
			return wf, i
		}
	}
	return nil, -1
}

// GetNode returns nil, nil when the node does not exist.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*workflow.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, i := s.findNode(nodeID)
	if wf == nil {
		return nil, nil
	}
	n := wf.Nodes[i].Clone()
	return &n, nil
}

// UpdateNode replaces a node's fields. Returns ErrNodeNotFound if it doesn't exist.
func (s *Store) UpdateNode(ctx context.Context, node *workflow.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, i := s.findNode(node.ID)
	if wf == nil {
		return workflow.ErrNodeNotFound
	}
	if err := workflow.PrepareNode(node); err != nil {
		return err
	}
	node.Ref = ""
	wf.Nodes[i] = node.Clone()
	s.touch(wf)
	return nil
}

// DeleteNode removes a node and every connection touching it.
func (s *Store) DeleteNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, i := s.findNode(nodeID)
	if wf == nil {
		return nil
	}
	wf.Nodes = append(wf.Nodes[:i], wf.Nodes[i+1:]...)
	delete(s.nodeOwner, nodeID)

	kept := wf.Connections[:0]
	for _, c := range wf.Connections {
		if c.From == nodeID || c.To == nodeID {
			delete(s.connOwner, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	wf.Connections = kept
	s.touch(wf)
	return nil
}

// ListNodes returns the nodes of a workflow, or an empty slice.
func (s *Store) ListNodes(ctx context.Context, workflowID string) ([]workflow.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return []workflow.Node{}, nil
	}
	out := make([]workflow.Node, len(wf.Nodes))
	for i, n := range wf.Nodes {
		out[i] = n.Clone()
	}
	return out, nil
}

// AddConnection appends a connection after checking it keeps the graph acyclic.
func (s *Store) AddConnection(ctx context.Context, workflowID string, conn *workflow.Connection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return "", fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if _, dup := s.connOwner[conn.ID]; dup {
		return "", fmt.Errorf("%w: %s", workflow.ErrConnectionConflict, conn.ID)
	}
	if err := workflow.CheckConnection(wf.Nodes, wf.Connections, *conn); err != nil {
		return "", err
	}
	conn.FromRef, conn.ToRef = "", ""
	wf.Connections = append(wf.Connections, *conn)
	s.connOwner[conn.ID] = workflowID
	s.touch(wf)
	return conn.ID, nil
}

func (s *Store) findConnection(connID string) (*workflow.Workflow, int) {
	wfID, ok := s.connOwner[connID]
	if !ok {
		return nil, -1
	}
	wf := s.workflows[wfID]
	for i := range wf.Connections {
		if wf.Connections[i].ID == connID {
			return wf, i
		}
	}
	return nil, -1
}

// GetConnection returns nil, nil when the connection does not exist.
func (s *Store) GetConnection(ctx context.Context, connID string) (*workflow.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, i := s.findConnection(connID)
	if wf == nil {
		return nil, nil
	}
	c := wf.Connections[i]
	return &c, nil
}

// UpdateConnection rewires a connection. Returns ErrConnectionNotFound if it doesn't exist.
func (s *Store) UpdateConnection(ctx context.Context, conn *workflow.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, i := s.findConnection(conn.ID)
	if wf == nil {
		return workflow.ErrConnectionNotFound
	}
	if err := workflow.CheckConnection(wf.Nodes, wf.Connections, *conn); err != nil {
		return err
	}
	conn.FromRef, conn.ToRef = "", ""
	wf.Connections[i] = *conn
	s.touch(wf)
	return nil
}

// DeleteConnection removes a connection. Missing ids are not an error.
func (s *Store) DeleteConnection(ctx context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, i := s.findConnection(connID)
	if wf == nil {
		return nil
	}
	wf.Connections = append(wf.Connections[:i], wf.Connections[i+1:]...)
	delete(s.connOwner, connID)
	s.touch(wf)
	return nil
}

// ListConnections returns the connections of a workflow, or an empty slice.
func (s *Store) ListConnections(ctx context.Context, workflowID string) ([]workflow.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return []workflow.Connection{}, nil
	}
	return append([]workflow.Connection{}, wf.Connections...), nil
}

// SaveExecution archives a finished run. Saving the same id again replaces it.
func (s *Store) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[exec.WorkflowID]; !ok {
		return fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, exec.WorkflowID)
	}
	list := s.executions[exec.WorkflowID]
	for i := range list {
		if list[i].ID == exec.ID {
			list[i] = exec.Clone()
			return nil
		}
	}
	s.executions[exec.WorkflowID] = append(list, exec.Clone())
	return nil
}

// ListExecutions returns archived runs of a workflow, oldest first.
func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.executions[workflowID]
	out := make([]workflow.Execution, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out, nil
}
