package workflow

import (
	"context"
	"errors"
)

var (
	ErrCycleDetected      = errors.New("workflow: cycle detected, graph is not acyclic")
	ErrNodeNotFound       = errors.New("workflow: node not found")
	ErrConnectionNotFound = errors.New("workflow: connection not found")
	ErrWorkflowNotFound   = errors.New("workflow: workflow not found")
	ErrUnknownNodeType    = errors.New("workflow: unknown node type")
	ErrSelfLoop           = errors.New("workflow: connection must join two different nodes")
	ErrNodeConflict       = errors.New("workflow: node id already in use")
	ErrConnectionConflict = errors.New("workflow: connection id already in use")
)

// Store defines the contract for persisting workflow documents and their execution history.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Workflow (bulk operations)
	CreateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error)
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error

	// Nodes
	AddNode(ctx context.Context, workflowID string, node *Node) (string, error)
	GetNode(ctx context.Context, nodeID string) (*Node, error)
	UpdateNode(ctx context.Context, node *Node) error
	DeleteNode(ctx context.Context, nodeID string) error
	ListNodes(ctx context.Context, workflowID string) ([]Node, error)

	// Connections
	AddConnection(ctx context.Context, workflowID string, conn *Connection) (string, error)
	GetConnection(ctx context.Context, connID string) (*Connection, error)
	UpdateConnection(ctx context.Context, conn *Connection) error
	DeleteConnection(ctx context.Context, connID string) error
	ListConnections(ctx context.Context, workflowID string) ([]Connection, error)

	// Executions
	SaveExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, workflowID string) ([]Execution, error)
}
