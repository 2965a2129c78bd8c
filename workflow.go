package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the execution state of a single node.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s ends a node's participation in a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusFailed
}

// Workflow is the editor document: a graph of tool invocations.
type Workflow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Position is the node's canvas coordinate. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents one tool invocation in the workflow graph.
// Ref is a temporary key used only during CreateWorkflow for connection wiring; it is never persisted.
type Node struct {
	ID       string
	Ref      string
	Type     NodeType
	Name     string
	Status   Status
	Position Position
	Config   ToolConfig
}

type nodeJSON struct {
	ID       string          `json:"id,omitempty"`
	Ref      string          `json:"ref,omitempty"`
	Type     NodeType        `json:"type"`
	Name     string          `json:"name"`
	Status   Status          `json:"status,omitempty"`
	Position Position        `json:"position"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// MarshalJSON encodes the node with its config as a plain object.
func (n Node) MarshalJSON() ([]byte, error) {
	raw, err := EncodeConfig(n.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Ref:      n.Ref,
		Type:     n.Type,
		Name:     n.Name,
		Status:   n.Status,
		Position: n.Position,
		Config:   raw,
	})
}

// UnmarshalJSON decodes the config variant selected by the node's type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var v nodeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	cfg, err := DecodeConfig(v.Type, v.Config)
	if err != nil {
		key := v.ID
		if key == "" {
			key = v.Ref
		}
		return fmt.Errorf("node %q: %w", key, err)
	}
	*n = Node{
		ID:       v.ID,
		Ref:      v.Ref,
		Type:     v.Type,
		Name:     v.Name,
		Status:   v.Status,
		Position: v.Position,
		Config:   cfg,
	}
	if n.Status == "" {
		n.Status = StatusWaiting
	}
	return nil
}

// AutoRun reports whether the node may take part in an automated run.
func (n Node) AutoRun() bool {
	if n.Config == nil {
		return false
	}
	return n.Config.common().AutoRun
}

// Connection is a directed edge: To depends on From completing first.
// FromRef / ToRef are temporary keys used only during CreateWorkflow; they are never persisted.
type Connection struct {
	ID       string          `json:"id,omitempty"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	FromRef  string          `json:"fromRef,omitempty"`
	ToRef    string          `json:"toRef,omitempty"`
	FromPort string          `json:"fromPort,omitempty"`
	ToPort   string          `json:"toPort,omitempty"`
	Label    string          `json:"label,omitempty"`
	Style    json.RawMessage `json:"style,omitempty"`
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the document. Configs are copied by value.
func (w *Workflow) Clone() Workflow {
	out := *w
	if w.Nodes != nil {
		out.Nodes = make([]Node, len(w.Nodes))
		for i, n := range w.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if w.Connections != nil {
		out.Connections = append([]Connection{}, w.Connections...)
	}
	return out
}

// Clone returns a copy of the node that shares no config state.
func (n Node) Clone() Node {
	n.Config = cloneConfig(n.Config)
	return n
}
