package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PrepareNode fills in a generated id, the default status and an empty config
// for the node's type. It rejects unknown types and mismatched configs.
func PrepareNode(n *Node) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = StatusWaiting
	}
	if n.Config == nil {
		cfg, err := NewConfig(n.Type)
		if err != nil {
			return err
		}
		n.Config = cfg
		return nil
	}
	if n.Config.Kind() != n.Type {
		return fmt.Errorf("%w: %s config on %s node %s", ErrUnknownNodeType, n.Config.Kind(), n.Type, n.ID)
	}
	return nil
}

// PrepareWorkflow readies a document for a bulk save: ids are generated where
// missing, connection refs are resolved to node ids, and the graph is checked
// for dangling connections and cycles. Refs are cleared once resolved.
func PrepareWorkflow(wf *Workflow, now time.Time) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}

	refMap := make(map[string]string)
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if err := PrepareNode(n); err != nil {
			return err
		}
		if n.Ref != "" {
			refMap[n.Ref] = n.ID
		}
	}

	for i := range wf.Connections {
		c := &wf.Connections[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.FromRef != "" {
			id, ok := refMap[c.FromRef]
			if !ok {
				return fmt.Errorf("%w: unknown fromRef %q", ErrNodeNotFound, c.FromRef)
			}
			c.From = id
		}
		if c.ToRef != "" {
			id, ok := refMap[c.ToRef]
			if !ok {
				return fmt.Errorf("%w: unknown toRef %q", ErrNodeNotFound, c.ToRef)
			}
			c.To = id
		}
	}

	if err := ValidateConnections(wf.Nodes, wf.Connections); err != nil {
		return err
	}
	if err := DetectCycle(wf.Nodes, wf.Connections); err != nil {
		return err
	}

	for i := range wf.Nodes {
		wf.Nodes[i].Ref = ""
	}
	for i := range wf.Connections {
		wf.Connections[i].FromRef = ""
		wf.Connections[i].ToRef = ""
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	return nil
}

// CheckConnection validates conn against the existing graph. When conn.ID
// matches an existing connection it is treated as a replacement.
func CheckConnection(nodes []Node, conns []Connection, conn Connection) error {
	next := make([]Connection, 0, len(conns)+1)
	replaced := false
	for _, c := range conns {
		if conn.ID != "" && c.ID == conn.ID {
			next = append(next, conn)
			replaced = true
			continue
		}
		next = append(next, c)
	}
	if !replaced {
		next = append(next, conn)
	}
	if err := ValidateConnections(nodes, []Connection{conn}); err != nil {
		return err
	}
	return DetectCycle(nodes, next)
}
