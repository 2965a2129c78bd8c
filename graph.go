package workflow

import (
	"fmt"
	"strings"
)

// CycleError names the nodes that form a dependency cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle involving nodes %s", strings.Join(e.Nodes, ", "))
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// InDegree counts the incoming connections of every node.
func InDegree(nodes []Node, conns []Connection) map[string]int {
	indeg := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = 0
	}
	for _, c := range conns {
		indeg[c.To]++
	}
	return indeg
}

// Predecessors maps each node id to the ids it depends on, in connection order.
func Predecessors(conns []Connection) map[string][]string {
	in := make(map[string][]string)
	for _, c := range conns {
		in[c.To] = append(in[c.To], c.From)
	}
	return in
}

// Successors maps each node id to the ids that depend on it, in connection order.
func Successors(conns []Connection) map[string][]string {
	out := make(map[string][]string)
	for _, c := range conns {
		out[c.From] = append(out[c.From], c.To)
	}
	return out
}

// StartNodes returns the nodes with no incoming connections, in declaration order.
func StartNodes(nodes []Node, conns []Connection) []string {
	indeg := InDegree(nodes, conns)
	var out []string
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// ExecutionOrder is Kahn's topological sort seeded in declaration order.
// Nodes on a cycle never reach in-degree zero and are left out of the result;
// use Resolve to reject such graphs instead.
func ExecutionOrder(nodes []Node, conns []Connection) []string {
	indeg := InDegree(nodes, conns)
	out := Successors(conns)

	q := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			q = append(q, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(q) > 0 {
		v := q[0]
		q = q[1:]
		order = append(order, v)
		for _, u := range out[v] {
			indeg[u]--
			if indeg[u] == 0 {
				q = append(q, u)
			}
		}
	}
	return order
}

// DetectCycle checks the connections for a cycle using DFS and returns a
// *CycleError naming the nodes on the first cycle found.
func DetectCycle(nodes []Node, conns []Connection) error {
	adj := Successors(conns)

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	ids := make([]string, 0, len(nodes))
	state := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if _, ok := state[n.ID]; !ok {
			ids = append(ids, n.ID)
		}
		state[n.ID] = unvisited
	}
	// Also include nodes referenced only in connections.
	for _, c := range conns {
		for _, id := range []string{c.From, c.To} {
			if _, ok := state[id]; !ok {
				ids = append(ids, id)
				state[id] = unvisited
			}
		}
	}

	var stack []string
	var dfs func(id string) []string
	dfs = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						return append([]string(nil), stack[i:]...)
					}
				}
			case unvisited:
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return nil
	}

	for _, id := range ids {
		if state[id] == unvisited {
			if cycle := dfs(id); cycle != nil {
				return &CycleError{Nodes: cycle}
			}
		}
	}
	return nil
}

// Resolve returns the execution order, rejecting cyclic graphs.
func Resolve(nodes []Node, conns []Connection) ([]string, error) {
	if err := DetectCycle(nodes, conns); err != nil {
		return nil, err
	}
	return ExecutionOrder(nodes, conns), nil
}

// ValidateConnections checks that every connection joins two distinct, known nodes.
func ValidateConnections(nodes []Node, conns []Connection) error {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}
	for _, c := range conns {
		if c.From == c.To {
			return fmt.Errorf("%w: %s", ErrSelfLoop, c.From)
		}
		if _, ok := known[c.From]; !ok {
			return fmt.Errorf("%w: connection %s references %q", ErrNodeNotFound, c.ID, c.From)
		}
		if _, ok := known[c.To]; !ok {
			return fmt.Errorf("%w: connection %s references %q", ErrNodeNotFound, c.ID, c.To)
		}
	}
	return nil
}
