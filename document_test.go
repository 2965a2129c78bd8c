package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareWorkflowResolvesRefs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wf := &Workflow{
		Name: "vehicle dynamics",
		Nodes: []Node{
			{Ref: "req", Type: TypeRequirementSync},
			{Ref: "sim", Type: TypeSimulation, Config: &SimulationConfig{Model: "m", SimulationTime: 1}},
			{ID: "fixed", Type: TypeResultAnalysis},
		},
		Connections: []Connection{
			{FromRef: "req", ToRef: "sim"},
			{FromRef: "sim", To: "fixed", Label: "results"},
		},
	}

	require.NoError(t, PrepareWorkflow(wf, now))

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, now, wf.CreatedAt)
	assert.Equal(t, now, wf.UpdatedAt)
	for _, n := range wf.Nodes {
		assert.NotEmpty(t, n.ID)
		assert.Empty(t, n.Ref)
		assert.Equal(t, StatusWaiting, n.Status)
		require.NotNil(t, n.Config)
		assert.Equal(t, n.Type, n.Config.Kind())
	}
	assert.Equal(t, "fixed", wf.Nodes[2].ID)
	assert.Equal(t, wf.Nodes[0].ID, wf.Connections[0].From)
	assert.Equal(t, wf.Nodes[1].ID, wf.Connections[0].To)
	assert.Equal(t, wf.Nodes[1].ID, wf.Connections[1].From)
	assert.Equal(t, "fixed", wf.Connections[1].To)
	for _, c := range wf.Connections {
		assert.NotEmpty(t, c.ID)
		assert.Empty(t, c.FromRef)
		assert.Empty(t, c.ToRef)
	}
}

func TestPrepareWorkflowRejects(t *testing.T) {
	t.Run("unknown ref", func(t *testing.T) {
		wf := &Workflow{
			Nodes:       []Node{{Ref: "a", Type: TypeSimulation}},
			Connections: []Connection{{FromRef: "a", ToRef: "ghost"}},
		}
		assert.ErrorIs(t, PrepareWorkflow(wf, time.Now()), ErrNodeNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		wf := &Workflow{
			Nodes: []Node{{Ref: "a", Type: TypeSimulation}, {Ref: "b", Type: TypeSimulation}},
			Connections: []Connection{
				{FromRef: "a", ToRef: "b"},
				{FromRef: "b", ToRef: "a"},
			},
		}
		assert.ErrorIs(t, PrepareWorkflow(wf, time.Now()), ErrCycleDetected)
	})

	t.Run("unknown type", func(t *testing.T) {
		wf := &Workflow{Nodes: []Node{{Ref: "a", Type: "spreadsheet"}}}
		assert.ErrorIs(t, PrepareWorkflow(wf, time.Now()), ErrUnknownNodeType)
	})

	t.Run("config of another type", func(t *testing.T) {
		n := Node{ID: "x", Type: TypeSSPConversion, Config: &SimulationConfig{}}
		assert.ErrorIs(t, PrepareNode(&n), ErrUnknownNodeType)
	})
}

func TestCheckConnection(t *testing.T) {
	nodes := nodesOf("A", "B", "C")
	conns := []Connection{{ID: "ab", From: "A", To: "B"}, {ID: "bc", From: "B", To: "C"}}

	assert.NoError(t, CheckConnection(nodes, conns, Connection{From: "A", To: "C"}))
	assert.ErrorIs(t, CheckConnection(nodes, conns, Connection{From: "C", To: "A"}), ErrCycleDetected)
	assert.ErrorIs(t, CheckConnection(nodes, conns, Connection{From: "C", To: "C"}), ErrSelfLoop)
	assert.ErrorIs(t, CheckConnection(nodes, conns, Connection{From: "C", To: "Q"}), ErrNodeNotFound)

	// Rewiring bc to C->B keeps the graph acyclic because the old edge is replaced.
	assert.NoError(t, CheckConnection(nodes, conns, Connection{ID: "bc", From: "C", To: "B"}))
	// Rewiring ab to B->A would close a loop only if ab were kept.
	assert.NoError(t, CheckConnection(nodes, conns, Connection{ID: "ab", From: "B", To: "A"}))
	assert.ErrorIs(t, CheckConnection(nodes, conns, Connection{ID: "new", From: "B", To: "A"}), ErrCycleDetected)
}
