package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
)

// newStore connects to DATABASE_URL and recreates the schema. Tests using it
// are skipped when no database is configured.
func newStore(t *testing.T) (*PGStore, context.Context) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	t.Cleanup(func() { _ = s.DropSchema(context.Background()) })
	return s, ctx
}

func pipeline() *workflow.Workflow {
	return &workflow.Workflow{
		ID:          "vehicle",
		Name:        "Vehicle dynamics",
		Description: "closed-loop braking study",
		Nodes: []workflow.Node{
			{Ref: "req", Type: workflow.TypeRequirementSync, Name: "Requirements",
				Config: &workflow.RequirementSyncConfig{Source: "doors", Project: "brake"}},
			{Ref: "sim", Type: workflow.TypeSimulation, Name: "Simulate",
				Position: workflow.Position{X: 240, Y: 80},
				Config:   &workflow.SimulationConfig{Model: "vehicle.ssp", SimulationTime: 10}},
			{Ref: "ana", Type: workflow.TypeResultAnalysis, Name: "Analyse"},
		},
		Connections: []workflow.Connection{
			{FromRef: "req", ToRef: "sim"},
			{FromRef: "sim", ToRef: "ana", Label: "results", Style: json.RawMessage(`{"dashed":true}`)},
		},
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	s, ctx := newStore(t)

	created, err := s.CreateWorkflow(ctx, pipeline())
	require.NoError(t, err)

	got, err := s.GetWorkflow(ctx, "vehicle")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "closed-loop braking study", got.Description)
	require.Len(t, got.Nodes, 3)
	for i, n := range got.Nodes {
		assert.Equal(t, created.Nodes[i].ID, n.ID)
		assert.Equal(t, created.Nodes[i].Type, n.Type)
		assert.Equal(t, workflow.StatusWaiting, n.Status)
	}
	assert.Equal(t, workflow.Position{X: 240, Y: 80}, got.Nodes[1].Position)
	assert.Equal(t, &workflow.SimulationConfig{Model: "vehicle.ssp", SimulationTime: 10}, got.Nodes[1].Config)

	require.Len(t, got.Connections, 2)
	assert.Equal(t, got.Nodes[0].ID, got.Connections[0].From)
	assert.Nil(t, got.Connections[0].Style)
	assert.JSONEq(t, `{"dashed":true}`, string(got.Connections[1].Style))

	missing, err := s.GetWorkflow(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	// Replacing keeps created_at and drops the old graph.
	second, err := s.CreateWorkflow(ctx, &workflow.Workflow{ID: "vehicle", Name: "v2"})
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.Equal(got.CreatedAt))
	nodes, err := s.ListNodes(ctx, "vehicle")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].Name)
}

func TestCreateWorkflowRejectsCycle(t *testing.T) {
	s, ctx := newStore(t)
	wf := pipeline()
	wf.Connections = append(wf.Connections, workflow.Connection{FromRef: "ana", ToRef: "req"})

	_, err := s.CreateWorkflow(ctx, wf)
	assert.ErrorIs(t, err, workflow.ErrCycleDetected)
	got, err := s.GetWorkflow(ctx, "vehicle")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestNodes(t *testing.T) {
	s, ctx := newStore(t)
	created, err := s.CreateWorkflow(ctx, pipeline())
	require.NoError(t, err)

	id, err := s.AddNode(ctx, "vehicle", &workflow.Node{Type: workflow.TypeSSPConversion, Name: "Package"})
	require.NoError(t, err)
	_, err = s.AddNode(ctx, "ghost", &workflow.Node{Type: workflow.TypeSSPConversion})
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)

	n, err := s.GetNode(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.IsType(t, &workflow.SSPConversionConfig{}, n.Config)

	workflow.SetAutoRun(n.Config, true)
	require.NoError(t, s.UpdateNode(ctx, n))
	n, err = s.GetNode(ctx, id)
	require.NoError(t, err)
	assert.True(t, n.AutoRun())
	assert.ErrorIs(t, s.UpdateNode(ctx, &workflow.Node{ID: "ghost", Type: workflow.TypeSimulation}), workflow.ErrNodeNotFound)

	nodes, err := s.ListNodes(ctx, "vehicle")
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, id, nodes[3].ID)

	require.NoError(t, s.DeleteNode(ctx, created.Nodes[1].ID))
	conns, err := s.ListConnections(ctx, "vehicle")
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.NoError(t, s.DeleteNode(ctx, "ghost"))
}

func TestConnections(t *testing.T) {
	s, ctx := newStore(t)
	created, err := s.CreateWorkflow(ctx, pipeline())
	require.NoError(t, err)
	req, sim, ana := created.Nodes[0].ID, created.Nodes[1].ID, created.Nodes[2].ID

	id, err := s.AddConnection(ctx, "vehicle", &workflow.Connection{From: req, To: ana})
	require.NoError(t, err)
	_, err = s.AddConnection(ctx, "vehicle", &workflow.Connection{From: ana, To: req})
	assert.ErrorIs(t, err, workflow.ErrCycleDetected)
	_, err = s.AddConnection(ctx, "ghost", &workflow.Connection{From: req, To: ana})
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)

	assert.ErrorIs(t, s.UpdateConnection(ctx, &workflow.Connection{ID: id, From: ana, To: req}), workflow.ErrCycleDetected)
	require.NoError(t, s.UpdateConnection(ctx, &workflow.Connection{ID: id, From: sim, To: ana, Label: "again"}))
	c, err := s.GetConnection(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, sim, c.From)
	assert.Equal(t, "again", c.Label)
	assert.ErrorIs(t, s.UpdateConnection(ctx, &workflow.Connection{ID: "ghost"}), workflow.ErrConnectionNotFound)

	require.NoError(t, s.DeleteConnection(ctx, id))
	c, err = s.GetConnection(ctx, id)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestExecutions(t *testing.T) {
	s, ctx := newStore(t)
	_, err := s.CreateWorkflow(ctx, pipeline())
	require.NoError(t, err)

	start := time.Now().UTC().Truncate(time.Millisecond)
	end := start.Add(2 * time.Second)
	exec := &workflow.Execution{
		ID:             "run-1",
		WorkflowID:     "vehicle",
		ExecutionOrder: []string{"a"},
		TotalNodes:     1,
		Status:         workflow.RunRunning,
		StartTime:      start,
		Results:        map[string]*workflow.NodeResult{"a": {Status: workflow.StatusWaiting}},
	}
	require.NoError(t, s.SaveExecution(ctx, exec))
	exec.Status, exec.CompletedNodes, exec.EndTime = workflow.RunCompleted, 1, &end
	exec.Results["a"] = &workflow.NodeResult{Status: workflow.StatusCompleted, Attempts: 1}
	require.NoError(t, s.SaveExecution(ctx, exec))

	list, err := s.ListExecutions(ctx, "vehicle")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, workflow.RunCompleted, list[0].Status)
	assert.Equal(t, 2*time.Second, list[0].Duration())
	assert.Equal(t, 1, list[0].Results["a"].Attempts)

	assert.ErrorIs(t, s.SaveExecution(ctx, &workflow.Execution{ID: "x", WorkflowID: "ghost", StartTime: start}), workflow.ErrWorkflowNotFound)

	require.NoError(t, s.DeleteWorkflow(ctx, "vehicle"))
	list, err = s.ListExecutions(ctx, "vehicle")
	require.NoError(t, err)
	assert.Empty(t, list)
}
