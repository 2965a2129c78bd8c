package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/metrics"
	"github.com/meikuraledutech/workflow/notify"
)

// node builds a complete, autoRun-enabled node of type t.
func node(id string, t workflow.NodeType) workflow.Node {
	var cfg workflow.ToolConfig
	switch t {
	case workflow.TypeRequirementSync:
		cfg = &workflow.RequirementSyncConfig{Source: "doors", Project: "vehicle"}
	case workflow.TypeSysMLModel:
		cfg = &workflow.SysMLModelConfig{ModelFile: "arch.sysml", Tool: "capella"}
	case workflow.TypeSSPConversion:
		cfg = &workflow.SSPConversionConfig{SourceModel: "arch.sysml", TargetFormat: "ssp"}
	case workflow.TypeSimulation:
		cfg = &workflow.SimulationConfig{Model: "vehicle.ssp", SimulationTime: 10}
	case workflow.TypeResultAnalysis:
		cfg = &workflow.ResultAnalysisConfig{Metrics: []string{"rmse"}}
	}
	workflow.SetAutoRun(cfg, true)
	return workflow.Node{ID: id, Type: t, Name: id, Status: workflow.StatusWaiting, Config: cfg}
}

func sims(ids ...string) []workflow.Node {
	out := make([]workflow.Node, len(ids))
	for i, id := range ids {
		out[i] = node(id, workflow.TypeSimulation)
	}
	return out
}

func edge(from, to string) workflow.Connection {
	return workflow.Connection{ID: from + "->" + to, From: from, To: to}
}

func chainWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID:          "chain",
		Nodes:       sims("A", "B", "C"),
		Connections: []workflow.Connection{edge("A", "B"), edge("B", "C")},
	}
}

func diamondWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID:    "diamond",
		Nodes: sims("A", "B", "C", "D"),
		Connections: []workflow.Connection{
			edge("A", "B"), edge("A", "C"), edge("B", "D"), edge("C", "D"),
		},
	}
}

// catalogWith registers tool for every node type.
func catalogWith(tool Tool) *Catalog {
	c := NewCatalog()
	for _, t := range workflow.NodeTypes {
		c.Register(Integration{NodeType: t, Name: string(t)}, tool)
	}
	return c
}

type harness struct {
	rec     *notify.Recorder
	metrics *metrics.Registry
	opts    Options
}

func newHarness(tool Tool) *harness {
	h := &harness{rec: &notify.Recorder{}, metrics: metrics.NewRegistry()}
	h.opts = Options{
		MinDuration: time.Millisecond,
		MaxDuration: 3 * time.Millisecond,
		Retry:       RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Catalog:     catalogWith(tool),
		Notifier:    h.rec,
		Metrics:     h.metrics,
	}
	return h
}

func fastTool() Tool {
	return Simulated{Min: time.Millisecond, Max: 3 * time.Millisecond}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runToEnd starts c, waits for the run to be archived and returns its record.
func runToEnd(t *testing.T, c *Coordinator) workflow.Execution {
	t.Helper()
	ctx := testCtx(t)
	_, err := c.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx))
	h := c.History()
	require.NotEmpty(t, h)
	return h[len(h)-1]
}

// awaitIDs reads n ids from ch or fails after a timeout.
func awaitIDs(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for tools, got %v", got)
		}
	}
	return got
}

func indexOfKind(events []notify.Event, nodeID string, kind notify.Kind) int {
	for i, ev := range events {
		if ev.NodeID == nodeID && ev.Kind == kind {
			return i
		}
	}
	return -1
}
