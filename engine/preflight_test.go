package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
)

func TestPreflight(t *testing.T) {
	assert.NoError(t, Preflight(diamondWorkflow()))
	assert.ErrorIs(t, Preflight(workflow.Workflow{}), ErrEmptyWorkflow)

	wf := chainWorkflow()
	wf.Connections = append(wf.Connections, edge("A", "Z"))
	assert.ErrorIs(t, Preflight(wf), workflow.ErrNodeNotFound)

	wf = chainWorkflow()
	wf.Connections = append(wf.Connections, edge("B", "B"))
	assert.ErrorIs(t, Preflight(wf), workflow.ErrSelfLoop)
}

func TestPreflightReportsAutoRunBeforeConfig(t *testing.T) {
	wf := chainWorkflow()
	workflow.SetAutoRun(wf.Nodes[0].Config, false)
	wf.Nodes[1].Config.(*workflow.SimulationConfig).SimulationTime = 0

	var perr *PreconditionError
	require.True(t, errors.As(Preflight(wf), &perr))
	assert.Equal(t, ReasonAutoRunDisabled, perr.Reason)
	assert.Equal(t, []string{"A"}, perr.Nodes)

	EnableAutoRun(&wf)
	require.True(t, errors.As(Preflight(wf), &perr))
	assert.Equal(t, ReasonIncompleteConfig, perr.Reason)
	assert.Equal(t, "simulationTime", perr.Issues[0].Field)
	assert.Contains(t, perr.Error(), "B.simulationTime: must be greater than 0")
}

func TestEnableAutoRun(t *testing.T) {
	wf := chainWorkflow()
	workflow.SetAutoRun(wf.Nodes[0].Config, false)
	workflow.SetAutoRun(wf.Nodes[2].Config, false)
	wf.Nodes = append(wf.Nodes, workflow.Node{ID: "bare", Type: workflow.TypeSSPConversion})

	changed := EnableAutoRun(&wf)
	assert.Equal(t, []string{"A", "C", "bare"}, changed)
	for _, n := range wf.Nodes {
		assert.True(t, n.AutoRun(), n.ID)
	}
	assert.IsType(t, &workflow.SSPConversionConfig{}, wf.Nodes[3].Config)

	assert.Empty(t, EnableAutoRun(&wf))
}
