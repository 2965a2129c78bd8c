package engine

import (
	"github.com/meikuraledutech/workflow"
)

// Preflight checks everything Start checks, without starting a run.
func Preflight(wf workflow.Workflow) error {
	_, err := resolve(wf)
	return err
}

// resolve validates the start preconditions in order and returns the
// execution order. Nothing is mutated.
func resolve(wf workflow.Workflow) ([]string, error) {
	if len(wf.Nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}

	var disabled []string
	for _, n := range wf.Nodes {
		if !n.AutoRun() {
			disabled = append(disabled, n.ID)
		}
	}
	if len(disabled) > 0 {
		return nil, &PreconditionError{Reason: ReasonAutoRunDisabled, Nodes: disabled}
	}

	var issues []workflow.ConfigIssue
	var incomplete []string
	for _, n := range wf.Nodes {
		if is := workflow.CheckConfig(n); len(is) > 0 {
			issues = append(issues, is...)
			incomplete = append(incomplete, n.ID)
		}
	}
	if len(issues) > 0 {
		return nil, &PreconditionError{Reason: ReasonIncompleteConfig, Nodes: incomplete, Issues: issues}
	}

	if err := workflow.ValidateConnections(wf.Nodes, wf.Connections); err != nil {
		return nil, err
	}
	return workflow.Resolve(wf.Nodes, wf.Connections)
}

// EnableAutoRun turns autoRun on for every node that has it off and returns
// the ids it changed. Nodes without a config get an empty one of their type.
func EnableAutoRun(wf *workflow.Workflow) []string {
	var changed []string
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if n.AutoRun() {
			continue
		}
		if n.Config == nil {
			cfg, err := workflow.NewConfig(n.Type)
			if err != nil {
				continue
			}
			n.Config = cfg
		}
		workflow.SetAutoRun(n.Config, true)
		changed = append(changed, n.ID)
	}
	return changed
}
