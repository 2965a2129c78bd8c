package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meikuraledutech/workflow"
)

var (
	ErrEmptyWorkflow   = errors.New("engine: workflow has no nodes")
	ErrAlreadyRunning  = errors.New("engine: workflow is already running")
	ErrNotRunning      = errors.New("engine: workflow is not running")
	ErrPrecondition    = errors.New("engine: precondition failed")
	ErrToolUnavailable = errors.New("engine: tool unavailable")
)

// Reason says which start precondition was not met.
type Reason string

const (
	ReasonAutoRunDisabled  Reason = "autorun_disabled"
	ReasonIncompleteConfig Reason = "incomplete_config"
)

// PreconditionError lists the nodes or fields that block a run from starting.
type PreconditionError struct {
	Reason Reason
	Nodes  []string
	Issues []workflow.ConfigIssue
}

func (e *PreconditionError) Error() string {
	switch e.Reason {
	case ReasonAutoRunDisabled:
		return fmt.Sprintf("engine: autoRun is disabled on nodes %s", strings.Join(e.Nodes, ", "))
	case ReasonIncompleteConfig:
		parts := make([]string, len(e.Issues))
		for i, is := range e.Issues {
			parts[i] = is.String()
		}
		return "engine: incomplete configuration: " + strings.Join(parts, "; ")
	default:
		return ErrPrecondition.Error()
	}
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// ErrorKind classifies why a node run did not complete.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindToolUnavailable ErrorKind = "tool_unavailable"
	KindInvalidConfig   ErrorKind = "invalid_config"
	KindCancelled       ErrorKind = "cancelled"
)

// Transient reports whether a retry may succeed.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindToolUnavailable
}

// NodeError is the failure outcome of one node.
type NodeError struct {
	NodeID string
	Kind   ErrorKind
	Err    error
}

func (e *NodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine: node %s: %s", e.NodeID, e.Kind)
	}
	return fmt.Sprintf("engine: node %s: %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
