package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
)

type eventKind int

const (
	evNodeStarted eventKind = iota
	evNodeRetrying
	evNodeCompleted
	evNodeFailed
	evNodeSkipped
	evRunFinished
	evRunStopped
)

// event is one state transition. runID scopes it to a single execution so
// transitions from a run that has already ended are dropped.
type event struct {
	kind     eventKind
	runID    string
	nodeID   string
	attempts int
	err      error
	at       time.Time
}

// board owns the node statuses and the execution record. Every mutation goes
// through apply under one mutex.
type board struct {
	mu      sync.Mutex
	wf      workflow.Workflow
	index   map[string]int
	exec    *workflow.Execution
	history []workflow.Execution
}

func newBoard(wf workflow.Workflow) *board {
	b := &board{}
	b.install(wf)
	return b
}

func (b *board) install(wf workflow.Workflow) {
	b.wf = wf.Clone()
	b.index = make(map[string]int, len(b.wf.Nodes))
	for i, n := range b.wf.Nodes {
		b.index[n.ID] = i
	}
}

// running reports whether an execution is in progress.
func (b *board) running() bool {
	return b.exec != nil && !b.exec.Status.Terminal()
}

// setWorkflow replaces the graph while idle.
func (b *board) setWorkflow(wf workflow.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running() {
		return ErrAlreadyRunning
	}
	b.install(wf)
	return nil
}

// graph returns a copy of the current graph and its statuses.
func (b *board) graph() workflow.Workflow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wf.Clone()
}

// begin opens a new execution record. When next is non-nil it replaces the
// graph first. The graph is resolved, reset to waiting and returned under the
// same lock, so the dispatch order and the node count always agree.
func (b *board) begin(next *workflow.Workflow, now time.Time) (workflow.Workflow, workflow.Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running() {
		return workflow.Workflow{}, workflow.Execution{}, ErrAlreadyRunning
	}
	if next != nil {
		b.install(*next)
	}
	order, err := resolve(b.wf)
	if err != nil {
		return workflow.Workflow{}, workflow.Execution{}, err
	}

	results := make(map[string]*workflow.NodeResult, len(b.wf.Nodes))
	for i := range b.wf.Nodes {
		b.wf.Nodes[i].Status = workflow.StatusWaiting
		results[b.wf.Nodes[i].ID] = &workflow.NodeResult{Status: workflow.StatusWaiting}
	}
	b.exec = &workflow.Execution{
		ID:             uuid.NewString(),
		WorkflowID:     b.wf.ID,
		ExecutionOrder: order,
		TotalNodes:     len(b.wf.Nodes),
		Status:         workflow.RunRunning,
		StartTime:      now,
		Results:        results,
	}
	return b.wf.Clone(), b.exec.Clone(), nil
}

// apply performs ev and reports whether it changed anything. Events for a
// stale run or illegal transitions are ignored.
func (b *board) apply(ev event) (workflow.Execution, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exec == nil || b.exec.ID != ev.runID || b.exec.Status.Terminal() {
		return workflow.Execution{}, false
	}
	at := ev.at

	if ev.kind == evRunFinished || ev.kind == evRunStopped {
		b.finish(ev, at)
		return b.exec.Clone(), true
	}

	i, ok := b.index[ev.nodeID]
	if !ok {
		return workflow.Execution{}, false
	}
	node := &b.wf.Nodes[i]
	res := b.exec.Results[ev.nodeID]

	switch ev.kind {
	case evNodeStarted:
		if node.Status != workflow.StatusWaiting {
			return workflow.Execution{}, false
		}
		node.Status = workflow.StatusRunning
		res.Status = workflow.StatusRunning
		res.Attempts = 1
		res.StartedAt = &at
	case evNodeRetrying:
		if node.Status != workflow.StatusRunning {
			return workflow.Execution{}, false
		}
		res.Attempts = ev.attempts
		res.Error = errString(ev.err)
	case evNodeCompleted:
		if node.Status != workflow.StatusRunning {
			return workflow.Execution{}, false
		}
		node.Status = workflow.StatusCompleted
		res.Status = workflow.StatusCompleted
		res.Error = ""
		res.EndedAt = &at
		b.exec.CompletedNodes++
	case evNodeFailed:
		if node.Status != workflow.StatusRunning {
			return workflow.Execution{}, false
		}
		node.Status = workflow.StatusFailed
		res.Status = workflow.StatusFailed
		res.Error = errString(ev.err)
		res.EndedAt = &at
	case evNodeSkipped:
		if node.Status != workflow.StatusWaiting && node.Status != workflow.StatusRunning {
			return workflow.Execution{}, false
		}
		node.Status = workflow.StatusSkipped
		res.Status = workflow.StatusSkipped
		res.Error = errString(ev.err)
		res.EndedAt = &at
	default:
		return workflow.Execution{}, false
	}
	return b.exec.Clone(), true
}

func (b *board) finish(ev event, at time.Time) {
	switch ev.kind {
	case evRunStopped:
		// Running nodes go back to waiting; the completed count is frozen.
		for i := range b.wf.Nodes {
			n := &b.wf.Nodes[i]
			if n.Status == workflow.StatusRunning {
				n.Status = workflow.StatusWaiting
				r := b.exec.Results[n.ID]
				r.Status = workflow.StatusWaiting
				r.StartedAt = nil
			}
		}
		b.exec.Status = workflow.RunStopped
	default:
		if b.exec.CompletedNodes == b.exec.TotalNodes && ev.err == nil {
			b.exec.Status = workflow.RunCompleted
		} else {
			b.exec.Status = workflow.RunFailed
			b.exec.Error = errString(ev.err)
			if b.exec.Error == "" {
				b.exec.Error = "not every node completed"
			}
		}
	}
	b.exec.EndTime = &at
	b.history = append(b.history, b.exec.Clone())
}

// snapshot returns copies of the graph and the current record.
func (b *board) snapshot() (workflow.Workflow, *workflow.Execution) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wf := b.wf.Clone()
	if b.exec == nil {
		return wf, nil
	}
	ex := b.exec.Clone()
	return wf, &ex
}

func (b *board) archived() []workflow.Execution {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]workflow.Execution, len(b.history))
	for i := range b.history {
		out[i] = b.history[i].Clone()
	}
	return out
}

// record returns the archived record of runID.
func (b *board) record(runID string) (workflow.Execution, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.history) - 1; i >= 0; i-- {
		if b.history[i].ID == runID {
			return b.history[i].Clone(), true
		}
	}
	return workflow.Execution{}, false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
