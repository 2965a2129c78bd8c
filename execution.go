package workflow

import "time"

// RunStatus is the state of one execution of a workflow.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the run has ended.
func (s RunStatus) Terminal() bool { return s != RunRunning && s != "" }

// Execution is the bookkeeping record for one run. It is rebuilt on every start.
type Execution struct {
	ID             string                 `json:"id"`
	WorkflowID     string                 `json:"workflowId"`
	ExecutionOrder []string               `json:"executionOrder"`
	TotalNodes     int                    `json:"totalNodes"`
	CompletedNodes int                    `json:"completedNodes"`
	Status         RunStatus              `json:"status"`
	Error          string                 `json:"error,omitempty"`
	StartTime      time.Time              `json:"startTime"`
	EndTime        *time.Time             `json:"endTime,omitempty"`
	Results        map[string]*NodeResult `json:"results,omitempty"`
}

// NodeResult is the outcome of one node within an execution.
type NodeResult struct {
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Duration returns the wall time of the run, or zero while it is still running.
func (e *Execution) Duration() time.Duration {
	if e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// Clone returns a deep copy safe to hand to readers.
func (e *Execution) Clone() Execution {
	out := *e
	out.ExecutionOrder = append([]string(nil), e.ExecutionOrder...)
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	if e.Results != nil {
		out.Results = make(map[string]*NodeResult, len(e.Results))
		for id, r := range e.Results {
			cp := *r
			if r.StartedAt != nil {
				t := *r.StartedAt
				cp.StartedAt = &t
			}
			if r.EndedAt != nil {
				t := *r.EndedAt
				cp.EndedAt = &t
			}
			out.Results[id] = &cp
		}
	}
	return out
}
