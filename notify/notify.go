// Package notify delivers workflow run events to logs and NATS subscribers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/meikuraledutech/workflow/ctxlog"
)

// Kind names a run or node event.
type Kind string

const (
	RunStarted    Kind = "run_started"
	RunCompleted  Kind = "run_completed"
	RunFailed     Kind = "run_failed"
	RunStopped    Kind = "run_stopped"
	NodeStarted   Kind = "node_started"
	NodeRetrying  Kind = "node_retrying"
	NodeCompleted Kind = "node_completed"
	NodeFailed    Kind = "node_failed"
	NodeSkipped   Kind = "node_skipped"
)

// Event is one user-facing notification.
type Event struct {
	Kind        Kind      `json:"kind"`
	WorkflowID  string    `json:"workflowId"`
	ExecutionID string    `json:"executionId"`
	NodeID      string    `json:"nodeId,omitempty"`
	NodeType    string    `json:"nodeType,omitempty"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// Notifier receives events. Implementations must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Log writes events to the logger carried in the context.
type Log struct{}

func (Log) Notify(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	attrs := []any{
		"event", string(ev.Kind),
		"workflow_id", ev.WorkflowID,
		"execution_id", ev.ExecutionID,
	}
	if ev.NodeID != "" {
		attrs = append(attrs, "node_id", ev.NodeID, "node_type", ev.NodeType)
	}
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Kind)
	}
	switch ev.Kind {
	case NodeFailed, RunFailed:
		logger.Error(msg, attrs...)
	case NodeSkipped, NodeRetrying, RunStopped:
		logger.Warn(msg, attrs...)
	default:
		logger.Info(msg, attrs...)
	}
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds for one node, or for run events when nodeID is empty.
func (r *Recorder) Kinds(nodeID string) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, ev := range r.events {
		if ev.NodeID == nodeID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
