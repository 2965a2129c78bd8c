package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/ctxlog"
	"github.com/meikuraledutech/workflow/notify"
)

// future resolves when a node settles. status is written before done is closed.
type future struct {
	done   chan struct{}
	status workflow.Status
}

// run is the per-execution state shared by the node runners.
type run struct {
	c       *Coordinator
	id      string
	wfID    string
	preds   map[string][]string
	futures map[string]*future
}

func newRun(c *Coordinator, id string, wf workflow.Workflow) *run {
	r := &run{
		c:       c,
		id:      id,
		wfID:    wf.ID,
		preds:   workflow.Predecessors(wf.Connections),
		futures: make(map[string]*future, len(wf.Nodes)),
	}
	for _, n := range wf.Nodes {
		r.futures[n.ID] = &future{done: make(chan struct{})}
	}
	return r
}

// runNode waits for the node's predecessors, then runs its tool with retries.
// It returns an error only for hard-stop failures, which cancel the whole run.
func (r *run) runNode(ctx context.Context, n workflow.Node, delay time.Duration) error {
	fut := r.futures[n.ID]
	settled := workflow.StatusSkipped
	defer func() {
		fut.status = settled
		close(fut.done)
	}()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			r.skip(ctx, n, &NodeError{NodeID: n.ID, Kind: KindCancelled, Err: ctx.Err()})
			return nil
		case <-t.C:
		}
	}

	for _, p := range r.preds[n.ID] {
		pf, ok := r.futures[p]
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			r.skip(ctx, n, &NodeError{NodeID: n.ID, Kind: KindCancelled, Err: ctx.Err()})
			return nil
		case <-pf.done:
		}
		if pf.status != workflow.StatusCompleted {
			r.skip(ctx, n, fmt.Errorf("upstream node %s is %s", p, pf.status))
			return nil
		}
	}

	if !r.emit(ctx, event{kind: evNodeStarted, nodeID: n.ID}, n, notify.NodeStarted, "") {
		return nil
	}
	started := time.Now()
	logger := ctxlog.FromContext(ctx).With("node_id", n.ID, "node_type", string(n.Type))

	policy := r.c.opts.Retry.normalized()
	for attempt := 0; ; attempt++ {
		nerr := r.attempt(ctx, n)
		if nerr == nil {
			settled = workflow.StatusCompleted
			r.emit(ctx, event{kind: evNodeCompleted, nodeID: n.ID}, n, notify.NodeCompleted, "")
			r.c.opts.Metrics.RecordNode(string(n.Type), string(settled), time.Since(started))
			return nil
		}

		switch {
		case nerr.Kind == KindCancelled:
			r.skip(ctx, n, nerr)
			return nil
		case nerr.Kind == KindInvalidConfig:
			settled = workflow.StatusFailed
			r.fail(ctx, n, nerr, started)
			return nerr
		case !nerr.Kind.Transient() || attempt >= policy.MaxRetries:
			settled = workflow.StatusFailed
			r.fail(ctx, n, nerr, started)
			return nil
		}

		wait := backoff(attempt, policy.BaseDelay, policy.MaxDelay, policy.Jitter)
		logger.Warn("retrying node", "attempt", attempt+1, "backoff", wait, "error", nerr)
		r.c.opts.Metrics.RecordRetry(string(n.Type))
		r.emit(ctx, event{kind: evNodeRetrying, nodeID: n.ID, attempts: attempt + 2, err: nerr}, n, notify.NodeRetrying, nerr.Error())

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			r.skip(ctx, n, &NodeError{NodeID: n.ID, Kind: KindCancelled, Err: ctx.Err()})
			return nil
		case <-t.C:
		}
	}
}

// attempt runs the node's tool once and classifies the outcome.
func (r *run) attempt(ctx context.Context, n workflow.Node) *NodeError {
	if issues := workflow.CheckConfig(n); len(issues) > 0 {
		return &NodeError{NodeID: n.ID, Kind: KindInvalidConfig, Err: errors.New(issues[0].String())}
	}
	tool, err := r.c.opts.Catalog.Tool(n.Type)
	if err != nil {
		return &NodeError{NodeID: n.ID, Kind: KindToolUnavailable, Err: err}
	}

	actx := ctx
	if r.c.opts.NodeTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.c.opts.NodeTimeout)
		defer cancel()
	}
	return classify(ctx, n.ID, tool.Run(actx, n))
}

// classify maps a tool error onto an ErrorKind. ctx is the run context, so a
// deadline that fires while the run is still live is a node timeout.
func classify(ctx context.Context, nodeID string, err error) *NodeError {
	if err == nil {
		return nil
	}
	var nerr *NodeError
	if errors.As(err, &nerr) {
		if nerr.NodeID == "" {
			nerr.NodeID = nodeID
		}
		return nerr
	}
	switch {
	case ctx.Err() != nil:
		return &NodeError{NodeID: nodeID, Kind: KindCancelled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &NodeError{NodeID: nodeID, Kind: KindTimeout, Err: err}
	default:
		return &NodeError{NodeID: nodeID, Kind: KindToolUnavailable, Err: err}
	}
}

func (r *run) skip(ctx context.Context, n workflow.Node, cause error) {
	if r.emit(ctx, event{kind: evNodeSkipped, nodeID: n.ID, err: cause}, n, notify.NodeSkipped, errString(cause)) {
		r.c.opts.Metrics.RecordNode(string(n.Type), string(workflow.StatusSkipped), 0)
	}
}

func (r *run) fail(ctx context.Context, n workflow.Node, nerr *NodeError, started time.Time) {
	if r.emit(ctx, event{kind: evNodeFailed, nodeID: n.ID, err: nerr}, n, notify.NodeFailed, nerr.Error()) {
		r.c.opts.Metrics.RecordNode(string(n.Type), string(workflow.StatusFailed), time.Since(started))
	}
}

// emit applies ev and, when it took effect, publishes the matching notification.
func (r *run) emit(ctx context.Context, ev event, n workflow.Node, kind notify.Kind, msg string) bool {
	ev.runID = r.id
	ev.at = time.Now()
	if _, ok := r.c.board.apply(ev); !ok {
		return false
	}
	r.c.opts.Notifier.Notify(ctx, notify.Event{
		Kind:        kind,
		WorkflowID:  r.wfID,
		ExecutionID: r.id,
		NodeID:      n.ID,
		NodeType:    string(n.Type),
		Message:     msg,
		Time:        ev.at,
	})
	return true
}
