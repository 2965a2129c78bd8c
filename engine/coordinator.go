// Package engine executes workflow graphs: one runner per node, gated on its
// predecessors, with every state change applied through a single reducer.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/ctxlog"
	"github.com/meikuraledutech/workflow/metrics"
	"github.com/meikuraledutech/workflow/notify"
)

// Options tunes a Coordinator. Zero values are replaced by DefaultOptions.
type Options struct {
	// MinDuration and MaxDuration bound the simulated tool time.
	MinDuration time.Duration
	MaxDuration time.Duration
	// DispatchStagger delays runner i by i * DispatchStagger.
	DispatchStagger time.Duration
	// NodeTimeout bounds a single tool attempt. Zero means no limit.
	NodeTimeout time.Duration
	Retry       RetryPolicy

	Catalog  *Catalog
	Notifier notify.Notifier
	Metrics  *metrics.Registry
	// Store archives finished executions when set.
	Store workflow.Store
}

// DefaultOptions mirrors the interactive editor: 2-4s per tool and a short stagger.
func DefaultOptions() Options {
	return Options{
		MinDuration:     2 * time.Second,
		MaxDuration:     4 * time.Second,
		DispatchStagger: 100 * time.Millisecond,
		Retry: RetryPolicy{
			MaxRetries: 2,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   2 * time.Second,
			Jitter:     true,
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinDuration <= 0 && o.MaxDuration <= 0 {
		o.MinDuration, o.MaxDuration = d.MinDuration, d.MaxDuration
	}
	if o.MaxDuration < o.MinDuration {
		o.MaxDuration = o.MinDuration
	}
	if o.DispatchStagger < 0 {
		o.DispatchStagger = 0
	}
	if o.Catalog == nil {
		o.Catalog = DefaultCatalog(o.MinDuration, o.MaxDuration)
	}
	if o.Notifier == nil {
		o.Notifier = notify.Nop{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewRegistry()
	}
	return o
}

// Snapshot is a consistent copy of a coordinator's graph and current record.
type Snapshot struct {
	Workflow  workflow.Workflow   `json:"workflow"`
	Execution *workflow.Execution `json:"execution,omitempty"`
}

// Statuses maps node ids to their current status.
func (s Snapshot) Statuses() map[string]workflow.Status {
	out := make(map[string]workflow.Status, len(s.Workflow.Nodes))
	for _, n := range s.Workflow.Nodes {
		out[n.ID] = n.Status
	}
	return out
}

// Coordinator runs one workflow at a time.
type Coordinator struct {
	opts  Options
	board *board

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle coordinator for wf.
func New(wf workflow.Workflow, opts Options) *Coordinator {
	return &Coordinator{
		opts:  opts.withDefaults(),
		board: newBoard(wf),
	}
}

// SetWorkflow replaces the graph. It fails with ErrAlreadyRunning during a run.
func (c *Coordinator) SetWorkflow(wf workflow.Workflow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.setWorkflow(wf)
}

// Workflow returns a copy of the graph with current node statuses.
func (c *Coordinator) Workflow() workflow.Workflow {
	return c.board.graph()
}

// Start validates the preconditions, resets every node to waiting and
// dispatches one runner per node. The run outlives ctx's cancellation; use
// Stop to end it early. The returned record is the state at dispatch.
func (c *Coordinator) Start(ctx context.Context) (workflow.Execution, error) {
	return c.start(ctx, nil)
}

// StartWorkflow replaces the graph with wf and starts a run of it in one step.
func (c *Coordinator) StartWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Execution, error) {
	return c.start(ctx, &wf)
}

func (c *Coordinator) start(ctx context.Context, next *workflow.Workflow) (workflow.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	wf, exec, err := c.board.begin(next, now)
	if err != nil {
		return workflow.Execution{}, err
	}
	order := exec.ExecutionOrder

	logger := ctxlog.FromContext(ctx).With("workflow_id", wf.ID, "execution_id", exec.ID)
	base := ctxlog.WithLogger(context.WithoutCancel(ctx), logger)
	runCtx, cancel := context.WithCancel(base)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done

	r := newRun(c, exec.ID, wf)
	c.opts.Metrics.RunStarted()
	c.opts.Notifier.Notify(base, notify.Event{
		Kind:        notify.RunStarted,
		WorkflowID:  wf.ID,
		ExecutionID: exec.ID,
		Message:     "workflow run started",
		Time:        now,
	})
	logger.Info("run started", "nodes", len(order))

	byID := make(map[string]workflow.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		byID[n.ID] = n
	}

	g, gctx := errgroup.WithContext(runCtx)
	for i, id := range order {
		n := byID[id]
		delay := time.Duration(i) * c.opts.DispatchStagger
		g.Go(func() error {
			return r.runNode(gctx, n, delay)
		})
	}

	go func() {
		defer close(done)
		defer cancel()
		err := g.Wait()
		c.finalize(base, exec.ID, err)
	}()

	return exec, nil
}

// finalize closes the record unless Stop already did, then archives and reports it.
func (c *Coordinator) finalize(ctx context.Context, runID string, err error) {
	rec, ok := c.board.apply(event{kind: evRunFinished, runID: runID, err: err, at: time.Now()})
	if !ok {
		if rec, ok = c.board.record(runID); !ok {
			return
		}
	}

	logger := ctxlog.FromContext(ctx)
	c.opts.Metrics.RunFinished(string(rec.Status), rec.Duration())

	kind := notify.RunCompleted
	switch rec.Status {
	case workflow.RunFailed:
		kind = notify.RunFailed
	case workflow.RunStopped:
		kind = notify.RunStopped
	}
	c.opts.Notifier.Notify(ctx, notify.Event{
		Kind:        kind,
		WorkflowID:  rec.WorkflowID,
		ExecutionID: rec.ID,
		Message:     rec.Error,
		Time:        *rec.EndTime,
	})
	logger.Info("run finished", "status", string(rec.Status), "completed", rec.CompletedNodes, "total", rec.TotalNodes, "duration", rec.Duration())

	if c.opts.Store != nil {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.opts.Store.SaveExecution(sctx, &rec); err != nil {
			logger.Error("archive execution", "error", err)
		}
	}
}

// Stop ends the current run. Running nodes return to waiting, the completed
// count is frozen, and later events from the run are discarded.
func (c *Coordinator) Stop() (workflow.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, cur := c.board.snapshot()
	if cur == nil || cur.Status.Terminal() {
		return workflow.Execution{}, ErrNotRunning
	}
	rec, ok := c.board.apply(event{kind: evRunStopped, runID: cur.ID, at: time.Now()})
	if !ok {
		return workflow.Execution{}, ErrNotRunning
	}
	if c.cancel != nil {
		c.cancel()
	}
	return rec, nil
}

// Wait blocks until the current run has been archived or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is in progress.
func (c *Coordinator) Running() bool {
	_, cur := c.board.snapshot()
	return cur != nil && !cur.Status.Terminal()
}

// Snapshot returns the node statuses and the current record.
func (c *Coordinator) Snapshot() Snapshot {
	wf, exec := c.board.snapshot()
	return Snapshot{Workflow: wf, Execution: exec}
}

// History returns the archived records, oldest first.
func (c *Coordinator) History() []workflow.Execution {
	return c.board.archived()
}
