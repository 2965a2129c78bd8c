package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meikuraledutech/workflow"
)

// Manager keeps one Coordinator per stored workflow.
type Manager struct {
	store workflow.Store
	opts  Options

	mu    sync.Mutex
	items map[string]*Coordinator
}

// NewManager returns a manager that loads documents from store and archives
// finished executions back to it.
func NewManager(store workflow.Store, opts Options) *Manager {
	opts.Store = store
	return &Manager{
		store: store,
		opts:  opts.withDefaults(),
		items: make(map[string]*Coordinator),
	}
}

// Catalog returns the tool catalog shared by every coordinator.
func (m *Manager) Catalog() *Catalog {
	return m.opts.Catalog
}

func (m *Manager) load(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	wf, err := m.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("engine: load workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
	}
	return wf, nil
}

// Get returns the coordinator for workflowID if one exists.
func (m *Manager) Get(workflowID string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[workflowID]
	return c, ok
}

// Start loads the latest document and starts a run of it.
func (m *Manager) Start(ctx context.Context, workflowID string) (workflow.Execution, error) {
	wf, err := m.load(ctx, workflowID)
	if err != nil {
		return workflow.Execution{}, err
	}

	m.mu.Lock()
	c, ok := m.items[workflowID]
	if !ok {
		c = New(*wf, m.opts)
		m.items[workflowID] = c
	}
	m.mu.Unlock()

	return c.StartWorkflow(ctx, *wf)
}

// Forget drops the coordinator of workflowID so its last snapshot is no longer
// served. It fails with ErrAlreadyRunning during a run.
func (m *Manager) Forget(workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[workflowID]
	if !ok {
		return nil
	}
	if c.Running() {
		return ErrAlreadyRunning
	}
	delete(m.items, workflowID)
	return nil
}

// Stop stops the run of workflowID.
func (m *Manager) Stop(workflowID string) (workflow.Execution, error) {
	c, ok := m.Get(workflowID)
	if !ok {
		return workflow.Execution{}, ErrNotRunning
	}
	return c.Stop()
}

// Wait blocks until the current run of workflowID is archived.
func (m *Manager) Wait(ctx context.Context, workflowID string) error {
	c, ok := m.Get(workflowID)
	if !ok {
		return nil
	}
	return c.Wait(ctx)
}

// Snapshot returns the live state of workflowID, or false when it never ran.
func (m *Manager) Snapshot(workflowID string) (Snapshot, bool) {
	c, ok := m.Get(workflowID)
	if !ok {
		return Snapshot{}, false
	}
	return c.Snapshot(), true
}

// Preflight loads the document and runs the start checks against it.
func (m *Manager) Preflight(ctx context.Context, workflowID string) error {
	wf, err := m.load(ctx, workflowID)
	if err != nil {
		return err
	}
	return Preflight(*wf)
}

// EnableAutoRun turns autoRun on for every node of the stored document and
// persists the changed nodes. It returns the changed ids.
func (m *Manager) EnableAutoRun(ctx context.Context, workflowID string) ([]string, error) {
	wf, err := m.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	changed := EnableAutoRun(wf)
	for _, id := range changed {
		n, _ := wf.Node(id)
		if err := m.store.UpdateNode(ctx, n); err != nil {
			return nil, fmt.Errorf("engine: enable autoRun on %s: %w", id, err)
		}
	}
	return changed, nil
}

// Shutdown stops every running workflow and waits for them to be archived.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Coordinator, 0, len(m.items))
	for _, c := range m.items {
		all = append(all, c)
	}
	m.mu.Unlock()

	for _, c := range all {
		if _, err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	for _, c := range all {
		if err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
