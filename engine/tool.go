package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/meikuraledutech/workflow"
)

// Tool performs the work of one node.
type Tool interface {
	Run(ctx context.Context, n workflow.Node) error
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc func(ctx context.Context, n workflow.Node) error

func (f ToolFunc) Run(ctx context.Context, n workflow.Node) error { return f(ctx, n) }

// Simulated stands in for a real tool call by sleeping for a random
// duration in [Min, Max).
type Simulated struct {
	Min time.Duration
	Max time.Duration
}

func (s Simulated) duration() time.Duration {
	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + rand.N(s.Max-s.Min) // #nosec G404 non-crypto
}

func (s Simulated) Run(ctx context.Context, _ workflow.Node) error {
	t := time.NewTimer(s.duration())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Integration is one entry of the third-party tool catalog.
type Integration struct {
	NodeType    workflow.NodeType `json:"nodeType"`
	Name        string            `json:"name"`
	Vendor      string            `json:"vendor"`
	Description string            `json:"description"`
	Available   bool              `json:"available"`

	tool Tool
}

// Catalog maps node types to the integration that executes them.
type Catalog struct {
	mu    sync.RWMutex
	items map[workflow.NodeType]*Integration
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[workflow.NodeType]*Integration)}
}

// DefaultCatalog registers a simulated integration for every node type.
func DefaultCatalog(min, max time.Duration) *Catalog {
	c := NewCatalog()
	sim := Simulated{Min: min, Max: max}
	for _, it := range []Integration{
		{NodeType: workflow.TypeRequirementSync, Name: "Requirements Sync", Vendor: "IBM DOORS / Polarion / Jama", Description: "Imports requirement baselines into the model repository"},
		{NodeType: workflow.TypeSysMLModel, Name: "SysML Architecture", Vendor: "Cameo / Capella / Papyrus", Description: "Loads the system architecture model"},
		{NodeType: workflow.TypeSSPConversion, Name: "SSP Converter", Vendor: "Modelica Association SSP", Description: "Packages the architecture as SSP or FMU"},
		{NodeType: workflow.TypeSimulation, Name: "Co-Simulation", Vendor: "FMI runtime", Description: "Runs the packaged model over the configured horizon"},
		{NodeType: workflow.TypeResultAnalysis, Name: "Result Analysis", Vendor: "Built-in", Description: "Scores simulation output against requirement metrics"},
	} {
		c.Register(it, sim)
	}
	return c
}

// Register adds or replaces the integration for it.NodeType. It starts available.
func (c *Catalog) Register(it Integration, tool Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it.Available = true
	it.tool = tool
	c.items[it.NodeType] = &it
}

// SetAvailable toggles an integration. It reports false for unknown types.
func (c *Catalog) SetAvailable(t workflow.NodeType, on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[t]
	if ok {
		it.Available = on
	}
	return ok
}

// Tool returns the tool for t, or ErrToolUnavailable when it is missing or switched off.
func (c *Catalog) Tool(t workflow.NodeType) (Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[t]
	if !ok {
		return nil, fmt.Errorf("%w: no integration for %s", ErrToolUnavailable, t)
	}
	if !it.Available {
		return nil, fmt.Errorf("%w: %s is offline", ErrToolUnavailable, it.Name)
	}
	return it.tool, nil
}

// List returns the integrations sorted by node type.
func (c *Catalog) List() []Integration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Integration, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeType < out[j].NodeType })
	return out
}
