package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/memory"
	"github.com/meikuraledutech/workflow/metrics"
)

type testServer struct {
	app     *fiber.App
	store   *memory.Store
	manager *engine.Manager
	metrics *metrics.Registry
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	reg := metrics.NewRegistry()
	mgr := engine.NewManager(store, engine.Options{
		MinDuration: time.Millisecond,
		MaxDuration: 3 * time.Millisecond,
		Retry:       engine.RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Metrics:     reg,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testServer{app: New(store, mgr, reg, logger), store: store, manager: mgr, metrics: reg}
}

// do sends body (a string is sent as is, anything else as JSON) and returns
// the status and the response body.
func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (s *testServer) wait(t *testing.T, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.manager.Wait(ctx, id))
}

const diamondDoc = `{
  "id": "diamond",
  "name": "Vehicle dynamics",
  "nodes": [
    {"ref": "req", "type": "requirement-sync", "name": "Requirements",
     "config": {"autoRun": true, "source": "doors", "project": "brake"}},
    {"ref": "arch", "type": "sysml-model", "name": "Architecture",
     "config": {"autoRun": true, "modelFile": "brake.sysml", "tool": "capella"}},
    {"ref": "ssp", "type": "ssp-conversion", "name": "Package",
     "config": {"autoRun": true, "sourceModel": "brake.sysml", "targetFormat": "ssp"}},
    {"ref": "sim", "type": "simulation", "name": "Simulate",
     "config": {"autoRun": true, "model": "brake.ssp", "simulationTime": 10}},
    {"ref": "ana", "type": "result-analysis", "name": "Analyse",
     "config": {"autoRun": true, "metrics": ["stopping_distance"]}}
  ],
  "connections": [
    {"fromRef": "req", "toRef": "arch"},
    {"fromRef": "req", "toRef": "ssp"},
    {"fromRef": "arch", "toRef": "sim"},
    {"fromRef": "ssp", "toRef": "sim"},
    {"fromRef": "sim", "toRef": "ana", "label": "results"}
  ]
}`

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	s.do(t, http.MethodGet, "/workflows/ghost", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/workflows/:id", "404")))

	status, body = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "workflow_http_requests_total")
}

func TestWorkflowDocuments(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodPost, "/workflows", diamondDoc)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[workflow.Workflow](t, body)
	require.Len(t, created.Nodes, 5)
	require.Len(t, created.Connections, 5)
	assert.Equal(t, created.Nodes[0].ID, created.Connections[0].From)
	assert.Empty(t, created.Connections[0].FromRef)

	status, body = s.do(t, http.MethodGet, "/workflows/diamond", nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[workflow.Workflow](t, body)
	assert.Equal(t, "Vehicle dynamics", got.Name)
	assert.Equal(t, &workflow.SimulationConfig{Common: workflow.Common{AutoRun: true}, Model: "brake.ssp", SimulationTime: 10}, got.Nodes[3].Config)

	status, body = s.do(t, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]workflow.Workflow](t, body), 1)

	status, _ = s.do(t, http.MethodGet, "/workflows/ghost", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/workflows/diamond", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodGet, "/workflows/diamond", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateWorkflowErrors(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodPost, "/workflows", `{"nodes": [`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "invalid body")

	status, _ = s.do(t, http.MethodPost, "/workflows", `{"nodes": [{"ref": "a", "type": "spreadsheet"}]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/workflows", `{
		"nodes": [{"ref": "a", "type": "simulation"}, {"ref": "b", "type": "simulation"}],
		"connections": [{"fromRef": "a", "toRef": "b"}, {"fromRef": "b", "toRef": "a"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	res := decode[map[string]any](t, body)
	assert.Equal(t, "cycle detected", res["error"])
	assert.Len(t, res["cycle"], 2)

	status, _ = s.do(t, http.MethodPost, "/workflows", `{
		"nodes": [{"ref": "a", "type": "simulation"}],
		"connections": [{"fromRef": "a", "toRef": "ghost"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestNodeAndConnectionRoutes(t *testing.T) {
	s := newServer(t)
	status, body := s.do(t, http.MethodPost, "/workflows", diamondDoc)
	require.Equal(t, http.StatusCreated, status)
	wf := decode[workflow.Workflow](t, body)
	req, ana := wf.Nodes[0].ID, wf.Nodes[4].ID

	status, body = s.do(t, http.MethodPost, "/workflows/diamond/nodes", `{"type": "result-analysis", "name": "Report"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	nodeID := decode[map[string]string](t, body)["id"]

	status, _ = s.do(t, http.MethodPost, "/workflows/ghost/nodes", `{"type": "result-analysis"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/nodes/"+nodeID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, workflow.StatusWaiting, decode[workflow.Node](t, body).Status)

	status, _ = s.do(t, http.MethodPut, "/nodes/"+nodeID,
		`{"type": "result-analysis", "name": "Report", "config": {"autoRun": true, "metrics": ["overshoot"]}}`)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodPut, "/nodes/ghost", `{"type": "simulation"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodPost, "/workflows/diamond/connections", workflow.Connection{From: ana, To: nodeID})
	require.Equal(t, http.StatusCreated, status, string(body))
	connID := decode[map[string]string](t, body)["id"]

	status, _ = s.do(t, http.MethodPost, "/workflows/diamond/connections", workflow.Connection{From: nodeID, To: req})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = s.do(t, http.MethodPost, "/workflows/diamond/connections", workflow.Connection{From: ana, To: "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = s.do(t, http.MethodPost, "/workflows/diamond/connections", workflow.Connection{From: ana, To: ana})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = s.do(t, http.MethodPut, "/connections/"+connID, workflow.Connection{From: ana, To: req})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = s.do(t, http.MethodPut, "/connections/"+connID, workflow.Connection{From: req, To: nodeID, Label: "direct"})
	assert.Equal(t, http.StatusNoContent, status)
	status, body = s.do(t, http.MethodGet, "/connections/"+connID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "direct", decode[workflow.Connection](t, body).Label)

	status, body = s.do(t, http.MethodGet, "/workflows/diamond/connections", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]workflow.Connection](t, body), 6)

	status, _ = s.do(t, http.MethodDelete, "/nodes/"+nodeID, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodGet, "/connections/"+connID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/workflows/diamond/nodes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]workflow.Node](t, body), 5)
}

func TestValidateAndAutoRun(t *testing.T) {
	s := newServer(t)
	status, _ := s.do(t, http.MethodPost, "/workflows", `{
		"id": "pair",
		"nodes": [
			{"id": "sim", "type": "simulation", "config": {"model": "m.ssp", "simulationTime": 5}},
			{"id": "ana", "type": "result-analysis", "config": {"autoRun": true}}
		],
		"connections": [{"from": "sim", "to": "ana"}]
	}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(t, http.MethodGet, "/workflows/pair/validate", nil)
	require.Equal(t, http.StatusOK, status)
	rep := decode[Report](t, body)
	assert.False(t, rep.OK)
	assert.Equal(t, engine.ReasonAutoRunDisabled, rep.Reason)
	assert.Equal(t, []string{"sim"}, rep.Nodes)

	status, body = s.do(t, http.MethodPost, "/workflows/pair/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "autorun_disabled", decode[map[string]any](t, body)["reason"])

	status, body = s.do(t, http.MethodPost, "/workflows/pair/autorun", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"sim"}, decode[map[string][]string](t, body)["changed"])

	status, body = s.do(t, http.MethodGet, "/workflows/pair/validate", nil)
	require.Equal(t, http.StatusOK, status)
	rep = decode[Report](t, body)
	assert.Equal(t, engine.ReasonIncompleteConfig, rep.Reason)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, workflow.ConfigIssue{NodeID: "ana", Field: "metrics", Message: "must have at least 1 entries"}, rep.Issues[0])

	status, _ = s.do(t, http.MethodPut, "/nodes/ana",
		`{"type": "result-analysis", "config": {"autoRun": true, "metrics": ["rmse"]}}`)
	require.Equal(t, http.StatusNoContent, status)
	status, body = s.do(t, http.MethodGet, "/workflows/pair/validate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[Report](t, body).OK)

	status, _ = s.do(t, http.MethodGet, "/workflows/ghost/validate", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRunLifecycle(t *testing.T) {
	s := newServer(t)
	status, _ := s.do(t, http.MethodPost, "/workflows", diamondDoc)
	require.Equal(t, http.StatusCreated, status)

	status, _ = s.do(t, http.MethodGet, "/workflows/diamond/execution", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodPost, "/workflows/diamond/stop", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body := s.do(t, http.MethodPost, "/workflows/diamond/start", nil)
	require.Equal(t, http.StatusAccepted, status, string(body))
	started := decode[workflow.Execution](t, body)
	assert.Equal(t, workflow.RunRunning, started.Status)
	assert.Equal(t, 5, started.TotalNodes)
	s.wait(t, "diamond")

	status, body = s.do(t, http.MethodGet, "/workflows/diamond/execution", nil)
	require.Equal(t, http.StatusOK, status)
	snap := decode[engine.Snapshot](t, body)
	require.NotNil(t, snap.Execution)
	assert.Equal(t, workflow.RunCompleted, snap.Execution.Status)
	assert.Equal(t, 5, snap.Execution.CompletedNodes)
	for id, st := range snap.Statuses() {
		assert.Equal(t, workflow.StatusCompleted, st, id)
	}

	status, body = s.do(t, http.MethodGet, "/workflows/diamond/executions", nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[[]workflow.Execution](t, body)
	require.Len(t, history, 1)
	assert.Equal(t, started.ID, history[0].ID)

	status, _ = s.do(t, http.MethodDelete, "/workflows/diamond", nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodGet, "/workflows/diamond/execution", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReusedIDsConflict(t *testing.T) {
	s := newServer(t)
	status, body := s.do(t, http.MethodPost, "/workflows", `{
		"id": "first",
		"nodes": [{"id": "shared", "type": "simulation"}, {"id": "other", "type": "simulation"}],
		"connections": [{"id": "link", "from": "shared", "to": "other"}]
	}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, http.MethodPost, "/workflows", `{
		"id": "second",
		"nodes": [{"id": "shared", "type": "simulation"}]
	}`)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = s.do(t, http.MethodPost, "/workflows", `{"id": "second", "nodes": [{"id": "fresh", "type": "simulation"}]}`)
	require.Equal(t, http.StatusCreated, status)
	status, body = s.do(t, http.MethodPost, "/workflows/second/nodes", `{"id": "shared", "type": "simulation"}`)
	assert.Equal(t, http.StatusConflict, status, string(body))
}

func TestToolCatalog(t *testing.T) {
	s := newServer(t)
	status, _ := s.do(t, http.MethodPost, "/workflows", diamondDoc)
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(t, http.MethodGet, "/tools", nil)
	require.Equal(t, http.StatusOK, status)
	tools := decode[[]engine.Integration](t, body)
	require.Len(t, tools, len(workflow.NodeTypes))
	for _, it := range tools {
		assert.True(t, it.Available, it.NodeType)
	}

	status, _ = s.do(t, http.MethodPut, "/tools/simulation", `{"available": false}`)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodPut, "/tools/spreadsheet", `{"available": false}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/workflows/diamond/start", nil)
	require.Equal(t, http.StatusAccepted, status)
	s.wait(t, "diamond")

	status, body = s.do(t, http.MethodGet, "/workflows/diamond/execution", nil)
	require.Equal(t, http.StatusOK, status)
	snap := decode[engine.Snapshot](t, body)
	assert.Equal(t, workflow.RunFailed, snap.Execution.Status)
	statuses := snap.Statuses()
	assert.Equal(t, workflow.StatusCompleted, statuses[snap.Workflow.Nodes[0].ID])
	assert.Equal(t, workflow.StatusFailed, statuses[snap.Workflow.Nodes[3].ID])
	assert.Equal(t, workflow.StatusSkipped, statuses[snap.Workflow.Nodes[4].ID])
}
