package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/workflow/ctxlog"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub)

	ev := Event{
		Kind:        NodeCompleted,
		WorkflowID:  "wf-1",
		ExecutionID: "ex-1",
		NodeID:      "sim",
		NodeType:    "simulation",
		Time:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	n.Notify(context.Background(), ev)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "workflow.wf-1.node_completed", pub.subjects[0])

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, ev, got)
}

func TestNATSPublishErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New("debug", "text", &buf))

	n := NewNATS(&fakePublisher{err: errors.New("nats: connection closed")})
	n.Notify(ctx, Event{Kind: RunStarted, WorkflowID: "wf"})

	assert.Contains(t, buf.String(), "connection closed")
	assert.Contains(t, buf.String(), "workflow.wf.run_started")
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New("info", "text", &buf))

	Log{}.Notify(ctx, Event{Kind: NodeFailed, WorkflowID: "wf", NodeID: "a", Message: "tool unavailable"})
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "node_id=a")

	buf.Reset()
	Log{}.Notify(ctx, Event{Kind: RunCompleted, WorkflowID: "wf"})
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "msg=run_completed")
	assert.NotContains(t, buf.String(), "node_id")
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Nop{}, b}

	m.Notify(context.Background(), Event{Kind: RunStarted})
	m.Notify(context.Background(), Event{Kind: NodeStarted, NodeID: "x"})
	m.Notify(context.Background(), Event{Kind: NodeCompleted, NodeID: "x"})

	assert.Len(t, a.Events(), 3)
	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, []Kind{NodeStarted, NodeCompleted}, a.Kinds("x"))
	assert.Equal(t, []Kind{RunStarted}, a.Kinds(""))

	a.Reset()
	assert.Empty(t, a.Events())
}
