package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meikuraledutech/workflow/ctxlog"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each event as JSON on workflow.<workflowID>.<kind>.
type NATS struct {
	pub    Publisher
	prefix string
}

// NewNATS returns a notifier publishing through pub.
func NewNATS(pub Publisher) *NATS {
	return &NATS{pub: pub, prefix: "workflow"}
}

// Subject returns the subject an event is published on.
func (n *NATS) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, ev.WorkflowID, ev.Kind)
}

func (n *NATS) Notify(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		ctxlog.FromContext(ctx).Error("encode event", "event", string(ev.Kind), "error", err)
		return
	}
	if err := n.pub.Publish(n.Subject(ev), data); err != nil {
		ctxlog.FromContext(ctx).Warn("publish event", "subject", n.Subject(ev), "error", err)
	}
}

// Connect dials the NATS server at url. An empty url uses nats.DefaultURL.
func Connect(ctx context.Context, url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	logger := ctxlog.FromContext(ctx)

	nc, err := nats.Connect(
		url,
		nats.Name("workflow-server"),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
