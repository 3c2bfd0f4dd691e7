package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
)

// Publisher is the subset of *nats.Conn used to ship events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsRecorder publishes each event as JSON on a subject.
type NatsRecorder struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

// ConnectNats dials url and returns the connection for use with NewNatsRecorder.
func ConnectNats(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("tasktracker-audit"))
	if err != nil {
		return nil, oops.Code("AUDIT_NATS_CONNECT").With("url", url).Wrap(err)
	}
	return nc, nil
}

func NewNatsRecorder(pub Publisher, subject string, logger *slog.Logger) *NatsRecorder {
	return &NatsRecorder{pub: pub, subject: subject, logger: logger}
}

func (n *NatsRecorder) Record(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.ErrorContext(ctx, "auth event publish failed", "error", err)
		return
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		n.logger.ErrorContext(ctx, "auth event publish failed", "error", err, "subject", n.subject)
	}
}
