package census

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultNotifySubject is the subject prefix outcomes are published under.
const DefaultNotifySubject = "census.outcome"

// Notifier hands a cycle outcome to whoever tells the operators.
type Notifier interface {
	Notify(ctx context.Context, o Outcome) error
}

// NATSNotifier publishes outcomes as JSON on "<subject>.<kind>", e.g.
// "census.outcome.alert", so subscribers can listen to alerts only.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier creates a notifier publishing on nc.
func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultNotifySubject
	}
	return &NATSNotifier{nc: nc, subject: subject}
}

// Subject returns the subject an outcome of kind is published on.
func (n *NATSNotifier) Subject(kind OutcomeKind) string {
	return n.subject + "." + kind.String()
}

// Notify publishes o and waits for the server to acknowledge the flush.
func (n *NATSNotifier) Notify(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	msg := nats.NewMsg(n.Subject(o.Kind))
	msg.Data = data
	msg.Header.Set("Census-Outcome", o.Kind.String())
	msg.Header.Set("Census-Subject", o.Subject())

	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush outcome: %w", err)
	}
	return nil
}
