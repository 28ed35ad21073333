package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindTransitionCommitted is sent to each participant once a transition is notarized and recorded.
	KindTransitionCommitted = "transition_committed"
	// KindFlowFailed is sent to the initiator when a flow is rejected or aborted.
	KindFlowFailed = "flow_failed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	FlowID      string `json:"flow_id,omitempty"`
	TxID        string `json:"tx_id,omitempty"`
	Command     string `json:"command,omitempty"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"flow_id", message.FlowID,
		"tx_id", message.TxID,
		"body", message.Body)
	return nil
}

// Fanout sends every message to each notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
