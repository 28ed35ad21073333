package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds connection settings for the NATS notifier.
type NATSConfig struct {
	URL            string
	Name           string
	SubjectPrefix  string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NATSNotifier publishes notifications as JSON on <prefix>.<destination>.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to NATS and returns a notifier publishing on it.
func DialNATS(cfg NATSConfig, logger *slog.Logger) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSNotifier(conn, cfg.SubjectPrefix), nil
}

// NewNATSNotifier publishes on an existing connection.
func NewNATSNotifier(conn *nats.Conn, prefix string) *NATSNotifier {
	return &NATSNotifier{conn: conn, prefix: prefix}
}

// Subject returns the subject a message is published on.
func (n *NATSNotifier) Subject(message Message) string {
	return Subject(n.prefix, message.Destination)
}

// Subject joins prefix and destination into a NATS subject, replacing characters
// NATS treats as separators or wildcards.
func Subject(prefix, destination string) string {
	dest := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, destination)
	if prefix == "" {
		return dest
	}
	return prefix + "." + dest
}

func (n *NATSNotifier) Send(_ context.Context, message Message) error {
	if n.conn == nil {
		return fmt.Errorf("nats notifier is not connected")
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.conn.Publish(n.Subject(message), payload)
}

// Close drains the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
