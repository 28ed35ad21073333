// Package session carries typed messages between parties taking part in a flow.
// Every payload crosses the session JSON encoded, so counterparties only ever
// see wire data.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

var (
	ErrUnknownPeer       = errors.New("session: unknown peer")
	ErrUnknownProtocol   = errors.New("session: protocol not served by peer")
	ErrClosed            = errors.New("session: closed by counterparty")
	ErrUnexpectedMessage = errors.New("session: unexpected message")
)

// Handler serves the responder side of a protocol.
type Handler func(ctx context.Context, s Session) error

// Session is one side of a conversation between two parties.
type Session interface {
	// FlowID is the id of the flow that opened the session.
	FlowID() string
	Protocol() string
	Counterparty() identity.Party
	Send(ctx context.Context, msgType string, v any) error
	// Receive waits for a message of msgType and decodes it into v. An error frame
	// from the counterparty is returned as *RemoteError.
	Receive(ctx context.Context, msgType string, v any) error
	// Fail reports err to the counterparty.
	Fail(ctx context.Context, err error) error
	Close()
}

// RemoteError is a failure reported by the counterparty. It unwraps to the
// ledger error named by Code, so errors.Is works across the session.
type RemoteError struct {
	Party   string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Party, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ledger.FromCode(e.Code)
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     *wireError      `json:"error,omitempty"`
}

type flowIDKey struct{}

// WithFlowID attaches a flow id to ctx; sessions opened under ctx carry it.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, flowIDKey{}, flowID)
}

// FlowIDFrom returns the flow id attached to ctx.
func FlowIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(flowIDKey{}).(string)
	return id, ok && id != ""
}

type pipe struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newPipe(buffer int) *pipe {
	return &pipe{frames: make(chan []byte, buffer), done: make(chan struct{})}
}

func (p *pipe) close() { p.once.Do(func() { close(p.done) }) }

type session struct {
	flowID   string
	protocol string
	self     identity.Party
	peer     identity.Party
	in       *pipe
	out      *pipe
}

func (s *session) FlowID() string              { return s.flowID }
func (s *session) Protocol() string             { return s.protocol }
func (s *session) Counterparty() identity.Party { return s.peer }

func (s *session) Send(ctx context.Context, msgType string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	return s.write(ctx, frame{Type: msgType, Payload: payload})
}

func (s *session) Fail(ctx context.Context, cause error) error {
	return s.write(ctx, frame{Type: "error", Err: &wireError{Code: ledger.Code(cause), Message: cause.Error()}})
}

func (s *session) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-s.out.done:
		return fmt.Errorf("%w: %s", ErrClosed, s.peer)
	default:
	}
	select {
	case s.out.frames <- data:
		return nil
	case <-s.out.done:
		return fmt.Errorf("%w: %s", ErrClosed, s.peer)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Receive(ctx context.Context, msgType string, v any) error {
	var data []byte
	select {
	case data = <-s.in.frames:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.in.done:
		select {
		case data = <-s.in.frames:
		default:
			return fmt.Errorf("%w: %s", ErrClosed, s.peer)
		}
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode frame from %s: %w", s.peer, err)
	}
	if f.Err != nil {
		return &RemoteError{Party: s.peer.Name, Code: f.Err.Code, Message: f.Err.Message}
	}
	if f.Type != msgType {
		return fmt.Errorf("%w: expected %s from %s, got %s", ErrUnexpectedMessage, msgType, s.peer, f.Type)
	}
	if v == nil || len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s from %s: %w", msgType, s.peer, err)
	}
	return nil
}

// Close signals the counterparty that no more messages will be sent.
func (s *session) Close() {
	s.out.close()
}
