package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
)

var (
	alice = identity.DeriveKeyPair("alice", "session-test").Party()
	bob   = identity.DeriveKeyPair("bob", "session-test").Party()
)

type ping struct {
	N int `json:"n"`
}

func TestRequestResponse(t *testing.T) {
	net := NewNetwork(logging.Discard())
	a := net.Join(alice)
	b := net.Join(bob)
	t.Cleanup(b.Close)

	seen := make(chan string, 1)
	b.Handle("echo", func(ctx context.Context, s Session) error {
		var p ping
		if err := s.Receive(ctx, "ping", &p); err != nil {
			return err
		}
		seen <- s.FlowID()
		return s.Send(ctx, "pong", ping{N: p.N + 1})
	})

	ctx := WithFlowID(context.Background(), "flow-1")
	s, err := a.Open(ctx, bob, "echo")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(ctx, "ping", ping{N: 41}))
	var reply ping
	require.NoError(t, s.Receive(ctx, "pong", &reply))
	assert.Equal(t, 42, reply.N)
	assert.Equal(t, "flow-1", <-seen)
	assert.True(t, s.Counterparty().Equal(bob))
}

func TestResponderErrorCrossesSession(t *testing.T) {
	net := NewNetwork(logging.Discard())
	a := net.Join(alice)
	b := net.Join(bob)
	t.Cleanup(b.Close)

	b.Handle("refuse", func(ctx context.Context, s Session) error {
		return ledger.ErrUnrecognizedIssuer
	})

	ctx := context.Background()
	s, err := a.Open(ctx, bob, "refuse")
	require.NoError(t, err)

	err = s.Receive(ctx, "anything", nil)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "bob", remote.Party)
	assert.ErrorIs(t, err, ledger.ErrUnrecognizedIssuer)
}

func TestOpenFailures(t *testing.T) {
	net := NewNetwork(logging.Discard())
	a := net.Join(alice)
	net.Join(bob)

	_, err := a.Open(context.Background(), identity.DeriveKeyPair("carol", "session-test").Party(), "echo")
	assert.ErrorIs(t, err, ErrUnknownPeer)

	_, err = a.Open(context.Background(), bob, "echo")
	assert.ErrorIs(t, err, ErrUnknownProtocol)

	impostor := identity.DeriveKeyPair("bob", "other-seed").Party()
	_, err = a.Open(context.Background(), impostor, "echo")
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestReceiveObservesClosureAndCancellation(t *testing.T) {
	net := NewNetwork(logging.Discard())
	a := net.Join(alice)
	b := net.Join(bob)
	t.Cleanup(b.Close)

	b.Handle("silent", func(ctx context.Context, s Session) error { return nil })
	b.Handle("stall", func(ctx context.Context, s Session) error {
		<-ctx.Done()
		return nil
	})

	s, err := a.Open(context.Background(), bob, "silent")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Receive(context.Background(), "reply", nil), ErrClosed)

	s, err = a.Open(context.Background(), bob, "stall")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Receive(ctx, "reply", nil), context.DeadlineExceeded)
}

func TestUnexpectedMessageType(t *testing.T) {
	net := NewNetwork(logging.Discard())
	a := net.Join(alice)
	b := net.Join(bob)
	t.Cleanup(b.Close)

	b.Handle("chatty", func(ctx context.Context, s Session) error {
		return s.Send(ctx, "surprise", nil)
	})
	s, err := a.Open(context.Background(), bob, "chatty")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Receive(context.Background(), "expected", nil), ErrUnexpectedMessage)
}
