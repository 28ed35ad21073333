package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/identity"
)

const frameBuffer = 16

// Network connects the endpoints of parties hosted by one process.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	logger    *slog.Logger
}

// NewNetwork returns an empty network.
func NewNetwork(logger *slog.Logger) *Network {
	return &Network{endpoints: make(map[string]*Endpoint), logger: logger}
}

// Join attaches self to the network, replacing any previous endpoint for the same name.
func (n *Network) Join(self identity.Party) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		net:      n,
		self:     self,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
		logger:   n.logger.With(slog.String("party", self.Name)),
	}
	n.mu.Lock()
	n.endpoints[self.Name] = e
	n.mu.Unlock()
	return e
}

func (n *Network) endpoint(name string) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.endpoints[name]
	return e, ok
}

// Endpoint is a party's attachment to the network.
type Endpoint struct {
	net    *Network
	self   identity.Party
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Self is the party this endpoint speaks for.
func (e *Endpoint) Self() identity.Party { return e.self }

// Handle registers the responder for protocol.
func (e *Endpoint) Handle(protocol string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[protocol] = h
}

func (e *Endpoint) handler(protocol string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[protocol]
	return h, ok
}

// Open starts protocol with to. The responder handler runs on to's endpoint until
// it returns; a handler error is reported to the initiator as an error frame.
func (e *Endpoint) Open(ctx context.Context, to identity.Party, protocol string) (Session, error) {
	peer, ok := e.net.endpoint(to.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	if !peer.self.Equal(to) {
		return nil, fmt.Errorf("%w: %s does not match the registered key", ErrUnknownPeer, to)
	}
	h, ok := peer.handler(protocol)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownProtocol, protocol, to)
	}
	if err := peer.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}

	flowID, ok := FlowIDFrom(ctx)
	if !ok {
		flowID = uuid.NewString()
	}
	toPeer, toSelf := newPipe(frameBuffer), newPipe(frameBuffer)
	initiator := &session{flowID: flowID, protocol: protocol, self: e.self, peer: to, in: toSelf, out: toPeer}
	responder := &session{flowID: flowID, protocol: protocol, self: to, peer: e.self, in: toPeer, out: toSelf}

	peer.wg.Add(1)
	go peer.serve(h, responder)
	return initiator, nil
}

func (e *Endpoint) serve(h Handler, s *session) {
	defer e.wg.Done()
	defer s.Close()

	ctx := WithFlowID(e.ctx, s.flowID)
	if err := h(ctx, s); err != nil {
		e.logger.Warn("responder failed",
			slog.String("protocol", s.protocol),
			slog.String("flow_id", s.flowID),
			slog.String("counterparty", s.peer.Name),
			slog.Any("error", err))
		if ferr := s.Fail(ctx, err); ferr != nil {
			e.logger.Debug("could not report failure", slog.String("flow_id", s.flowID), slog.Any("error", ferr))
		}
	}
}

// Close stops accepting sessions and waits for running responders.
func (e *Endpoint) Close() {
	e.cancel()
	e.wg.Wait()
}
