// Package flow runs the business operations of one party: it builds candidate
// transitions, negotiates signatures with counterparties over sessions and
// drives the signed result through notarization to every participant's vault.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/builder"
	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/contract"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/notary"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/reservation"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/vault"
)

// Protocol names. Responder handlers are registered for the first four.
const (
	ProtocolCreateWallet = "wallet.create"
	ProtocolIssueFunds   = "funds.issue"
	ProtocolFetchWallet  = "wallet.fetch"
	ProtocolFinality     = "ledger.finality"

	protocolVerifyWallet = "wallet.verify"
	protocolTransfer     = "funds.transfer"
	protocolFundWallet   = "funds.fund"
	protocolAddIssuer    = "issuer.add"
	protocolActivate     = "issuer.activate"
	protocolDeactivate   = "issuer.deactivate"
)

const (
	msgProposal      = "proposal"
	msgTransition    = "transition"
	msgSignature     = "signature"
	msgFinalized     = "finalized"
	msgAck           = "ack"
	msgWalletRequest = "wallet_request"
	msgWallet        = "wallet"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Signer       identity.Signer
	Notary       notary.Notary
	Registry     identity.Registry
	Vault        vault.Vault
	Endpoint     *session.Endpoint
	Reservations *reservation.Guard
	Checkpoints  checkpoint.Store
	Notifier     notification.Notifier
	Policy       contract.Policy
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Committed is the handle returned for a committed transition.
type Committed struct {
	FlowID string                  `json:"flow_id"`
	Tx     ledger.SignedTransition `json:"transaction"`
}

// Service hosts the flows of one party.
type Service struct {
	signer       identity.Signer
	self         identity.Party
	notary       notary.Notary
	registry     identity.Registry
	vault        vault.Vault
	endpoint     *session.Endpoint
	reservations *reservation.Guard
	checkpoints  checkpoint.Store
	notifier     notification.Notifier
	policy       contract.Policy
	builder      *builder.Builder
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New wires a Service and registers its responders on the endpoint.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}
	s := &Service{
		signer:       d.Signer,
		self:         d.Signer.Party(),
		notary:       d.Notary,
		registry:     d.Registry,
		vault:        d.Vault,
		endpoint:     d.Endpoint,
		reservations: d.Reservations,
		checkpoints:  d.Checkpoints,
		notifier:     d.Notifier,
		policy:       d.Policy,
		builder:      builder.New(d.Vault, d.Policy, d.Notary.Party(), builder.WithClock(d.Clock)),
		logger:       d.Logger.With(slog.String("party", d.Signer.Party().Name)),
		now:          d.Clock,
		running:      make(map[string]context.CancelFunc),
	}
	s.endpoint.Handle(ProtocolCreateWallet, s.handleCreateWallet)
	s.endpoint.Handle(ProtocolIssueFunds, s.handleIssueFunds)
	s.endpoint.Handle(ProtocolFetchWallet, s.handleFetchWallet)
	s.endpoint.Handle(ProtocolFinality, s.handleFinality)
	return s
}

// Self is the party this service acts for.
func (s *Service) Self() identity.Party { return s.self }

// WithFlowID makes the next flow started with ctx use id instead of a generated one.
func WithFlowID(ctx context.Context, id string) context.Context {
	return session.WithFlowID(ctx, id)
}

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) resolve(ctx context.Context, name string) (identity.Party, error) {
	p, err := s.registry.Resolve(ctx, name)
	if errors.Is(err, identity.ErrUnknownParty) {
		return identity.Party{}, fmt.Errorf("%w: party %s", ledger.ErrNotFound, name)
	}
	return p, err
}

func (s *Service) track(flowID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[flowID] = cancel
}

func (s *Service) untrack(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[flowID]; ok {
		cancel()
		delete(s.running, flowID)
	}
}

func (s *Service) isRunning(flowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[flowID]
	return ok
}

// run is the per-flow state machine. Every step change is checkpointed.
type run struct {
	svc       *Service
	cp        checkpoint.Checkpoint
	log       *slog.Logger
	sessions  []session.Session
	notarized bool
}

func (s *Service) start(ctx context.Context, protocol string, role checkpoint.Role) (context.Context, *run) {
	flowID, ok := session.FlowIDFrom(ctx)
	if !ok {
		flowID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	ctx = session.WithFlowID(ctx, flowID)
	s.track(flowID, cancel)

	now := s.clock()
	return ctx, &run{
		svc: s,
		cp: checkpoint.Checkpoint{
			FlowID:    flowID,
			Protocol:  protocol,
			Role:      role,
			Step:      checkpoint.Built,
			StartedAt: now,
			UpdatedAt: now,
		},
		log: s.logger.With(
			slog.String("flow_id", flowID),
			slog.String("protocol", protocol),
			slog.String("role", string(role))),
	}
}

func (r *run) save(ctx context.Context) error {
	if err := r.svc.checkpoints.Save(ctx, r.cp); err != nil {
		return fmt.Errorf("checkpoint %s: %w", r.cp.FlowID, err)
	}
	return nil
}

func (r *run) advance(ctx context.Context, step checkpoint.Step) error {
	if err := r.cp.Advance(step, r.svc.clock()); err != nil {
		return err
	}
	r.log.Debug("flow step", slog.String("step", string(step)))
	return r.save(ctx)
}

func (r *run) hold(stx ledger.SignedTransition) {
	r.cp.Tx = &stx
}

func (r *run) reserve(ctx context.Context, refs []ledger.StateRef) error {
	if err := r.svc.reservations.Acquire(ctx, r.cp.FlowID, refs); err != nil {
		return err
	}
	r.cp.Reserved = append(r.cp.Reserved, refs...)
	return r.save(ctx)
}

// claim holds key for the rest of the flow and fails with conflict when
// another flow of this party holds it. Transitions without inputs use it to
// serialize the check of the vault with the commit.
func (r *run) claim(ctx context.Context, key string, conflict error) error {
	ok, err := r.svc.reservations.Claim(ctx, r.cp.FlowID, key)
	if err != nil {
		return err
	}
	if !ok {
		return conflict
	}
	r.cp.Reserved = append(r.cp.Reserved, reservation.KeyRef(key))
	return r.save(ctx)
}

func walletKey(walletID string) string { return "wallet:" + walletID }

func (s *Service) issuerKey(currency string) string {
	return "issuer:" + s.self.Name + ":" + money.NormalizeCurrency(currency)
}

// attach adds an inbound or outbound session to the flow.
func (r *run) attach(sess session.Session) {
	r.sessions = append(r.sessions, sess)
	r.cp.Counterparties = append(r.cp.Counterparties, sess.Counterparty())
}

func (r *run) open(ctx context.Context, to identity.Party, protocol string) (session.Session, error) {
	sess, err := r.svc.endpoint.Open(ctx, to, protocol)
	if err != nil {
		return nil, err
	}
	r.attach(sess)
	return sess, r.save(ctx)
}

// finish ends the flow. Failed flows are marked Rejected, or Aborted when
// cancelled, and their reservations and checkpoint are dropped. A flow that
// failed after notarization keeps its checkpoint so Resume can complete it.
func (r *run) finish(ctx context.Context, err error) error {
	s := r.svc
	defer s.untrack(r.cp.FlowID)
	cleanup := context.WithoutCancel(ctx)

	if r.cp.Role == checkpoint.Initiator {
		defer func() {
			for _, sess := range r.sessions {
				sess.Close()
			}
		}()
	}

	if err == nil {
		s.reservations.Release(cleanup, r.cp.FlowID)
		r.drop(cleanup)
		return nil
	}

	if r.cp.Role == checkpoint.Initiator {
		for _, sess := range r.sessions {
			_ = sess.Fail(cleanup, err)
		}
	}

	if r.notarized {
		r.log.Error("transition notarized but not recorded; kept for resume", slog.Any("error", err))
		return err
	}

	step := checkpoint.Rejected
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		step = checkpoint.Aborted
	}
	_ = r.cp.Advance(step, s.clock())
	r.cp.Error = err.Error()
	r.log.Warn("flow failed", slog.String("step", string(step)), slog.String("code", ledger.Code(err)), slog.Any("error", err))

	s.reservations.Release(cleanup, r.cp.FlowID)
	r.drop(cleanup)
	s.notify(cleanup, notification.Message{
		Kind:        notification.KindFlowFailed,
		Destination: s.self.Name,
		FlowID:      r.cp.FlowID,
		Body:        fmt.Sprintf("%s %s: %v", r.cp.Protocol, step, err),
	})
	return err
}

func (r *run) drop(ctx context.Context) {
	if err := r.svc.checkpoints.Delete(ctx, r.cp.FlowID); err != nil {
		r.log.Error("delete checkpoint failed", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.String("destination", msg.Destination), slog.Any("error", err))
	}
}

// committed wraps the result of an initiating flow.
func (r *run) committed(ctx context.Context, stx ledger.SignedTransition, err error) (Committed, error) {
	if err := r.finish(ctx, err); err != nil {
		return Committed{}, err
	}
	return Committed{FlowID: r.cp.FlowID, Tx: stx}, nil
}

// Directory maps the names of the parties hosted by a node to their services.
type Directory map[string]*Service

// Lookup returns the service of a hosted party.
func (d Directory) Lookup(party string) (*Service, error) {
	s, ok := d[party]
	if !ok {
		return nil, fmt.Errorf("%w: party %s is not hosted here", ledger.ErrNotFound, party)
	}
	return s, nil
}
