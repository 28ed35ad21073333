// Package node assembles the parties hosted by one process: their keys, the
// shared notary and session network, and a flow service per party backed by
// Postgres, Redis and pebble when configured or in-memory stores otherwise.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/contract"
	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/notary"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/reservation"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/vault"
)

// Options are the shared backends a node is built on. DB and Cache may be nil
// in development, in which case in-memory stores are used.
type Options struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	// Publisher receives every notification in addition to the log.
	Publisher notification.Notifier
	Logger    *slog.Logger
}

// Node hosts the flow services of the configured parties.
type Node struct {
	Registry  identity.Registry
	Notary    notary.Notary
	Network   *session.Network
	Directory flow.Directory

	endpoints   []*session.Endpoint
	checkpoints []*checkpoint.PebbleStore
	logger      *slog.Logger
}

// Policy converts the configured currency rules into a contract policy.
func Policy(cfg config.Config) contract.Policy {
	p := contract.Policy{
		AllowedCurrencies: make(map[string]bool, len(cfg.AllowedCurrencies)),
		IssuanceCeilings:  make(map[string]int64, len(cfg.IssuanceCeilings)),
	}
	for _, c := range cfg.AllowedCurrencies {
		p.AllowedCurrencies[c] = true
	}
	for c, ceiling := range cfg.IssuanceCeilings {
		p.IssuanceCeilings[c] = ceiling
	}
	return p
}

// New registers every hosted party and the notary, then starts a flow service per party.
func New(ctx context.Context, opts Options) (*Node, error) {
	cfg := opts.Cfg
	logger := logging.Component(opts.Logger, "node")

	var registry identity.Registry
	if opts.DB != nil {
		registry = identity.NewPostgresRegistry(opts.DB)
	} else {
		registry = identity.NewMemoryRegistry()
	}

	notaryKey := identity.DeriveKeyPair(cfg.NotaryName, cfg.KeySeed)
	if err := registry.Register(ctx, notaryKey.Party()); err != nil {
		return nil, fmt.Errorf("register notary: %w", err)
	}
	var notarizer notary.Notary
	if opts.DB != nil {
		notarizer = notary.NewPostgres(opts.DB, notaryKey)
	} else {
		notarizer = notary.NewMemory(notaryKey)
	}

	n := &Node{
		Registry:  registry,
		Notary:    notarizer,
		Network:   session.NewNetwork(logging.Component(opts.Logger, "session")),
		Directory: make(flow.Directory, len(cfg.Parties)),
		logger:    logger,
	}

	keys := make(map[string]*identity.KeyPair, len(cfg.Parties))
	for _, name := range cfg.Parties {
		key := identity.DeriveKeyPair(name, cfg.KeySeed)
		if err := registry.Register(ctx, key.Party()); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		keys[name] = key
	}

	policy := Policy(cfg)
	for _, name := range cfg.Parties {
		svc, err := n.host(keys[name], opts, policy)
		if err != nil {
			_ = n.Close()
			return nil, err
		}
		n.Directory[name] = svc
	}

	logger.Info("node assembled",
		slog.Any("parties", cfg.Parties),
		slog.String("notary", cfg.NotaryName),
		slog.Bool("postgres", opts.DB != nil),
		slog.Bool("redis", opts.Cache != nil),
	)
	return n, nil
}

func (n *Node) host(key *identity.KeyPair, opts Options, policy contract.Policy) (*flow.Service, error) {
	party := key.Party()
	logger := opts.Logger.With(slog.String("party", party.Name))

	var v vault.Vault
	if opts.DB != nil {
		v = vault.NewPostgres(opts.DB, party)
	} else {
		v = vault.NewMemory(party)
	}

	dir := ""
	if opts.Cfg.CheckpointDir != "" {
		dir = filepath.Join(opts.Cfg.CheckpointDir, party.Name)
	}
	store, err := checkpoint.OpenPebble(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", party.Name, err)
	}
	n.checkpoints = append(n.checkpoints, store)

	var reserver reservation.Reserver
	if opts.Cache != nil {
		reserver = reservation.NewRedis(opts.Cache, party.Name, opts.Cfg.ReservationTTL)
	} else {
		reserver = reservation.NewMemory()
	}

	notifier := notification.Fanout{notification.NewLoggerNotifier(logger)}
	if opts.Publisher != nil {
		notifier = append(notifier, opts.Publisher)
	}

	endpoint := n.Network.Join(party)
	n.endpoints = append(n.endpoints, endpoint)

	return flow.New(flow.Deps{
		Signer:       key,
		Notary:       n.Notary,
		Registry:     n.Registry,
		Vault:        v,
		Endpoint:     endpoint,
		Reservations: reservation.NewGuard(reserver, opts.Cfg.StrictReservations, logger),
		Checkpoints:  store,
		Notifier:     notifier,
		Policy:       policy,
		Logger:       logger,
	}), nil
}

// Resume drives the suspended flows of every hosted party.
func (n *Node) Resume(ctx context.Context) error {
	var errs []error
	for name, svc := range n.Directory {
		committed, err := svc.Resume(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", name, err))
			continue
		}
		if committed > 0 {
			n.logger.Info("resumed flows committed", slog.String("party", name), slog.Int("committed", committed))
		}
	}
	return errors.Join(errs...)
}

// Close detaches every endpoint and closes the checkpoint stores.
func (n *Node) Close() error {
	for _, ep := range n.endpoints {
		ep.Close()
	}
	var errs []error
	for _, store := range n.checkpoints {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
