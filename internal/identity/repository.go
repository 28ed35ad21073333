package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUnknownParty is returned when a name cannot be resolved.
	ErrUnknownParty = errors.New("unknown party")

	// ErrPartyExists indicates a name is already bound to a different key.
	ErrPartyExists = errors.New("party already registered with a different key")
)

// Registry resolves party names to identities.
type Registry interface {
	Register(ctx context.Context, party Party) error
	Resolve(ctx context.Context, name string) (Party, error)
	List(ctx context.Context) ([]Party, error)
}

// PostgresRegistry stores the party directory in PostgreSQL.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

// NewPostgresRegistry builds a Postgres-backed registry.
func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Register inserts the party, accepting re-registration with the same key.
func (r *PostgresRegistry) Register(ctx context.Context, party Party) error {
	tag, err := r.db.Exec(ctx, `INSERT INTO parties (name, public_key, registered_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        WHERE parties.public_key = EXCLUDED.public_key`, party.Name, []byte(party.PublicKey), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPartyExists, party.Name)
	}
	return nil
}

// Resolve fetches a party by name.
func (r *PostgresRegistry) Resolve(ctx context.Context, name string) (Party, error) {
	var key []byte
	err := r.db.QueryRow(ctx, `SELECT public_key FROM parties WHERE name = $1`, name).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, fmt.Errorf("%w: %s", ErrUnknownParty, name)
		}
		return Party{}, err
	}
	return Party{Name: name, PublicKey: key}, nil
}

// List returns all registered parties ordered by name.
func (r *PostgresRegistry) List(ctx context.Context) ([]Party, error) {
	rows, err := r.db.Query(ctx, `SELECT name, public_key FROM parties ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		var (
			name string
			key  []byte
		)
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		parties = append(parties, Party{Name: name, PublicKey: key})
	}
	return parties, rows.Err()
}
