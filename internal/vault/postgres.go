package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

// Postgres stores one party's view of the ledger in PostgreSQL. Several parties
// may share a database; rows are scoped by party name.
type Postgres struct {
	db    *pgxpool.Pool
	owner identity.Party
}

// NewPostgres constructs a Postgres-backed vault for owner.
func NewPostgres(db *pgxpool.Pool, owner identity.Party) *Postgres {
	return &Postgres{db: db, owner: owner}
}

// Record persists the transition, consumes its inputs and stores relevant outputs atomically.
func (v *Postgres) Record(ctx context.Context, stx ledger.SignedTransition) error {
	payload, err := json.Marshal(stx)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}

	tx, err := v.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `INSERT INTO vault_transactions (party, tx_id, payload, recorded_at)
        VALUES ($1, $2, $3, $4) ON CONFLICT (party, tx_id) DO NOTHING`, v.owner.Name, stx.ID, payload, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, ref := range stx.Tx.InputRefs() {
		if _, err := tx.Exec(ctx, `UPDATE vault_states SET consumed = TRUE, consumed_by = $1
            WHERE party = $2 AND tx_id = $3 AND output_index = $4`, stx.ID, v.owner.Name, ref.TxID, ref.Index); err != nil {
			return err
		}
	}

	for _, out := range stx.Outputs() {
		if !identity.Contains(out.State.Participants(), v.owner) {
			continue
		}
		env, err := state.Seal(out.State)
		if err != nil {
			return err
		}
		envJSON, err := json.Marshal(env)
		if err != nil {
			return err
		}
		projection := state.Projection{}
		if q, ok := out.State.(state.Queryable); ok {
			projection = q.Projection()
		}
		projJSON, err := json.Marshal(projection)
		if err != nil {
			return err
		}
		lid := out.State.LinearID()
		if _, err := tx.Exec(ctx, `INSERT INTO vault_states
            (party, tx_id, output_index, kind, linear_id, external_id, payload, projection, consumed, recorded_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
            ON CONFLICT (party, tx_id, output_index) DO NOTHING`,
			v.owner.Name, out.Ref.TxID, out.Ref.Index, string(out.State.Kind()), lid.ID, lid.ExternalID,
			envJSON, projJSON, now); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindUnconsumed returns unconsumed records matching c in recording order.
func (v *Postgres) FindUnconsumed(ctx context.Context, c Criteria) ([]ledger.StateAndRef, error) {
	fields := c.Fields
	if fields == nil {
		fields = state.Projection{}
	}
	filter, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	rows, err := v.db.Query(ctx, `SELECT tx_id, output_index, payload FROM vault_states
        WHERE party = $1 AND kind = $2 AND NOT consumed AND projection @> $3::jsonb
        ORDER BY recorded_at, tx_id, output_index`, v.owner.Name, string(c.Kind), string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.StateAndRef
	for rows.Next() {
		var (
			ref     ledger.StateRef
			payload []byte
		)
		if err := rows.Scan(&ref.TxID, &ref.Index, &payload); err != nil {
			return nil, err
		}
		var env state.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("decode state %s: %w", ref, err)
		}
		st, err := env.Open()
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.StateAndRef{Ref: ref, State: st})
	}
	return out, rows.Err()
}

// Transaction loads a recorded transition by id.
func (v *Postgres) Transaction(ctx context.Context, txID string) (ledger.SignedTransition, error) {
	var payload []byte
	err := v.db.QueryRow(ctx, `SELECT payload FROM vault_transactions WHERE party = $1 AND tx_id = $2`,
		v.owner.Name, txID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.SignedTransition{}, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, txID)
		}
		return ledger.SignedTransition{}, err
	}
	var stx ledger.SignedTransition
	if err := json.Unmarshal(payload, &stx); err != nil {
		return ledger.SignedTransition{}, fmt.Errorf("decode transaction %s: %w", txID, err)
	}
	return stx, nil
}
