package notary

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

// Postgres is a notary whose commit log lives in PostgreSQL, so uniqueness holds
// across restarts and across processes sharing the database.
type Postgres struct {
	db     *pgxpool.Pool
	signer identity.Signer
}

// NewPostgres constructs a Postgres-backed notary.
func NewPostgres(db *pgxpool.Pool, signer identity.Signer) *Postgres {
	return &Postgres{db: db, signer: signer}
}

func (n *Postgres) Party() identity.Party { return n.signer.Party() }

func (n *Postgres) Notarize(ctx context.Context, stx ledger.SignedTransition) (ledger.SignedTransition, error) {
	if err := validate(n.Party(), stx); err != nil {
		return ledger.SignedTransition{}, err
	}

	tx, err := n.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	for _, ref := range stx.Tx.InputRefs() {
		tag, err := tx.Exec(ctx, `INSERT INTO notary_commits (tx_id, output_index, consumed_by, committed_at)
            VALUES ($1, $2, $3, $4) ON CONFLICT (tx_id, output_index) DO NOTHING`,
			ref.TxID, ref.Index, stx.ID, now)
		if err != nil {
			return ledger.SignedTransition{}, err
		}
		if tag.RowsAffected() == 1 {
			continue
		}

		var consumedBy string
		if err := tx.QueryRow(ctx, `SELECT consumed_by FROM notary_commits WHERE tx_id = $1 AND output_index = $2`,
			ref.TxID, ref.Index).Scan(&consumedBy); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ledger.SignedTransition{}, &ConflictError{Ref: ref}
			}
			return ledger.SignedTransition{}, err
		}
		if consumedBy != stx.ID {
			return ledger.SignedTransition{}, &ConflictError{Ref: ref, ConsumedBy: consumedBy}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.SignedTransition{}, err
	}
	return countersign(n.signer, stx), nil
}
