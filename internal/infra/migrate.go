package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	version string
	sql     string
}

// migrations are applied in order, each at most once.
var migrations = []migration{
	{
		version: "0001_parties",
		sql: `CREATE TABLE IF NOT EXISTS parties (
            name          TEXT PRIMARY KEY,
            public_key    BYTEA NOT NULL,
            registered_at TIMESTAMPTZ NOT NULL
        )`,
	},
	{
		version: "0002_vault",
		sql: `CREATE TABLE IF NOT EXISTS vault_transactions (
            party       TEXT NOT NULL,
            tx_id       TEXT NOT NULL,
            payload     JSONB NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (party, tx_id)
        );
        CREATE TABLE IF NOT EXISTS vault_states (
            party        TEXT NOT NULL,
            tx_id        TEXT NOT NULL,
            output_index INTEGER NOT NULL,
            kind         TEXT NOT NULL,
            linear_id    TEXT NOT NULL,
            external_id  TEXT NOT NULL DEFAULT '',
            payload      JSONB NOT NULL,
            projection   JSONB NOT NULL DEFAULT '{}'::jsonb,
            consumed     BOOLEAN NOT NULL DEFAULT FALSE,
            consumed_by  TEXT,
            recorded_at  TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (party, tx_id, output_index)
        );
        CREATE INDEX IF NOT EXISTS vault_states_unconsumed_idx ON vault_states (party, kind) WHERE NOT consumed;
        CREATE INDEX IF NOT EXISTS vault_states_projection_idx ON vault_states USING GIN (projection)`,
	},
	{
		version: "0003_notary",
		sql: `CREATE TABLE IF NOT EXISTS notary_commits (
            tx_id        TEXT NOT NULL,
            output_index INTEGER NOT NULL,
            consumed_by  TEXT NOT NULL,
            committed_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (tx_id, output_index)
        )`,
	},
}

// Migrate creates the schema used by the Postgres registry, vault and notary.
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version    TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := apply(ctx, db, m)
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.version, err)
		}
		if applied {
			logger.Info("applied migration", slog.String("version", m.version))
		}
	}
	return nil
}

func apply(ctx context.Context, db *pgxpool.Pool, m migration) (bool, error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM schema_migrations WHERE version = $1 FOR UPDATE`, m.version).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
