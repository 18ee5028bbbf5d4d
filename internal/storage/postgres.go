package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS duel_results (
	duel_id     TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	turns       INTEGER NOT NULL,
	iterations  INTEGER NOT NULL,
	player1     TEXT NOT NULL,
	player2     TEXT NOT NULL,
	winner      SMALLINT,
	checksum    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS duel_results_ended_at ON duel_results (ended_at DESC);

CREATE TABLE IF NOT EXISTS card_packs (
	pack_id     UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pack_cards (
	pack_id   UUID NOT NULL REFERENCES card_packs (pack_id) ON DELETE CASCADE,
	card_id   BIGINT NOT NULL,
	name      TEXT NOT NULL,
	card_type TEXT NOT NULL,
	cost      INTEGER NOT NULL,
	attack    INTEGER NOT NULL,
	health    INTEGER NOT NULL,
	archetype TEXT NOT NULL,
	PRIMARY KEY (pack_id, card_id)
);
`

// PostgresStore is the pgx backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and migrates the schema.
func OpenPostgres(ctx context.Context, cfg config.StorageConfig) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore migrates the schema on an existing pool. Closing the
// store closes the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r DuelResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO duel_results (duel_id, started_at, ended_at, turns, iterations, player1, player2, winner, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (duel_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at, turns = EXCLUDED.turns, iterations = EXCLUDED.iterations,
			winner = EXCLUDED.winner, checksum = EXCLUDED.checksum`,
		r.DuelID, r.StartedAt, r.EndedAt, r.Turns, r.Iterations,
		r.PlayerNames[0], r.PlayerNames[1], r.Winner, r.Checksum)
	if err != nil {
		return fmt.Errorf("failed to save result of %s: %w", r.DuelID, err)
	}
	return nil
}

const resultColumns = `duel_id, started_at, ended_at, turns, iterations, player1, player2, winner, checksum`

func scanResult(row pgx.Row) (DuelResult, error) {
	var r DuelResult
	err := row.Scan(&r.DuelID, &r.StartedAt, &r.EndedAt, &r.Turns, &r.Iterations,
		&r.PlayerNames[0], &r.PlayerNames[1], &r.Winner, &r.Checksum)
	return r, err
}

func (s *PostgresStore) Result(ctx context.Context, duelID string) (DuelResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM duel_results WHERE duel_id = $1`, duelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return DuelResult{}, ErrNotFound
	}
	if err != nil {
		return DuelResult{}, fmt.Errorf("failed to load result of %s: %w", duelID, err)
	}
	return r, nil
}

func (s *PostgresStore) RecentResults(ctx context.Context, limit int) ([]DuelResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM duel_results ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []DuelResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePack(ctx context.Context, p *cardpack.Pack) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM card_packs WHERE pack_id = $1`, p.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO card_packs (pack_id, name, imported_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, time.Now().UTC()); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, c := range packCards(p) {
		batch.Queue(`
			INSERT INTO pack_cards (pack_id, card_id, name, card_type, cost, attack, health, archetype)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, int64(c.CardID), c.Name, c.Type, c.Cost, c.Attack, c.Health, c.Archetype)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert cards of pack %s: %w", p.ID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Packs(ctx context.Context) ([]PackRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.pack_id::text, p.name, p.imported_at, COUNT(c.card_id)
		FROM card_packs p LEFT JOIN pack_cards c ON c.pack_id = p.pack_id
		GROUP BY p.pack_id, p.name, p.imported_at
		ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list packs: %w", err)
	}
	defer rows.Close()

	var out []PackRecord
	for rows.Next() {
		var r PackRecord
		var n int64
		if err := rows.Scan(&r.PackID, &r.Name, &r.ImportedAt, &n); err != nil {
			return nil, err
		}
		r.Cards = int(n)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
