package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
)

var sqliteSchema = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA foreign_keys=ON;`,
	`CREATE TABLE IF NOT EXISTS duel_results (
		duel_id    TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at   TEXT NOT NULL,
		turns      INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		player1    TEXT NOT NULL,
		player2    TEXT NOT NULL,
		winner     INTEGER,
		checksum   TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS duel_results_ended_at ON duel_results (ended_at DESC);`,
	`CREATE TABLE IF NOT EXISTS card_packs (
		pack_id     TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		imported_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS pack_cards (
		pack_id   TEXT NOT NULL REFERENCES card_packs (pack_id) ON DELETE CASCADE,
		card_id   INTEGER NOT NULL,
		name      TEXT NOT NULL,
		card_type TEXT NOT NULL,
		cost      INTEGER NOT NULL,
		attack    INTEGER NOT NULL,
		health    INTEGER NOT NULL,
		archetype TEXT NOT NULL,
		PRIMARY KEY (pack_id, card_id)
	);`,
}

// SQLiteStore is the embedded backend, for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at dsn and creates the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("empty sqlite dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer at a time; results are written once per duel
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sortable timestamps: fixed width, always UTC
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r DuelResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duel_results (duel_id, started_at, ended_at, turns, iterations, player1, player2, winner, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (duel_id) DO UPDATE SET
			ended_at = excluded.ended_at, turns = excluded.turns, iterations = excluded.iterations,
			winner = excluded.winner, checksum = excluded.checksum`,
		r.DuelID, formatTime(r.StartedAt), formatTime(r.EndedAt), r.Turns, r.Iterations,
		r.PlayerNames[0], r.PlayerNames[1], r.Winner, r.Checksum)
	if err != nil {
		return fmt.Errorf("failed to save result of %s: %w", r.DuelID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteResult(row rowScanner) (DuelResult, error) {
	var (
		r              DuelResult
		started, ended string
		winner         sql.NullInt64
	)
	if err := row.Scan(&r.DuelID, &started, &ended, &r.Turns, &r.Iterations,
		&r.PlayerNames[0], &r.PlayerNames[1], &winner, &r.Checksum); err != nil {
		return DuelResult{}, err
	}
	var err error
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return DuelResult{}, err
	}
	if r.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
		return DuelResult{}, err
	}
	if winner.Valid {
		w := int(winner.Int64)
		r.Winner = &w
	}
	return r, nil
}

func (s *SQLiteStore) Result(ctx context.Context, duelID string) (DuelResult, error) {
	r, err := scanSQLiteResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM duel_results WHERE duel_id = ?`, duelID))
	if errors.Is(err, sql.ErrNoRows) {
		return DuelResult{}, ErrNotFound
	}
	if err != nil {
		return DuelResult{}, fmt.Errorf("failed to load result of %s: %w", duelID, err)
	}
	return r, nil
}

func (s *SQLiteStore) RecentResults(ctx context.Context, limit int) ([]DuelResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM duel_results ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []DuelResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePack(ctx context.Context, p *cardpack.Pack) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := p.ID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM card_packs WHERE pack_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO card_packs (pack_id, name, imported_at) VALUES (?, ?, ?)`,
		id, p.Name, formatTime(time.Now())); err != nil {
		return err
	}
	for _, c := range packCards(p) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pack_cards (pack_id, card_id, name, card_type, cost, attack, health, archetype)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, int64(c.CardID), c.Name, c.Type, c.Cost, c.Attack, c.Health, c.Archetype); err != nil {
			return fmt.Errorf("failed to insert card %d of pack %s: %w", c.CardID, id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Packs(ctx context.Context) ([]PackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.pack_id, p.name, p.imported_at, COUNT(c.card_id)
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
		var imported string
		if err := rows.Scan(&r.PackID, &r.Name, &imported, &r.Cards); err != nil {
			return nil, err
		}
		if r.ImportedAt, err = time.Parse(timeLayout, imported); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
