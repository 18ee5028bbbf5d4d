// Package storage persists finished duel results and card pack catalogs.
// Live duel state is never stored.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
)

var ErrNotFound = errors.New("not found")

// DuelResult is the record of a finished duel.
type DuelResult struct {
	DuelID      string
	StartedAt   time.Time
	EndedAt     time.Time
	Turns       int
	Iterations  int
	PlayerNames [2]string
	// Winner is the index of the winning player, nil for a draw or an
	// abandoned duel.
	Winner   *int
	Checksum string
}

// PackRecord summarizes an imported pack.
type PackRecord struct {
	PackID     string
	Name       string
	Cards      int
	ImportedAt time.Time
}

// Store is implemented by every storage backend.
type Store interface {
	SaveResult(ctx context.Context, r DuelResult) error
	Result(ctx context.Context, duelID string) (DuelResult, error)
	// RecentResults returns up to limit results, most recent first.
	RecentResults(ctx context.Context, limit int) ([]DuelResult, error)
	// SavePack replaces the catalog entry of a pack and its cards.
	SavePack(ctx context.Context, p *cardpack.Pack) error
	Packs(ctx context.Context) ([]PackRecord, error)
	Close() error
}

// Open connects to the configured backend and creates the schema. The
// "none" driver returns a store that keeps nothing.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stats := s.pool.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("max_conns", stats.MaxConns()))
		return s, nil
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("dsn", cfg.DSN))
		return s, nil
	case config.DriverNone, "":
		logger.Warn("storage disabled; duel results will not be kept")
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) SaveResult(context.Context, DuelResult) error { return nil }
func (Nop) Result(context.Context, string) (DuelResult, error) {
	return DuelResult{}, ErrNotFound
}
func (Nop) RecentResults(context.Context, int) ([]DuelResult, error) { return nil, nil }
func (Nop) SavePack(context.Context, *cardpack.Pack) error           { return nil }
func (Nop) Packs(context.Context) ([]PackRecord, error)              { return nil, nil }
func (Nop) Close() error                                             { return nil }

// cardRow is one card of a pack catalog.
type cardRow struct {
	CardID    uint32
	Name      string
	Type      string
	Cost      int
	Attack    int
	Health    int
	Archetype string
}

func packCards(p *cardpack.Pack) []cardRow {
	rows := make([]cardRow, 0, len(p.Cards))
	for id, def := range p.Cards {
		rows = append(rows, cardRow{
			CardID:    id,
			Name:      def.Name,
			Type:      def.Type.String(),
			Cost:      def.Cost,
			Attack:    def.Attack,
			Health:    def.Health,
			Archetype: def.Archetype,
		})
	}
	return rows
}
