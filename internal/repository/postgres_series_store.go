package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"FMPull/pkg/logger"
)

// PGSeriesStore is the Postgres flavour of CHSeriesStore.
type PGSeriesStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *logger.Logger
}

func NewPGSeriesStore(pool *pgxpool.Pool, table string, lgr *logger.Logger) (*PGSeriesStore, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	return &PGSeriesStore{pool: pool, table: quoteIdent(table), logger: lgr}, nil
}

func quoteIdent(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func (s *PGSeriesStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            series   TEXT        NOT NULL,
            symbol   TEXT        NOT NULL,
            date     DATE        NOT NULL,
            payload  JSONB       NOT NULL,
            inserted TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (series, symbol, date)
        )
    `, s.table)}
}

func (s *PGSeriesStore) InitSchema(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PGSeriesStore) LatestDate(ctx context.Context, series, key string) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT max(date) FROM %s WHERE series = $1 AND symbol = $2", s.table)
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, q, series, key).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("latest date %s/%s: %w", series, key, err)
	}
	if latest == nil {
		s.logger.Debug("no stored rows", logger.String("series", series), logger.String("key", key))
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}
