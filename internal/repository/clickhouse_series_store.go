package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pkgch "FMPull/pkg/clickhouse"
	"FMPull/pkg/logger"
)

// CHSeriesStore answers start-date lookups from a ClickHouse table of
// downloaded rows, one row per (series, symbol, date). The table is filled
// by whatever consumes the dataset topic.
type CHSeriesStore struct {
	db     *sql.DB
	table  string
	logger *logger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client, table string, lgr *logger.Logger) (*CHSeriesStore, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	return &CHSeriesStore{db: ch.DB(), table: table, logger: lgr}, nil
}

// Schema returns the DDL for the backing table.
func (s *CHSeriesStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            series   LowCardinality(String),
            symbol   String,
            date     Date,
            payload  String,
            inserted DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(inserted)
        ORDER BY (series, symbol, date)
    `, s.table)}
}

func (s *CHSeriesStore) LatestDate(ctx context.Context, series, key string) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT max(date), count() FROM %s WHERE series = ? AND symbol = ?", s.table)
	var (
		latest time.Time
		n      uint64
	)
	if err := s.db.QueryRowContext(ctx, q, series, key).Scan(&latest, &n); err != nil {
		return time.Time{}, false, fmt.Errorf("latest date %s/%s: %w", series, key, err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	s.logger.Debug("latest stored date",
		logger.String("series", series),
		logger.String("key", key),
		logger.Int64("rows", int64(n)))
	return latest.UTC(), true, nil
}
