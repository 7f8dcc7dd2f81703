package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"FMPull/internal/service/fmp"
	"FMPull/pkg/util"
)

// sectorScanLimit is large enough to return every member of a sector.
const sectorScanLimit = 1_000_000

// SymbolSource picks tickers when the caller does not name any: from the
// stock screener, a market index, or a random draw.
type SymbolSource struct {
	fetcher fmp.Fetcher
	urls    *fmp.URLBuilder
}

func NewSymbolSource(f fmp.Fetcher, urls *fmp.URLBuilder) *SymbolSource {
	return &SymbolSource{fetcher: f, urls: urls}
}

// List returns up to limit symbols in screener order, without duplicates.
func (s *SymbolSource) List(ctx context.Context, limit int) ([]string, error) {
	return s.Screen(ctx, fmp.ScreenerQuery{Limit: limit})
}

// Screen returns the symbols matching q, without duplicates.
func (s *SymbolSource) Screen(ctx context.Context, q fmp.ScreenerQuery) ([]string, error) {
	symbols, err := fmp.Screen(ctx, s.fetcher, s.urls, q)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return util.UniqueStrings(symbols), nil
}

// Index returns the current members of a market index or exchange.
func (s *SymbolSource) Index(ctx context.Context, index string) ([]string, error) {
	symbols, err := fmp.IndexSymbols(ctx, s.fetcher, s.urls, index)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	return util.UniqueStrings(symbols), nil
}

// Random draws n distinct symbols among those with financial statements.
// rng may be nil for a non-reproducible draw.
func (s *SymbolSource) Random(ctx context.Context, n int, rng *rand.Rand) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("random symbols: n must be positive, got %d", n)
	}
	all, err := fmp.StatementSymbols(ctx, s.fetcher, s.urls)
	if err != nil {
		return nil, fmt.Errorf("random symbols: %w", err)
	}
	all = util.UniqueStrings(all)
	if n > len(all) {
		return nil, fmt.Errorf("random symbols: asked for %d, only %d available", n, len(all))
	}

	perm := rand.Perm
	if rng != nil {
		perm = rng.Perm
	}
	out := make([]string, n)
	for i, idx := range perm(len(all))[:n] {
		out[i] = all[idx]
	}
	return out, nil
}

// SectorSymbols is the screener membership of one sector.
type SectorSymbols struct {
	Sector  string   `json:"sector"`
	Count   int      `json:"count"`
	Symbols []string `json:"symbols,omitempty"`
}

// PerSector screens every known sector, at most workers at a time, and
// returns them in fmp.Sectors order. Symbols are dropped unless withSymbols.
func (s *SymbolSource) PerSector(ctx context.Context, workers int, withSymbols bool) ([]SectorSymbols, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]SectorSymbols, len(fmp.Sectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sector := range fmp.Sectors {
		g.Go(func() error {
			symbols, err := s.Screen(gctx, fmp.ScreenerQuery{
				Limit:   sectorScanLimit,
				Filters: map[string]string{"sector": sector},
			})
			if err != nil {
				return fmt.Errorf("sector %s: %w", sector, err)
			}
			out[i] = SectorSymbols{Sector: sector, Count: len(symbols)}
			if withSymbols {
				out[i].Symbols = symbols
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
