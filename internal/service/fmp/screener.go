package fmp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownIndex  = errors.New("unknown market index")
	ErrInvalidFilter = errors.New("invalid screener filter")
)

var marketIndexPaths = map[string]string{
	"sp500":     "v3/sp500_constituent",
	"nasdaq100": "v3/nasdaq_constituent",
	"dj":        "v3/dowjones_constituent",
	"euronext":  "v3/symbol/available-euronext",
	"tsx":       "v3/symbol/available-tsx",
	"etfs":      "v3/etf/list",
}

// MarketIndices lists the names IndexURL accepts.
func MarketIndices() []string {
	out := make([]string, 0, len(marketIndexPaths))
	for k := range marketIndexPaths {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sectors are the screener sector values FMP knows about.
var Sectors = []string{
	"Consumer Cyclical", "Energy", "Technology", "Industrials", "Financial Services",
	"Basic Materials", "Communication Services", "Consumer Defensive", "Healthcare",
	"Real Estate", "Utilities", "Industrial Goods", "Financial", "Services", "Conglomerates",
}

var screenerFilters = map[string]bool{
	"marketCapMoreThan": true, "marketCapLowerThan": true,
	"priceMoreThan": true, "priceLowerThan": true,
	"betaMoreThan": true, "betaLowerThan": true,
	"volumeMoreThan": true, "volumeLowerThan": true,
	"dividendMoreThan": true, "dividendLowerThan": true,
	"isEtf": true, "isActivelyTrading": true,
	"sector": true, "industry": true, "country": true, "exchange": true,
}

// ScreenerQuery is one stock screener search.
type ScreenerQuery struct {
	Limit   int
	Filters map[string]string
}

func (q ScreenerQuery) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidFilter, q.Limit)
	}
	for k := range q.Filters {
		if !screenerFilters[k] {
			return fmt.Errorf("%w: %q", ErrInvalidFilter, k)
		}
	}
	return nil
}

// Screen runs a screener query and returns the tickers in upstream order.
func Screen(ctx context.Context, f Fetcher, b *URLBuilder, q ScreenerQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return fetchSymbols(ctx, f, b.ScreenerURL(q), "stock screener")
}

// IndexSymbols lists the current members of a market index or exchange.
func IndexSymbols(ctx context.Context, f Fetcher, b *URLBuilder, index string) ([]string, error) {
	u, err := b.IndexURL(strings.ToLower(index))
	if err != nil {
		return nil, err
	}
	return fetchSymbols(ctx, f, u, index+" constituents")
}

// StatementSymbols lists every ticker FMP has financial statements for.
func StatementSymbols(ctx context.Context, f Fetcher, b *URLBuilder) ([]string, error) {
	return fetchSymbols(ctx, f, b.StatementSymbolsURL(), "statement symbol list")
}

func fetchSymbols(ctx context.Context, f Fetcher, u, what string) ([]string, error) {
	payload, err := f.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	symbols, err := decodeSymbols(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return symbols, nil
}

// decodeSymbols accepts [{"symbol":...}] rows or a plain string array.
func decodeSymbols(payload []byte) ([]string, error) {
	var rows []struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(payload, &rows); err == nil {
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			if r.Symbol != "" {
				out = append(out, r.Symbol)
			}
		}
		return out, nil
	}

	var plain []string
	if err := json.Unmarshal(payload, &plain); err != nil {
		return nil, err
	}
	out := plain[:0]
	for _, s := range plain {
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
