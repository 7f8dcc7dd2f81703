package fmp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"FMPull/internal/domain/models"
	"FMPull/pkg/util"
)

// DefaultBaseURL is the public FMP API root.
const DefaultBaseURL = "https://financialmodelingprep.com/api"

// URLBuilder turns a series, key and window into a request URL.
type URLBuilder struct {
	base   *url.URL
	apiKey string
}

func NewURLBuilder(base, apiKey string) (*URLBuilder, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q needs scheme and host", base)
	}
	return &URLBuilder{base: u, apiKey: apiKey}, nil
}

// Build renders the URL for one Job. key is the symbol, or the indicator
// label for composite series.
func (b *URLBuilder) Build(s models.SeriesDescriptor, key string, w models.QueryWindow) (string, error) {
	q := url.Values{}
	path := s.Path

	switch {
	case s.Composite():
		ind, ok := s.Indicator(key)
		if !ok {
			return "", fmt.Errorf("%w: %s has no indicator %q", models.ErrUnknownSeries, s.Name, key)
		}
		q.Set("name", ind.Name)
	case s.SymbolParam:
		q.Set("symbol", key)
	case strings.Contains(path, "{symbol}"):
		if key == "" {
			return "", fmt.Errorf("%w: %s needs a symbol", models.ErrNoSymbols, s.Name)
		}
		path = strings.ReplaceAll(path, "{symbol}", url.PathEscape(key))
	}

	if s.Periodic && w.Granularity == models.GranularityQuarter {
		q.Set("period", "quarter")
	}
	if w.Limit > 0 {
		q.Set("limit", strconv.Itoa(w.Limit))
	}
	if s.DateRange {
		if !w.Start.IsZero() {
			q.Set("from", util.FormatDay(w.Start))
		}
		if !w.End.IsZero() {
			q.Set("to", util.FormatDay(w.End))
		}
	}
	if b.apiKey != "" {
		q.Set("apikey", b.apiKey)
	}

	u := *b.base
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ScreenerURL renders a stock screener query.
func (b *URLBuilder) ScreenerURL(sq ScreenerQuery) string {
	q := url.Values{}
	for k, v := range sq.Filters {
		q.Set(k, v)
	}
	q.Set("limit", strconv.Itoa(sq.Limit))
	return b.endpoint("v3/stock-screener", q)
}

// IndexURL lists the members of a market index or exchange.
func (b *URLBuilder) IndexURL(index string) (string, error) {
	path, ok := marketIndexPaths[index]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownIndex, index, strings.Join(MarketIndices(), ", "))
	}
	return b.endpoint(path, url.Values{}), nil
}

// StatementSymbolsURL lists every symbol with financial statements.
func (b *URLBuilder) StatementSymbolsURL() string {
	return b.endpoint("v3/financial-statement-symbol-lists", url.Values{})
}

func (b *URLBuilder) endpoint(path string, q url.Values) string {
	if b.apiKey != "" {
		q.Set("apikey", b.apiKey)
	}
	u := *b.base
	u.Path = u.Path + "/" + path
	u.RawQuery = q.Encode()
	return u.String()
}
