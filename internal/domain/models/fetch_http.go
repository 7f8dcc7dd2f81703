package models

// FetchHTTPRequest is the body of POST /api/fetch.
type FetchHTTPRequest struct {
	Symbols    []string `json:"symbols" validate:"omitempty,max=500,dive,required,max=20"`
	Series     []string `json:"series" validate:"omitempty,dive,required"`
	Start      string   `json:"start"`
	End        string   `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Period     string   `json:"period" default:"auto" validate:"oneof=auto quarterly annually"`
	PricesOnly bool     `json:"prices_only"`
}

// FetchHTTPResponse reports a collected dataset without its rows.
type FetchHTTPResponse struct {
	Symbols   []string                  `json:"symbols"`
	Series    []string                  `json:"series"`
	Rows      map[string]map[string]int `json:"rows"` // series -> symbol -> row count, 0 when missing
	Composite map[string]int            `json:"composite,omitempty"`
	Summary   Summary                   `json:"summary"`
}

// NewFetchHTTPResponse counts rows per cell of ds.
func NewFetchHTTPResponse(ds *CleanedDataset) FetchHTTPResponse {
	out := FetchHTTPResponse{
		Symbols:   ds.Symbols,
		Series:    ds.SeriesOrder,
		Rows:      make(map[string]map[string]int, len(ds.Series)),
		Composite: make(map[string]int, len(ds.Composite)),
		Summary:   ds.Summary,
	}
	if out.Symbols == nil {
		out.Symbols = []string{}
	}
	for name, cells := range ds.Series {
		counts := make(map[string]int, len(cells))
		for sym, rec := range cells {
			counts[sym] = rec.Len()
		}
		out.Rows[name] = counts
	}
	for name, f := range ds.Composite {
		out.Composite[name] = f.Len()
	}
	return out
}

// SeriesInfo describes one catalogue entry for listing.
type SeriesInfo struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Periodic   bool     `json:"periodic"`
	Mandatory  bool     `json:"mandatory"`
	Premium    bool     `json:"premium"`
	Pages      int      `json:"pages,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
}

func NewSeriesInfo(s SeriesDescriptor) SeriesInfo {
	info := SeriesInfo{Name: s.Name, Path: s.Path, Periodic: s.Periodic, Mandatory: s.Mandatory, Premium: s.Premium, Pages: s.Pages}
	for _, ind := range s.Indicators {
		info.Indicators = append(info.Indicators, ind.Label)
	}
	return info
}
