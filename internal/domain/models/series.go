package models

import (
	"fmt"
	"strings"
)

// RecordShape tells the decoder where the rows live in a payload.
type RecordShape string

const (
	ShapeTable      RecordShape = "table"      // array of rows
	ShapeHistorical RecordShape = "historical" // {"symbol":..., "historical":[rows]}
	ShapeObject     RecordShape = "object"     // single object, or first element of an array
)

// Indicator is one member of a composite series.
type Indicator struct {
	Name  string // upstream name= parameter
	Label string // column suffix after merging
}

// SeriesDescriptor identifies one data category and how to query it.
type SeriesDescriptor struct {
	Name        string
	Path        string // relative to the API base, {symbol} is substituted
	Shape       RecordShape
	Periodic    bool // accepts period=quarter and limit
	DateRange   bool // accepts from/to
	Mandatory   bool
	Premium     bool // unavailable on a restricted account
	SymbolParam bool // symbol goes into ?symbol= instead of the path
	FixedLimit  int
	Pages       int    // page=0..Pages-1 are fetched and concatenated
	DateField   string // copied into "date" for rows that lack one
	Indicators  []Indicator
}

func (s SeriesDescriptor) Composite() bool { return len(s.Indicators) > 0 }

// Keys returns the inner Batch keys for this series: the symbols, or the
// indicator labels of a composite series.
func (s SeriesDescriptor) Keys(symbols []string) []string {
	if !s.Composite() {
		return symbols
	}
	keys := make([]string, len(s.Indicators))
	for i, ind := range s.Indicators {
		keys[i] = ind.Label
	}
	return keys
}

// Indicator looks up a composite member by label.
func (s SeriesDescriptor) Indicator(label string) (Indicator, bool) {
	for _, ind := range s.Indicators {
		if ind.Label == label {
			return ind, true
		}
	}
	return Indicator{}, false
}

const (
	SeriesPrices             = "Prices"
	SeriesMetaData           = "Meta data"
	SeriesIncome             = "Income"
	SeriesBalance            = "Balance"
	SeriesCashFlow           = "Cash flow"
	SeriesFinancialRatios    = "Financial ratios"
	SeriesEnterpriseValue    = "Enterprise value"
	SeriesKeyMetrics         = "Key metrics"
	SeriesRating             = "FMP rating"
	SeriesDiscountedCashflow = "Discounted cashflow"
	SeriesStockSplits        = "Stock splits"
	SeriesESGScores          = "ESG scores"
	SeriesESGRiskRating      = "ESG risk rating"
	SeriesUpgradesDowngrades = "Upgrades downgrades"
	SeriesInsiderTrades      = "Insider trades"
	SeriesFinancialUS        = "Financial indicators US"
	SeriesHousingUS          = "Housing indicators US"
)

// Catalogue is the immutable set of known series, in listing order.
type Catalogue struct {
	order  []string
	byName map[string]SeriesDescriptor
}

func NewCatalogue(series ...SeriesDescriptor) (*Catalogue, error) {
	c := &Catalogue{byName: make(map[string]SeriesDescriptor, len(series))}
	for _, s := range series {
		if s.Name == "" || s.Path == "" {
			return nil, fmt.Errorf("series descriptor needs name and path: %+v", s)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate series %q", s.Name)
		}
		c.order = append(c.order, s.Name)
		c.byName[s.Name] = s
	}
	return c, nil
}

// Lookup is case sensitive; series names are part of the public contract.
func (c *Catalogue) Lookup(name string) (SeriesDescriptor, error) {
	s, ok := c.byName[name]
	if !ok {
		return SeriesDescriptor{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownSeries, name, strings.Join(c.order, ", "))
	}
	return s, nil
}

func (c *Catalogue) Names() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalogue) All() []SeriesDescriptor {
	out := make([]SeriesDescriptor, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.byName[n])
	}
	return out
}

// Mandatory lists the series flagged mandatory, in catalogue order.
func (c *Catalogue) Mandatory() []string {
	var out []string
	for _, n := range c.order {
		if c.byName[n].Mandatory {
			out = append(out, n)
		}
	}
	return out
}

// DefaultSelection is what a download of "all data" covers.
func DefaultSelection() []string {
	return []string{
		SeriesPrices, SeriesMetaData, SeriesIncome, SeriesBalance, SeriesCashFlow,
		SeriesFinancialRatios, SeriesEnterpriseValue, SeriesRating, SeriesKeyMetrics,
		SeriesDiscountedCashflow,
	}
}

// FMPSeries describes the Financial Modeling Prep endpoints.
func FMPSeries() []SeriesDescriptor {
	periodic := func(name, path string) SeriesDescriptor {
		return SeriesDescriptor{Name: name, Path: path, Shape: ShapeTable, Periodic: true}
	}
	return []SeriesDescriptor{
		{Name: SeriesPrices, Path: "v3/historical-price-full/{symbol}", Shape: ShapeHistorical, DateRange: true, Mandatory: true},
		{Name: SeriesMetaData, Path: "v3/profile/{symbol}", Shape: ShapeObject, Mandatory: true},
		periodic(SeriesIncome, "v3/income-statement/{symbol}"),
		periodic(SeriesBalance, "v3/balance-sheet-statement/{symbol}"),
		periodic(SeriesCashFlow, "v3/cash-flow-statement/{symbol}"),
		periodic(SeriesFinancialRatios, "v3/ratios/{symbol}"),
		periodic(SeriesEnterpriseValue, "v3/enterprise-values/{symbol}"),
		periodic(SeriesKeyMetrics, "v3/key-metrics/{symbol}"),
		{Name: SeriesRating, Path: "v3/historical-rating/{symbol}", Shape: ShapeTable, FixedLimit: 50000},
		{Name: SeriesDiscountedCashflow, Path: "v3/historical-daily-discounted-cash-flow/{symbol}", Shape: ShapeTable, FixedLimit: 50000},
		{Name: SeriesStockSplits, Path: "v3/historical-price-full/stock_split/{symbol}", Shape: ShapeHistorical},
		{Name: SeriesESGScores, Path: "v4/esg-environmental-social-governance-data", Shape: ShapeTable, Premium: true, SymbolParam: true},
		{Name: SeriesESGRiskRating, Path: "v4/esg-environmental-social-governance-data-ratings", Shape: ShapeTable, Premium: true, SymbolParam: true},
		{Name: SeriesUpgradesDowngrades, Path: "v4/upgrades-downgrades-consensus", Shape: ShapeTable, Premium: true, SymbolParam: true},
		{Name: SeriesInsiderTrades, Path: "v4/insider-trading", Shape: ShapeTable, SymbolParam: true, Pages: 2, DateField: "transactionDate"},
		{
			Name: SeriesFinancialUS, Path: "v4/economic", Shape: ShapeTable, DateRange: true,
			Indicators: []Indicator{
				{Name: "retailMoneyFunds", Label: "retailMoneyFunds"},
				{Name: "federalFunds", Label: "federalFunds"},
				{Name: "3MonthOr90DayRatesAndYieldsCertificatesOfDeposit", Label: "3M_CD_rate"},
				{Name: "commercialBankInterestRateOnCreditCardPlansAllAccounts", Label: "CC_interest_commercial"},
			},
		},
		{
			Name: SeriesHousingUS, Path: "v4/economic", Shape: ShapeTable, DateRange: true,
			Indicators: []Indicator{
				{Name: "15YearFixedRateMortgageAverage", Label: "15Y_fixed_mortgage_rate"},
				{Name: "30YearFixedRateMortgageAverage", Label: "30Y_fixed_mortgage_rate"},
				{Name: "newPrivatelyOwnedHousingUnitsStartedTotalUnits", Label: "NewUnits_adjS"},
			},
		},
	}
}

// DefaultCatalogue panics only on a programming error in FMPSeries.
func DefaultCatalogue() *Catalogue {
	c, err := NewCatalogue(FMPSeries()...)
	if err != nil {
		panic(err)
	}
	return c
}
