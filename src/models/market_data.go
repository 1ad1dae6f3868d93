package models

// -----------------------------------------------------------------------------
// Market Data Rows
// -----------------------------------------------------------------------------

// MTimeRange is a half-open [Start, End) range in epoch millis.
type MTimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether ts falls inside the range.
func (r MTimeRange) Contains(ts int64) bool {
	return ts >= r.Start && ts < r.End
}

// Millis returns the range length.
func (r MTimeRange) Millis() int64 {
	return r.End - r.Start
}

// -----------------------------------------------------------------------------

// MAggTrade is one aggregated trade as stored.
type MAggTrade struct {
	Symbol       string  `json:"symbol"`
	TradeID      int64   `json:"trade_id"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Timestamp    int64   `json:"timestamp"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
}

// -----------------------------------------------------------------------------

// MFundingRate is one funding-rate settlement point.
type MFundingRate struct {
	Symbol      string  `json:"symbol"`
	FundingTime int64   `json:"funding_time"`
	Rate        float64 `json:"rate"`
	MarkPrice   float64 `json:"mark_price"`
}

// -----------------------------------------------------------------------------

// MOpenInterest is one open-interest sample.
type MOpenInterest struct {
	Symbol       string  `json:"symbol"`
	Timestamp    int64   `json:"timestamp"`
	OpenInterest float64 `json:"open_interest"`
	NotionalUSD  float64 `json:"notional_usd"`
}

// -----------------------------------------------------------------------------

// MPremiumIndex is one premium-index sample (perp vs spot basis).
type MPremiumIndex struct {
	Symbol     string  `json:"symbol"`
	Timestamp  int64   `json:"timestamp"`
	MarkPrice  float64 `json:"mark_price"`
	IndexPrice float64 `json:"index_price"`
	Premium    float64 `json:"premium"`
}

// -----------------------------------------------------------------------------

// MCoverage describes how much of a requested range local storage already
// holds for a key.
type MCoverage struct {
	Key           string  `json:"key"`
	StoredRecords int64   `json:"stored_records"`
	ExpectedBars  int64   `json:"expected_bars,omitempty"`
	Ratio         float64 `json:"ratio"`
	FirstStored   int64   `json:"first_stored,omitempty"`
	LastStored    int64   `json:"last_stored,omitempty"`
}
