package models

import "fmt"

// -----------------------------------------------------------------------------
// Candles & Timeframes
// -----------------------------------------------------------------------------

// MCandle is one OHLCV bar. OpenTime/CloseTime are epoch millis.
type MCandle struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	MarketType string  `json:"market_type,omitempty"`
	OpenTime   int64   `json:"open_time"`
	CloseTime  int64   `json:"close_time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	// Closed is false only for the forming bar on a live page.
	Closed bool `json:"closed"`
}

// -----------------------------------------------------------------------------

// timeframeMillis maps exchange interval tokens to their length. The month
// entry uses 30 days; it only feeds expected-bar-count estimates, never bar
// boundary math.
var timeframeMillis = map[string]int64{
	"1m":  60_000,
	"3m":  3 * 60_000,
	"5m":  5 * 60_000,
	"15m": 15 * 60_000,
	"30m": 30 * 60_000,
	"1h":  3_600_000,
	"2h":  2 * 3_600_000,
	"4h":  4 * 3_600_000,
	"6h":  6 * 3_600_000,
	"8h":  8 * 3_600_000,
	"12h": 12 * 3_600_000,
	"1d":  86_400_000,
	"3d":  3 * 86_400_000,
	"1w":  7 * 86_400_000,
	"1M":  30 * 86_400_000,
}

// -----------------------------------------------------------------------------

// TimeframeMillis returns the interval length for a timeframe token.
func TimeframeMillis(tf string) (int64, error) {
	ms, ok := timeframeMillis[tf]
	if !ok {
		return 0, fmt.Errorf("%w: unknown timeframe %q", ErrValidation, tf)
	}
	return ms, nil
}

// -----------------------------------------------------------------------------

// CoarseTimeframe reports whether a timeframe is too coarse for the monthly
// bulk archives and must be backfilled over REST only.
func CoarseTimeframe(tf string) bool {
	return tf == "1w" || tf == "1M"
}

// -----------------------------------------------------------------------------

// ExpectedBarCount estimates how many bars a range should hold at the given
// timeframe. Markets here trade around the clock, so the estimate is pure
// division.
func ExpectedBarCount(r MTimeRange, tf string) (int64, error) {
	ms, err := TimeframeMillis(tf)
	if err != nil {
		return 0, err
	}
	if r.End <= r.Start {
		return 0, nil
	}
	return (r.End - r.Start) / ms, nil
}
