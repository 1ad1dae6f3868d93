package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// MDataType identifies which market-data series a page addresses.
type MDataType string

const (
	DataTypeCandles   MDataType = "CANDLES"
	DataTypeAggTrades MDataType = "AGGTRADES"
	DataTypeFunding   MDataType = "FUNDING"
	DataTypeOI        MDataType = "OI"
	DataTypePremium   MDataType = "PREMIUM"
)

// -----------------------------------------------------------------------------

// ValidDataType reports whether s names a known data type.
func ValidDataType(s string) bool {
	switch MDataType(s) {
	case DataTypeCandles, DataTypeAggTrades, DataTypeFunding, DataTypeOI, DataTypePremium:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// MPageKey
// -----------------------------------------------------------------------------

// keyDelimiter separates the six canonical key fields. Upstream symbols are
// plain alphanumerics (BTCUSDT, 1000PEPEUSDT), so '|' can never appear inside
// a field.
const keyDelimiter = "|"

// liveSentinel marks a key without an anchored end time. It is parsed before
// any numeric conversion so it can never be mistaken for a timeframe or
// timestamp field.
const liveSentinel = "live"

// DefaultMarketType is assumed when a request omits the market type.
const DefaultMarketType = "perp"

// MPageKey is the immutable identity of a data page. Two keys are the same
// page iff every field matches, including the window size. EndTime == 0 means
// the page is live: its effective range slides to end at "now".
type MPageKey struct {
	DataType     MDataType `json:"data_type"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe,omitempty"`
	MarketType   string    `json:"market_type"`
	EndTime      int64     `json:"end_time,omitempty"`
	WindowMillis int64     `json:"window_millis"`
}

// -----------------------------------------------------------------------------

// NewPageKey builds a key, applying the market-type default.
func NewPageKey(dataType MDataType, symbol, timeframe, marketType string, endTime, windowMillis int64) MPageKey {
	if marketType == "" {
		marketType = DefaultMarketType
	}
	return MPageKey{
		DataType:     dataType,
		Symbol:       symbol,
		Timeframe:    timeframe,
		MarketType:   marketType,
		EndTime:      endTime,
		WindowMillis: windowMillis,
	}
}

// -----------------------------------------------------------------------------

// IsLive reports whether the page window slides to end at "now".
func (k MPageKey) IsLive() bool {
	return k.EndTime == 0
}

// IsCandles reports whether the key addresses a candle series.
func (k MPageKey) IsCandles() bool {
	return k.DataType == DataTypeCandles
}

// IsAggTrades reports whether the key addresses aggregated trades.
func (k MPageKey) IsAggTrades() bool {
	return k.DataType == DataTypeAggTrades
}

// -----------------------------------------------------------------------------

// Range returns the effective [start, end) range in epoch millis, evaluated
// against now for live keys.
func (k MPageKey) Range(now time.Time) MTimeRange {
	end := k.EndTime
	if k.IsLive() {
		end = now.UnixMilli()
	}
	return MTimeRange{Start: end - k.WindowMillis, End: end}
}

// -----------------------------------------------------------------------------

// KeyString renders the canonical six-field form used both as the registry
// map key and as the wire identifier:
//
//	dataType|symbol|timeframe|marketType|end|window
//
// where end is either "live" or a decimal epoch-millis value. The field count
// is fixed, so an empty timeframe survives the round trip.
func (k MPageKey) KeyString() string {
	end := liveSentinel
	if !k.IsLive() {
		end = strconv.FormatInt(k.EndTime, 10)
	}
	return strings.Join([]string{
		string(k.DataType),
		k.Symbol,
		k.Timeframe,
		k.MarketType,
		end,
		strconv.FormatInt(k.WindowMillis, 10),
	}, keyDelimiter)
}

// -----------------------------------------------------------------------------

// ParsePageKey recovers a key from its canonical string form. A wrong field
// split would silently corrupt the effective time range, so every field is
// validated before the key is accepted.
func ParsePageKey(s string) (MPageKey, error) {
	parts := strings.Split(s, keyDelimiter)
	if len(parts) != 6 {
		return MPageKey{}, fmt.Errorf("%w: page key %q: want 6 fields, got %d", ErrValidation, s, len(parts))
	}

	if !ValidDataType(parts[0]) {
		return MPageKey{}, fmt.Errorf("%w: page key %q: unknown data type %q", ErrValidation, s, parts[0])
	}
	if parts[1] == "" {
		return MPageKey{}, fmt.Errorf("%w: page key %q: empty symbol", ErrValidation, s)
	}
	if parts[3] == "" {
		return MPageKey{}, fmt.Errorf("%w: page key %q: empty market type", ErrValidation, s)
	}

	var endTime int64
	if parts[4] != liveSentinel {
		v, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil || v <= 0 {
			return MPageKey{}, fmt.Errorf("%w: page key %q: bad end time %q", ErrValidation, s, parts[4])
		}
		endTime = v
	}

	window, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil || window <= 0 {
		return MPageKey{}, fmt.Errorf("%w: page key %q: bad window %q", ErrValidation, s, parts[5])
	}

	return MPageKey{
		DataType:     MDataType(parts[0]),
		Symbol:       parts[1],
		Timeframe:    parts[2],
		MarketType:   parts[3],
		EndTime:      endTime,
		WindowMillis: window,
	}, nil
}

// -----------------------------------------------------------------------------

// Validate rejects keys that can never load.
func (k MPageKey) Validate() error {
	if !ValidDataType(string(k.DataType)) {
		return fmt.Errorf("%w: unknown data type %q", ErrValidation, k.DataType)
	}
	if k.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrValidation)
	}
	if strings.Contains(k.Symbol, keyDelimiter) {
		return fmt.Errorf("%w: symbol %q contains reserved delimiter", ErrValidation, k.Symbol)
	}
	if k.WindowMillis <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrValidation, k.WindowMillis)
	}
	if k.EndTime < 0 {
		return fmt.Errorf("%w: negative end time %d", ErrValidation, k.EndTime)
	}
	if k.IsCandles() {
		if _, err := TimeframeMillis(k.Timeframe); err != nil {
			return err
		}
	}
	return nil
}
