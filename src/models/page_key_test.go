package models

import (
	"testing"
	"time"
)

func TestPageKeyRoundTrip(t *testing.T) {
	dataTypes := []MDataType{DataTypeCandles, DataTypeAggTrades, DataTypeFunding, DataTypeOI, DataTypePremium}
	timeframes := []string{"", "1m", "1h", "1d", "1w", "1M"}
	marketTypes := []string{"perp", "spot"}
	endTimes := []int64{0, 1700000000000} // live and anchored

	for _, dt := range dataTypes {
		for _, tf := range timeframes {
			if dt == DataTypeCandles && tf == "" {
				continue
			}
			for _, mt := range marketTypes {
				for _, end := range endTimes {
					key := NewPageKey(dt, "BTCUSDT", tf, mt, end, 86_400_000)

					parsed, err := ParsePageKey(key.KeyString())
					if err != nil {
						t.Fatalf("parse %q: %v", key.KeyString(), err)
					}
					if parsed != key {
						t.Errorf("round trip mismatch: %+v != %+v", parsed, key)
					}
				}
			}
		}
	}
}

func TestPageKeyLiveSentinelNotConfusedWithNumbers(t *testing.T) {
	key := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "perp", 0, 3_600_000)
	s := key.KeyString()

	parsed, err := ParsePageKey(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if !parsed.IsLive() {
		t.Errorf("expected live key from %q", s)
	}
	if parsed.Timeframe != "1h" {
		t.Errorf("expected timeframe 1h, got %q", parsed.Timeframe)
	}
}

func TestPageKeyWindowSizeDistinguishesPages(t *testing.T) {
	a := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "perp", 0, 3_600_000)
	b := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "perp", 0, 7_200_000)

	if a == b {
		t.Error("keys differing only in window must not be equal")
	}
	if a.KeyString() == b.KeyString() {
		t.Error("keys differing only in window must have distinct strings")
	}
}

func TestPageKeyRange(t *testing.T) {
	now := time.UnixMilli(2_000_000)

	anchored := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "perp", 1_500_000, 500_000)
	r := anchored.Range(now)
	if r.Start != 1_000_000 || r.End != 1_500_000 {
		t.Errorf("anchored range wrong: %+v", r)
	}

	live := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "perp", 0, 500_000)
	r = live.Range(now)
	if r.Start != 1_500_000 || r.End != 2_000_000 {
		t.Errorf("live range wrong: %+v", r)
	}
}

func TestParsePageKeyRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"CANDLES|BTCUSDT|1h|perp|live",                 // five fields
		"CANDLES|BTCUSDT|1h|perp|live|0",               // zero window
		"CANDLES|BTCUSDT|1h|perp|soon|3600000",         // bad end token
		"TICKS|BTCUSDT|1h|perp|live|3600000",           // unknown data type
		"CANDLES||1h|perp|live|3600000",                // empty symbol
		"CANDLES|BTCUSDT|1h||live|3600000",             // empty market type
		"CANDLES|BTCUSDT|1h|perp|live|3600000|extra",   // seven fields
	}
	for _, s := range cases {
		if _, err := ParsePageKey(s); err == nil {
			t.Errorf("expected parse error for %q", s)
		}
	}
}

func TestValidateRejectsBadTimeframe(t *testing.T) {
	key := NewPageKey(DataTypeCandles, "BTCUSDT", "7h", "perp", 0, 3_600_000)
	if err := key.Validate(); err == nil {
		t.Error("expected validation error for unknown timeframe")
	}

	// Non-candle types carry no timeframe and must pass.
	key = NewPageKey(DataTypeFunding, "BTCUSDT", "", "perp", 0, 86_400_000)
	if err := key.Validate(); err != nil {
		t.Errorf("funding key without timeframe should validate: %v", err)
	}
}

func TestDefaultMarketTypeApplied(t *testing.T) {
	key := NewPageKey(DataTypeCandles, "BTCUSDT", "1h", "", 0, 3_600_000)
	if key.MarketType != "perp" {
		t.Errorf("expected default market type perp, got %q", key.MarketType)
	}
}
