package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"market-data-service/src/logger"
	"market-data-service/src/models"
)

func testBackend(t *testing.T) *SQLBackend {
	t.Helper()
	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "test.db"),
		},
	}
	backend, err := NewSQLiteBackend(cfg, logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func makeTrades(symbol string, n int, startTs int64) []models.MAggTrade {
	trades := make([]models.MAggTrade, 0, n)
	for i := 0; i < n; i++ {
		trades = append(trades, models.MAggTrade{
			Symbol:       symbol,
			TradeID:      int64(i + 1),
			Price:        42000 + float64(i),
			Quantity:     0.5,
			Timestamp:    startTs + int64(i),
			IsBuyerMaker: i%2 == 0,
		})
	}
	return trades
}

// -----------------------------------------------------------------------------
// Candles
// -----------------------------------------------------------------------------

func TestCandleSaveGetUpsert(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	bars := []models.MCandle{
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 1000, CloseTime: 2000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 2000, CloseTime: 3000, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 20},
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "spot", OpenTime: 1000, CloseTime: 2000, Open: 9, High: 9, Low: 9, Close: 9, Volume: 9},
	}
	if err := backend.SaveCandles(ctx, bars); err != nil {
		t.Fatal(err)
	}

	got, err := backend.GetCandles(ctx, "BTCUSDT", "1h", "perp", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars, want 2 perp bars", len(got))
	}
	if got[0].OpenTime != 1000 || got[1].OpenTime != 2000 {
		t.Errorf("bars out of order: %+v", got)
	}
	if got[0].MarketType != "perp" || !got[0].Closed {
		t.Errorf("bar fields wrong: %+v", got[0])
	}

	// Re-saving the same bar replaces its values rather than duplicating.
	bars[0].Close = 7.77
	if err := backend.SaveCandles(ctx, bars[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = backend.GetCandles(ctx, "BTCUSDT", "1h", "perp", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Close != 7.77 {
		t.Errorf("upsert failed: %+v", got)
	}
}

func TestCandleRangeIsHalfOpen(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	bars := []models.MCandle{
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 1000, CloseTime: 2000},
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 2000, CloseTime: 3000},
	}
	if err := backend.SaveCandles(ctx, bars); err != nil {
		t.Fatal(err)
	}

	got, err := backend.GetCandles(ctx, "BTCUSDT", "1h", "perp", models.MTimeRange{Start: 1000, End: 2000})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].OpenTime != 1000 {
		t.Errorf("half-open range violated: %+v", got)
	}
}

// -----------------------------------------------------------------------------
// Aggregated Trades
// -----------------------------------------------------------------------------

func TestAggTradeSaveIsInsertOnly(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	trades := makeTrades("BTCUSDT", 5, 1000)
	if err := backend.SaveAggTrades(ctx, trades); err != nil {
		t.Fatal(err)
	}
	// Replaying the same batch must not duplicate rows.
	if err := backend.SaveAggTrades(ctx, trades); err != nil {
		t.Fatal(err)
	}

	count, err := backend.CountAggTrades(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5 after replay", count)
	}
}

func TestAggTradeBoundsAndCount(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	if err := backend.SaveAggTrades(ctx, makeTrades("BTCUSDT", 10, 1000)); err != nil {
		t.Fatal(err)
	}

	first, last, count, err := backend.AggTradeBounds(ctx, "BTCUSDT", models.MTimeRange{Start: 1002, End: 1008})
	if err != nil {
		t.Fatal(err)
	}
	if first != 1002 || last != 1007 || count != 6 {
		t.Errorf("bounds = (%d, %d, %d), want (1002, 1007, 6)", first, last, count)
	}

	first, last, count, err = backend.AggTradeBounds(ctx, "BTCUSDT", models.MTimeRange{Start: 50_000, End: 60_000})
	if err != nil {
		t.Fatal(err)
	}
	if first != 0 || last != 0 || count != 0 {
		t.Errorf("empty bounds = (%d, %d, %d)", first, last, count)
	}
}

func TestStreamAggTradesChunking(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	trades := makeTrades("BTCUSDT", 25, 1000)
	// Two trades on the same timestamp: the (timestamp, trade_id) cursor
	// must deliver both exactly once even across a chunk boundary.
	trades = append(trades, models.MAggTrade{Symbol: "BTCUSDT", TradeID: 100, Timestamp: 1009, Price: 1, Quantity: 1})
	if err := backend.SaveAggTrades(ctx, trades); err != nil {
		t.Fatal(err)
	}

	var chunks [][]models.MAggTrade
	err := backend.StreamAggTrades(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000}, 10, func(chunk []models.MAggTrade) bool {
		chunks = append(chunks, append([]models.MAggTrade(nil), chunk...))
		return true
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 6 {
		t.Errorf("chunk sizes = %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	seen := make(map[int64]bool)
	prevTs, prevID := int64(-1), int64(-1)
	for _, chunk := range chunks {
		for _, tr := range chunk {
			if seen[tr.TradeID] {
				t.Fatalf("trade %d delivered twice", tr.TradeID)
			}
			seen[tr.TradeID] = true
			if tr.Timestamp < prevTs || (tr.Timestamp == prevTs && tr.TradeID <= prevID) {
				t.Fatalf("ordering violated at trade %d", tr.TradeID)
			}
			prevTs, prevID = tr.Timestamp, tr.TradeID
		}
	}
	if len(seen) != 26 {
		t.Errorf("delivered %d unique trades, want 26", len(seen))
	}
}

func TestStreamAggTradesStopsOnFalse(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	if err := backend.SaveAggTrades(ctx, makeTrades("BTCUSDT", 30, 1000)); err != nil {
		t.Fatal(err)
	}

	calls := 0
	err := backend.StreamAggTrades(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000}, 10, func(chunk []models.MAggTrade) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("onChunk called %d times after returning false", calls)
	}
}

func TestStreamAggTradesCancellable(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	if err := backend.SaveAggTrades(ctx, makeTrades("BTCUSDT", 30, 1000)); err != nil {
		t.Fatal(err)
	}

	calls := 0
	err := backend.StreamAggTrades(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000}, 10, func(chunk []models.MAggTrade) bool {
		calls++
		backend.CancelCurrentFetch()
		return true
	})
	// An abandoned read is distinguishable from a completed one.
	if !errors.Is(err, models.ErrFetchAbandoned) {
		t.Fatalf("err = %v, want ErrFetchAbandoned", err)
	}
	if calls != 1 {
		t.Errorf("onChunk called %d times after cancel, want 1", calls)
	}
}

// -----------------------------------------------------------------------------
// Other Series
// -----------------------------------------------------------------------------

func TestFundingRoundTrip(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	rates := []models.MFundingRate{
		{Symbol: "BTCUSDT", FundingTime: 1000, Rate: 0.0001, MarkPrice: 42000},
		{Symbol: "BTCUSDT", FundingTime: 2000, Rate: -0.0002, MarkPrice: 41000},
	}
	if err := backend.SaveFundingRates(ctx, rates); err != nil {
		t.Fatal(err)
	}
	got, err := backend.GetFundingRates(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Rate != -0.0002 {
		t.Errorf("funding round trip = %+v", got)
	}
}

func TestOpenInterestAndPremiumRoundTrip(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	if err := backend.SaveOpenInterest(ctx, []models.MOpenInterest{
		{Symbol: "BTCUSDT", Timestamp: 1000, OpenInterest: 100, NotionalUSD: 4_200_000},
	}); err != nil {
		t.Fatal(err)
	}
	oi, err := backend.GetOpenInterest(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(oi) != 1 || oi[0].OpenInterest != 100 {
		t.Errorf("open interest = %+v", oi)
	}

	if err := backend.SavePremiumIndex(ctx, []models.MPremiumIndex{
		{Symbol: "BTCUSDT", Timestamp: 1000, MarkPrice: 42000, IndexPrice: 41990, Premium: 0.0002},
	}); err != nil {
		t.Fatal(err)
	}
	pi, err := backend.GetPremiumIndex(ctx, "BTCUSDT", models.MTimeRange{Start: 0, End: 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(pi) != 1 || pi[0].Premium != 0.0002 {
		t.Errorf("premium index = %+v", pi)
	}
}

func TestAvailableSymbols(t *testing.T) {
	backend := testBackend(t)
	ctx := context.Background()

	bars := []models.MCandle{
		{Symbol: "ETHUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 1000, CloseTime: 2000},
		{Symbol: "BTCUSDT", Timeframe: "1h", MarketType: "perp", OpenTime: 1000, CloseTime: 2000},
		{Symbol: "BTCUSDT", Timeframe: "4h", MarketType: "perp", OpenTime: 1000, CloseTime: 2000},
	}
	if err := backend.SaveCandles(ctx, bars); err != nil {
		t.Fatal(err)
	}

	symbols, err := backend.AvailableSymbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Errorf("symbols = %v", symbols)
	}
}
