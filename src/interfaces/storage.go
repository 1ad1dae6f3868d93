package interfaces

import (
	"context"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// IStorageBackend defines the contract for the persistent market-data store.
// -----------------------------------------------------------------------------

type IStorageBackend interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// GetCandles returns stored bars for a symbol/timeframe/market inside
	// the range, ordered by open time.
	GetCandles(ctx context.Context, symbol, timeframe, marketType string, r models.MTimeRange) ([]models.MCandle, error)

	// SaveCandles upserts a batch of bars.
	SaveCandles(ctx context.Context, candles []models.MCandle) error

	// -----------------------------------------------------------------------------

	// GetAggTrades returns stored trades inside the range, ordered by
	// timestamp. Used by tests and small ranges only; bulk delivery goes
	// through StreamAggTrades.
	GetAggTrades(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MAggTrade, error)

	// SaveAggTrades upserts a batch of trades.
	SaveAggTrades(ctx context.Context, trades []models.MAggTrade) error

	// CountAggTrades returns the exact stored row count for the range.
	CountAggTrades(ctx context.Context, symbol string, r models.MTimeRange) (int64, error)

	// AggTradeBounds returns the first and last stored timestamp plus the
	// row count inside the range, without materializing rows.
	AggTradeBounds(ctx context.Context, symbol string, r models.MTimeRange) (first, last, count int64, err error)

	// StreamAggTrades reads the range in chunkSize batches, invoking
	// onChunk for each. Iteration stops early when onChunk returns false
	// or when CancelCurrentFetch is signalled.
	StreamAggTrades(ctx context.Context, symbol string, r models.MTimeRange, chunkSize int, onChunk func([]models.MAggTrade) bool) error

	// CancelCurrentFetch cooperatively abandons the in-flight streaming
	// read, if any.
	CancelCurrentFetch()

	// -----------------------------------------------------------------------------

	// GetFundingRates returns stored funding settlements inside the range.
	GetFundingRates(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MFundingRate, error)

	// SaveFundingRates upserts a batch of funding settlements.
	SaveFundingRates(ctx context.Context, rates []models.MFundingRate) error

	// -----------------------------------------------------------------------------

	// GetOpenInterest returns stored open-interest samples inside the range.
	GetOpenInterest(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MOpenInterest, error)

	// SaveOpenInterest upserts a batch of open-interest samples.
	SaveOpenInterest(ctx context.Context, rows []models.MOpenInterest) error

	// -----------------------------------------------------------------------------

	// GetPremiumIndex returns stored premium-index samples inside the range.
	GetPremiumIndex(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MPremiumIndex, error)

	// SavePremiumIndex upserts a batch of premium-index samples.
	SavePremiumIndex(ctx context.Context, rows []models.MPremiumIndex) error

	// -----------------------------------------------------------------------------

	// AvailableSymbols lists every symbol with at least one stored candle.
	AvailableSymbols(ctx context.Context) ([]string, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
