package interfaces

import (
	"context"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Exchange Client Contracts
// -----------------------------------------------------------------------------

// ProgressFunc reports monotonic percent-complete for a long fetch.
type ProgressFunc func(percent int)

// -----------------------------------------------------------------------------

// IKlineClient is the REST kline endpoint of one exchange. Implementations
// live outside this core; the load pipeline only consumes the contract.
type IKlineClient interface {

	// FetchAllKlines pages through the REST kline endpoint for the whole
	// range. Cancellation is cooperative through ctx.
	FetchAllKlines(ctx context.Context, symbol, marketType, timeframe string, r models.MTimeRange, progress ProgressFunc) ([]models.MCandle, error)
}

// -----------------------------------------------------------------------------

// IBulkArchiveClient downloads historical monthly archives and persists them,
// topped up over REST for the most recent partial period.
type IBulkArchiveClient interface {

	// SyncWithAPIBackfill covers startMonth..now using bulk archives for
	// whole months and api for the tail.
	SyncWithAPIBackfill(ctx context.Context, symbol, timeframe string, startMonth int64, api IKlineClient, progress ProgressFunc) error
}
