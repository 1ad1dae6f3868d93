package interfaces

import (
	"context"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Per-Type Stores
//
// Each store owns cache-check-then-gap-fetch for one data type: it serves
// whatever local storage covers and fetches only the missing sub-ranges from
// upstream before re-reading.
// -----------------------------------------------------------------------------

type IFundingStore interface {

	// GetFundingRates returns the authoritative rows for the range,
	// gap-filling from upstream first when storage has holes.
	GetFundingRates(ctx context.Context, symbol string, r models.MTimeRange, progress ProgressFunc) ([]models.MFundingRate, error)
}

// -----------------------------------------------------------------------------

type IOpenInterestStore interface {
	GetOpenInterest(ctx context.Context, symbol string, r models.MTimeRange, progress ProgressFunc) ([]models.MOpenInterest, error)
}

// -----------------------------------------------------------------------------

type IPremiumStore interface {
	GetPremiumIndex(ctx context.Context, symbol string, r models.MTimeRange, progress ProgressFunc) ([]models.MPremiumIndex, error)
}

// -----------------------------------------------------------------------------

type IAggTradeStore interface {

	// EnsureCached completes local coverage of the range without ever
	// materializing the rows, and returns the exact stored count.
	EnsureCached(ctx context.Context, symbol string, r models.MTimeRange, progress ProgressFunc) (int64, error)
}
