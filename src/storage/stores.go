package storage

import (
	"context"
	"fmt"

	"market-data-service/src/interfaces"
	"market-data-service/src/logger"
	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Per-Type Stores
//
// Each store wraps the backend with cache-check-then-gap-fetch for one data
// type: serve what local storage covers, fetch only the missing head/tail
// sub-ranges from upstream, persist, then re-read so the returned rows are
// always the stored ones.
// -----------------------------------------------------------------------------

// FundingFetcher pulls funding settlements from upstream for a range.
type FundingFetcher func(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MFundingRate, error)

// OpenInterestFetcher pulls open-interest samples from upstream for a range.
type OpenInterestFetcher func(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MOpenInterest, error)

// AggTradeFetcher pulls aggregated trades from upstream for a range.
type AggTradeFetcher func(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) ([]models.MAggTrade, error)

// -----------------------------------------------------------------------------

// headTailGaps splits a range into the sub-ranges not covered by the stored
// [first, last] span. slack absorbs the natural cadence of the series so a
// missing single sample at the edge does not trigger a fetch.
func headTailGaps(r models.MTimeRange, first, last, stored int64, slack int64) []models.MTimeRange {
	if stored == 0 {
		return []models.MTimeRange{r}
	}

	var gaps []models.MTimeRange
	if first-r.Start > slack {
		gaps = append(gaps, models.MTimeRange{Start: r.Start, End: first})
	}
	if r.End-last > 2*slack {
		gaps = append(gaps, models.MTimeRange{Start: last + 1, End: r.End})
	}
	return gaps
}

// -----------------------------------------------------------------------------
// FundingStore
// -----------------------------------------------------------------------------

// FundingStore serves funding rates (8h settlement cadence).
type FundingStore struct {
	Backend interfaces.IStorageBackend
	Fetch   FundingFetcher
	Logger  *logger.Logger
}

const fundingCadenceMillis = 8 * 3_600_000

// GetFundingRates returns the authoritative rows for the range.
func (s *FundingStore) GetFundingRates(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) ([]models.MFundingRate, error) {
	stored, err := s.Backend.GetFundingRates(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 20)

	var first, last int64
	if len(stored) > 0 {
		first, last = stored[0].FundingTime, stored[len(stored)-1].FundingTime
	}

	gaps := headTailGaps(r, first, last, int64(len(stored)), fundingCadenceMillis)
	if len(gaps) == 0 || s.Fetch == nil {
		reportProgress(progress, 100)
		return stored, nil
	}

	for _, gap := range gaps {
		fetched, err := s.Fetch(ctx, symbol, gap)
		if err != nil {
			return nil, fmt.Errorf("%w: funding %s [%d, %d): %v", models.ErrUpstreamFetch, symbol, gap.Start, gap.End, err)
		}
		if err := s.Backend.SaveFundingRates(ctx, fetched); err != nil {
			return nil, err
		}
	}
	reportProgress(progress, 90)

	rows, err := s.Backend.GetFundingRates(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 100)
	return rows, nil
}

// -----------------------------------------------------------------------------
// OpenInterestStore
// -----------------------------------------------------------------------------

// OpenInterestStore serves open-interest samples (5m cadence).
type OpenInterestStore struct {
	Backend interfaces.IStorageBackend
	Fetch   OpenInterestFetcher
	Logger  *logger.Logger
}

const oiCadenceMillis = 5 * 60_000

// GetOpenInterest returns the authoritative rows for the range.
func (s *OpenInterestStore) GetOpenInterest(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) ([]models.MOpenInterest, error) {
	stored, err := s.Backend.GetOpenInterest(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 20)

	var first, last int64
	if len(stored) > 0 {
		first, last = stored[0].Timestamp, stored[len(stored)-1].Timestamp
	}

	gaps := headTailGaps(r, first, last, int64(len(stored)), oiCadenceMillis)
	if len(gaps) == 0 || s.Fetch == nil {
		reportProgress(progress, 100)
		return stored, nil
	}

	for _, gap := range gaps {
		fetched, err := s.Fetch(ctx, symbol, gap)
		if err != nil {
			return nil, fmt.Errorf("%w: open interest %s [%d, %d): %v", models.ErrUpstreamFetch, symbol, gap.Start, gap.End, err)
		}
		if err := s.Backend.SaveOpenInterest(ctx, fetched); err != nil {
			return nil, err
		}
	}
	reportProgress(progress, 90)

	rows, err := s.Backend.GetOpenInterest(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 100)
	return rows, nil
}

// -----------------------------------------------------------------------------
// PremiumStore
// -----------------------------------------------------------------------------

// PremiumIndexFetcher pulls premium-index samples from upstream for a range.
type PremiumIndexFetcher func(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MPremiumIndex, error)

// PremiumStore serves premium-index samples (5m cadence).
type PremiumStore struct {
	Backend interfaces.IStorageBackend
	Fetch   PremiumIndexFetcher
	Logger  *logger.Logger
}

// GetPremiumIndex returns the authoritative rows for the range.
func (s *PremiumStore) GetPremiumIndex(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) ([]models.MPremiumIndex, error) {
	stored, err := s.Backend.GetPremiumIndex(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 20)

	var first, last int64
	if len(stored) > 0 {
		first, last = stored[0].Timestamp, stored[len(stored)-1].Timestamp
	}

	gaps := headTailGaps(r, first, last, int64(len(stored)), oiCadenceMillis)
	if len(gaps) == 0 || s.Fetch == nil {
		reportProgress(progress, 100)
		return stored, nil
	}

	for _, gap := range gaps {
		fetched, err := s.Fetch(ctx, symbol, gap)
		if err != nil {
			return nil, fmt.Errorf("%w: premium index %s [%d, %d): %v", models.ErrUpstreamFetch, symbol, gap.Start, gap.End, err)
		}
		if err := s.Backend.SavePremiumIndex(ctx, fetched); err != nil {
			return nil, err
		}
	}
	reportProgress(progress, 90)

	rows, err := s.Backend.GetPremiumIndex(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	reportProgress(progress, 100)
	return rows, nil
}

// -----------------------------------------------------------------------------
// AggTradeStore
// -----------------------------------------------------------------------------

// AggTradeStore only ever ensures coverage; trade rows are never returned in
// bulk from here. Row counts can exceed safe in-memory limits, so delivery
// always goes through the backend's chunked streaming read.
type AggTradeStore struct {
	Backend interfaces.IStorageBackend
	Fetch   AggTradeFetcher
	Logger  *logger.Logger
}

// aggTradeSlackMillis tolerates the gap between the last stored trade and the
// range end on thinly traded symbols.
const aggTradeSlackMillis = 60_000

// EnsureCached completes local coverage of the range and returns the exact
// stored count. No rows are materialized here.
func (s *AggTradeStore) EnsureCached(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) (int64, error) {
	first, last, count, err := s.Backend.AggTradeBounds(ctx, symbol, r)
	if err != nil {
		return 0, err
	}
	reportProgress(progress, 10)

	gaps := headTailGaps(r, first, last, count, aggTradeSlackMillis)
	if len(gaps) == 0 || s.Fetch == nil {
		reportProgress(progress, 100)
		return count, nil
	}

	for i, gap := range gaps {
		base := 10 + 80*i/len(gaps)
		span := 80 / len(gaps)
		fetched, err := s.Fetch(ctx, symbol, gap, func(pct int) {
			reportProgress(progress, base+pct*span/100)
		})
		if err != nil {
			return 0, fmt.Errorf("%w: agg trades %s [%d, %d): %v", models.ErrUpstreamFetch, symbol, gap.Start, gap.End, err)
		}
		if err := s.Backend.SaveAggTrades(ctx, fetched); err != nil {
			return 0, err
		}
	}

	total, err := s.Backend.CountAggTrades(ctx, symbol, r)
	if err != nil {
		return 0, err
	}
	reportProgress(progress, 100)
	return total, nil
}

// -----------------------------------------------------------------------------

func reportProgress(progress interfaces.ProgressFunc, pct int) {
	if progress != nil {
		progress(pct)
	}
}
