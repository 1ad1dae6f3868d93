package pages

import (
	"fmt"
	"time"

	"market-data-service/src/models"
	"market-data-service/src/protocol"
)

// -----------------------------------------------------------------------------
// Load Pipeline
//
// One load task per page creation, run on the bounded download pool. The task
// owns every notification for its page until READY or ERROR, which keeps
// per-key ordering trivial.
// -----------------------------------------------------------------------------

func (m *Manager) runLoad(page *models.MPage) {
	defer m.wg.Done()

	// Wait for a worker slot; the page stays PENDING until one frees up.
	select {
	case m.loadSem <- struct{}{}:
	case <-m.ctx.Done():
		return
	}
	defer func() { <-m.loadSem }()

	page.SetLoading(0)
	m.notifyStateChanged(page.Status())

	payload, count, liveBars, err := m.loadByType(page)
	if err != nil {
		m.Logger.Error("page %s load failed: %v", page.Key.KeyString(), err)
		page.SetError(err.Error())
		status := page.Status()
		m.notifyStateChanged(status)
		m.notifyError(status, err.Error())
		return
	}

	// The sweep may have evicted this page while the load was in flight.
	// An evicted instance stays evicted: publishing READY here would
	// resurrect it and wire the feed to a page no request can reach.
	if !m.stillRegistered(page) {
		m.Logger.Debug("page %s left the registry mid-load, dropping result", page.Key.KeyString())
		return
	}

	if page.Key.IsCandles() && page.Key.IsLive() {
		page.SetClosedBars(liveBars)
	}
	page.SetReady(payload, count)

	status := page.Status()
	m.notifyStateChanged(status)

	var frame []byte
	if payload != nil {
		frame, err = protocol.PageFrame(page.Key, count, payload)
		if err != nil {
			m.Logger.Error("page %s frame encode failed: %v", page.Key.KeyString(), err)
		}
	}
	m.notifyDataReady(status, frame)

	// Live candle pages start following the feed only once READY, so the
	// initial window can never interleave with live appends.
	if page.Key.IsCandles() && page.Key.IsLive() {
		m.subscribeLive(page)
	}
}

// -----------------------------------------------------------------------------

// loadByType runs the per-data-type branch and returns the payload (nil for
// never-buffered types), the authoritative record count, and, for live candle
// pages, the closed bars forming the initial window.
func (m *Manager) loadByType(page *models.MPage) ([]byte, int64, []models.MCandle, error) {
	key := page.Key
	r := key.Range(time.Now())
	progress := m.progressFunc(page)

	switch key.DataType {
	case models.DataTypeCandles:
		bars, err := m.loadCandles(page, r, progress)
		if err != nil {
			return nil, 0, nil, err
		}
		return protocol.EncodeCandles(bars), int64(len(bars)), bars, nil

	case models.DataTypeAggTrades:
		// Never materialized: the load only completes coverage and records
		// the count. Delivery goes through the chunked streaming path.
		count, err := m.AggStore.EnsureCached(m.ctx, key.Symbol, r, progress)
		if err != nil {
			return nil, 0, nil, err
		}
		return nil, count, nil, nil

	case models.DataTypeFunding:
		rows, err := m.FundingStore.GetFundingRates(m.ctx, key.Symbol, r, progress)
		if err != nil {
			return nil, 0, nil, err
		}
		return protocol.EncodeFundingRates(rows), int64(len(rows)), nil, nil

	case models.DataTypeOI:
		rows, err := m.OIStore.GetOpenInterest(m.ctx, key.Symbol, r, progress)
		if err != nil {
			return nil, 0, nil, err
		}
		return protocol.EncodeOpenInterest(rows), int64(len(rows)), nil, nil

	case models.DataTypePremium:
		rows, err := m.PremiumStore.GetPremiumIndex(m.ctx, key.Symbol, r, progress)
		if err != nil {
			return nil, 0, nil, err
		}
		return protocol.EncodePremiumIndex(rows), int64(len(rows)), nil, nil
	}

	return nil, 0, nil, fmt.Errorf("%w: unhandled data type %q", models.ErrValidation, key.DataType)
}

// -----------------------------------------------------------------------------

// progressFunc forwards monotonic load progress into the page and out to the
// listeners, capped below 100 so READY is always the final transition.
func (m *Manager) progressFunc(page *models.MPage) func(int) {
	last := 0
	return func(pct int) {
		if pct > 99 {
			pct = 99
		}
		if pct <= last {
			return
		}
		last = pct
		page.SetProgress(pct)
		m.notifyStateChanged(page.Status())
	}
}

// -----------------------------------------------------------------------------
// Candles
// -----------------------------------------------------------------------------

// loadCandles reads cached bars and gap-fills when the cache holds less than
// the configured fraction of the expected bar count. The threshold is loose
// on purpose: some symbols are legitimately sparse, and an exact-gap check
// would re-fetch them on every request.
func (m *Manager) loadCandles(page *models.MPage, r models.MTimeRange, progress func(int)) ([]models.MCandle, error) {
	key := page.Key

	cached, err := m.Backend.GetCandles(m.ctx, key.Symbol, key.Timeframe, key.MarketType, r)
	if err != nil {
		return nil, err
	}
	progress(5)

	expected, err := models.ExpectedBarCount(r, key.Timeframe)
	if err != nil {
		return nil, err
	}
	if expected > 0 && float64(len(cached)) >= m.Config.Cache.CandleCoverageRatio*float64(expected) {
		progress(99)
		return cached, nil
	}

	if err := m.gapFillCandles(key, r, progress); err != nil {
		return nil, err
	}

	return m.Backend.GetCandles(m.ctx, key.Symbol, key.Timeframe, key.MarketType, r)
}

// -----------------------------------------------------------------------------

// gapFillCandles covers the range from upstream. Week and month granularities
// are too coarse for the monthly bulk archives and go over REST alone; every
// other timeframe syncs whole historical months from the archive with a REST
// top-up for the recent partial period.
func (m *Manager) gapFillCandles(key models.MPageKey, r models.MTimeRange, progress func(int)) error {
	if models.CoarseTimeframe(key.Timeframe) || m.Archive == nil {
		if m.KlineClient == nil {
			return fmt.Errorf("%w: no kline client configured", models.ErrUpstreamFetch)
		}
		bars, err := m.KlineClient.FetchAllKlines(m.ctx, key.Symbol, key.MarketType, key.Timeframe, r, progress)
		if err != nil {
			return fmt.Errorf("%w: klines %s %s: %v", models.ErrUpstreamFetch, key.Symbol, key.Timeframe, err)
		}
		for i := range bars {
			bars[i].MarketType = key.MarketType
		}
		return m.Backend.SaveCandles(m.ctx, bars)
	}

	startMonth := truncateToMonth(r.Start)
	if err := m.Archive.SyncWithAPIBackfill(m.ctx, key.Symbol, key.Timeframe, startMonth, m.KlineClient, progress); err != nil {
		return fmt.Errorf("%w: archive sync %s %s: %v", models.ErrUpstreamFetch, key.Symbol, key.Timeframe, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// truncateToMonth floors an epoch-millis timestamp to the first instant of
// its UTC month.
func truncateToMonth(ts int64) int64 {
	t := time.UnixMilli(ts).UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
}
