package pages

import (
	"time"

	"market-data-service/src/interfaces"
	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Live Bridging
//
// Only live candle pages follow the real-time feed, and only once READY.
// "update" replaces the forming bar in place; "close" appends a finalized bar
// and trims the window, with the delta pushed to listeners so subscribers can
// patch incrementally instead of re-fetching.
// -----------------------------------------------------------------------------

func (m *Manager) subscribeLive(page *models.MPage) {
	if m.Bridge == nil {
		return
	}
	key := page.Key
	ks := key.KeyString()

	sub := interfaces.LiveSubscription{
		Symbol:     key.Symbol,
		Timeframe:  key.Timeframe,
		MarketType: key.MarketType,
	}

	m.mu.Lock()
	// Only the instance currently serving the key may own the feed; a page
	// swept out between READY and this point must not leave a subscription
	// behind.
	if m.registry[ks] != page {
		m.mu.Unlock()
		return
	}
	if _, dup := m.liveSubs[ks]; dup {
		m.mu.Unlock()
		return
	}
	m.liveSubs[ks] = sub
	m.mu.Unlock()

	onUpdate := func(bar models.MCandle) {
		page.ReplaceFormingBar(bar)
		page.Touch()
		m.notifyLiveUpdate(ks, bar)
	}

	onClose := func(bar models.MCandle) {
		removed := page.AppendClosedBar(bar, time.Now())
		m.notifyLiveAppend(ks, bar, removed)
	}

	if inflight := m.Bridge.Subscribe(sub, onUpdate, onClose); inflight != nil {
		// Seed the forming bar so a fresh subscriber does not wait a full
		// interval for its first update.
		page.ReplaceFormingBar(*inflight)
	}
}

// -----------------------------------------------------------------------------

// unsubscribeLive detaches the feed for a key before its page leaves the
// registry, preventing an orphaned subscription. Caller holds m.mu.
func (m *Manager) unsubscribeLiveLocked(ks string) {
	sub, ok := m.liveSubs[ks]
	if !ok {
		return
	}
	delete(m.liveSubs, ks)
	if m.Bridge != nil {
		m.Bridge.Unsubscribe(sub)
	}
}
