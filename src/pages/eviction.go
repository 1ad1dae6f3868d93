package pages

import (
	"time"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Eviction Sweep
//
// Pages are only ever deleted here. A page qualifies when it has zero
// consumers AND has been idle past the grace period; the grace window is what
// prevents thrash when a consumer releases and resubscribes in quick
// succession. A stuck LOADING page with active consumers is deliberately left
// alone.
// -----------------------------------------------------------------------------

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.Config.EvictionSweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.SweepOnce()
		}
	}
}

// -----------------------------------------------------------------------------

// SweepOnce evicts every page idle past the grace period with no consumers.
// Exported so tests and operational endpoints can force a pass.
func (m *Manager) SweepOnce() int {
	grace := m.Config.EvictionGrace()
	now := time.Now()

	m.mu.Lock()
	var evicted []string
	for ks, page := range m.registry {
		if page.ConsumerCount() != 0 {
			continue
		}
		if now.Sub(page.IdleSince()) < grace {
			continue
		}
		// Feed first, registry second: a live page must never outlive its
		// registry entry as a subscription.
		m.unsubscribeLiveLocked(ks)
		delete(m.registry, ks)
		page.SetEvicted()
		evicted = append(evicted, ks)
	}
	m.mu.Unlock()

	for _, ks := range evicted {
		m.Logger.Info("evicted idle page %s", ks)
		m.notifyEvicted(ks)
	}
	return len(evicted)
}

// -----------------------------------------------------------------------------

// Statuses snapshots every page in the registry.
func (m *Manager) Statuses() []models.MPageStatus {
	m.mu.Lock()
	pages := make([]*models.MPage, 0, len(m.registry))
	for _, p := range m.registry {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	out := make([]models.MPageStatus, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Status())
	}
	return out
}
