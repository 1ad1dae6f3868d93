package pages

import (
	"market-data-service/src/interfaces"
	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Listener Fan-Out
//
// Every notification walks the injected listener list. A panicking listener
// is recovered and logged; delivery to the remaining listeners continues.
// Notifications for one page key are strictly ordered because a single task
// emits them sequentially; nothing is guaranteed across keys.
// -----------------------------------------------------------------------------

func (m *Manager) eachListener(fn func(interfaces.IPageListener)) {
	m.listenerMu.RLock()
	listeners := make([]interfaces.IPageListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()

	for _, l := range listeners {
		func(l interfaces.IPageListener) {
			defer func() {
				if r := recover(); r != nil {
					m.Logger.Error("listener panic: %v", r)
				}
			}()
			fn(l)
		}(l)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) notifyStateChanged(status models.MPageStatus) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnStateChanged(status) })
}

func (m *Manager) notifyDataReady(status models.MPageStatus, frame []byte) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnDataReady(status, frame) })
}

func (m *Manager) notifyError(status models.MPageStatus, message string) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnError(status, message) })
}

func (m *Manager) notifyEvicted(key string) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnEvicted(key) })
}

func (m *Manager) notifyLiveUpdate(key string, bar models.MCandle) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnLiveUpdate(key, bar) })
}

func (m *Manager) notifyLiveAppend(key string, bar models.MCandle, removed []models.MCandle) {
	m.eachListener(func(l interfaces.IPageListener) { l.OnLiveAppend(key, bar, removed) })
}
