package pages

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-data-service/src/config"
	"market-data-service/src/interfaces"
	"market-data-service/src/logger"
	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Manager
//
// Central orchestrator of the page cache: registry, load pipeline, eviction
// sweep, live-feed bridging, and listener fan-out. At most one page instance
// exists per canonical key at a time; an evicted or errored key is always
// served by a brand-new instance on the next request, never a resurrection.
// -----------------------------------------------------------------------------

type Manager struct {
	Config *config.Config
	Logger *logger.Logger

	Backend      interfaces.IStorageBackend
	FundingStore interfaces.IFundingStore
	OIStore      interfaces.IOpenInterestStore
	PremiumStore interfaces.IPremiumStore
	AggStore     interfaces.IAggTradeStore
	KlineClient  interfaces.IKlineClient
	Archive      interfaces.IBulkArchiveClient
	Bridge       interfaces.ILiveBridge

	mu       sync.Mutex
	registry map[string]*models.MPage
	liveSubs map[string]interfaces.LiveSubscription

	listenerMu sync.RWMutex
	listeners  []interfaces.IPageListener

	// loadSem caps concurrent load tasks; stream exports run on their own
	// pool so a slow export never starves page loads.
	loadSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

// Deps bundles the collaborators a Manager needs.
type Deps struct {
	Backend      interfaces.IStorageBackend
	FundingStore interfaces.IFundingStore
	OIStore      interfaces.IOpenInterestStore
	PremiumStore interfaces.IPremiumStore
	AggStore     interfaces.IAggTradeStore
	KlineClient  interfaces.IKlineClient
	Archive      interfaces.IBulkArchiveClient
	Bridge       interfaces.ILiveBridge
}

// NewManager wires a Manager. Call Start to launch the eviction sweep.
func NewManager(cfg *config.Config, log *logger.Logger, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		Config:       cfg,
		Logger:       log,
		Backend:      deps.Backend,
		FundingStore: deps.FundingStore,
		OIStore:      deps.OIStore,
		PremiumStore: deps.PremiumStore,
		AggStore:     deps.AggStore,
		KlineClient:  deps.KlineClient,
		Archive:      deps.Archive,
		Bridge:       deps.Bridge,
		registry:     make(map[string]*models.MPage),
		liveSubs:     make(map[string]interfaces.LiveSubscription),
		loadSem:      make(chan struct{}, cfg.Cache.MaxConcurrentDownloads),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// -----------------------------------------------------------------------------

// AddListener appends a listener handle to the fan-out list.
func (m *Manager) AddListener(l interfaces.IPageListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener detaches a listener handle.
func (m *Manager) RemoveListener(l interfaces.IPageListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for i, cur := range m.listeners {
		if cur == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// -----------------------------------------------------------------------------

// Start launches the eviction sweep.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.sweepLoop()
}

// Stop halts the sweep and detaches every live subscription.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bridge != nil {
		for _, sub := range m.liveSubs {
			m.Bridge.Unsubscribe(sub)
		}
	}
	m.liveSubs = make(map[string]interfaces.LiveSubscription)
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// RequestPage creates or reuses the page behind key, registers the consumer,
// and returns the current status. Creation is single-flight: under concurrent
// callers exactly one page instance and one load are launched per new key.
func (m *Manager) RequestPage(key models.MPageKey, consumerID, consumerName string) (models.MPageStatus, error) {
	if err := key.Validate(); err != nil {
		return models.MPageStatus{}, err
	}
	if consumerID == "" {
		return models.MPageStatus{}, fmt.Errorf("%w: empty consumer id", models.ErrValidation)
	}

	ks := key.KeyString()

	m.mu.Lock()
	page, exists := m.registry[ks]
	// Terminal instances are never retried in place; a fresh request gets a
	// brand-new page and load.
	if exists && (page.State() == models.PageStateError || page.State() == models.PageStateEvicted) {
		exists = false
	}
	if !exists {
		page = models.NewPage(key)
		m.registry[ks] = page
	}
	page.AddConsumer(consumerID, consumerName)
	m.mu.Unlock()

	if !exists {
		m.wg.Add(1)
		go m.runLoad(page)
	}

	return page.Status(), nil
}

// -----------------------------------------------------------------------------

// ReleasePage drops one consumer from a page. The page itself is never
// deleted here; only the eviction sweep removes pages, so a release racing a
// fresh request can never destroy the page the request just obtained.
func (m *Manager) ReleasePage(key models.MPageKey, consumerID string) {
	m.mu.Lock()
	page, ok := m.registry[key.KeyString()]
	m.mu.Unlock()
	if !ok {
		return
	}
	page.RemoveConsumer(consumerID)
}

// -----------------------------------------------------------------------------

// ReleaseAllForConsumer drops the consumer from every page it holds, used on
// client disconnect.
func (m *Manager) ReleaseAllForConsumer(consumerID string) {
	m.mu.Lock()
	pages := make([]*models.MPage, 0, len(m.registry))
	for _, p := range m.registry {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	for _, p := range pages {
		if p.HasConsumer(consumerID) {
			p.RemoveConsumer(consumerID)
		}
	}
}

// -----------------------------------------------------------------------------

// PageStatus returns the status snapshot for a key, if present.
func (m *Manager) PageStatus(key models.MPageKey) (models.MPageStatus, bool) {
	m.mu.Lock()
	page, ok := m.registry[key.KeyString()]
	m.mu.Unlock()
	if !ok {
		return models.MPageStatus{}, false
	}
	return page.Status(), true
}

// Page returns the live page instance for a key, if present.
func (m *Manager) Page(key models.MPageKey) (*models.MPage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.registry[key.KeyString()]
	return page, ok
}

// stillRegistered reports whether page is the instance currently serving its
// key.
func (m *Manager) stillRegistered(page *models.MPage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry[page.Key.KeyString()] == page
}

// PageCount returns the registry size.
func (m *Manager) PageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

// -----------------------------------------------------------------------------
// Coverage Queries
// -----------------------------------------------------------------------------

// Coverage reports how much of a key's effective range storage already holds.
func (m *Manager) Coverage(ctx context.Context, key models.MPageKey) (models.MCoverage, error) {
	if err := key.Validate(); err != nil {
		return models.MCoverage{}, err
	}

	r := key.Range(time.Now())
	cov := models.MCoverage{Key: key.KeyString()}

	switch key.DataType {
	case models.DataTypeCandles:
		bars, err := m.Backend.GetCandles(ctx, key.Symbol, key.Timeframe, key.MarketType, r)
		if err != nil {
			return cov, err
		}
		expected, err := models.ExpectedBarCount(r, key.Timeframe)
		if err != nil {
			return cov, err
		}
		cov.StoredRecords = int64(len(bars))
		cov.ExpectedBars = expected
		if expected > 0 {
			cov.Ratio = float64(len(bars)) / float64(expected)
		}
		if len(bars) > 0 {
			cov.FirstStored = bars[0].OpenTime
			cov.LastStored = bars[len(bars)-1].OpenTime
		}

	case models.DataTypeAggTrades:
		first, last, count, err := m.Backend.AggTradeBounds(ctx, key.Symbol, r)
		if err != nil {
			return cov, err
		}
		cov.StoredRecords = count
		cov.FirstStored = first
		cov.LastStored = last
		if count > 0 && r.Millis() > 0 {
			cov.Ratio = float64(last-first) / float64(r.Millis())
		}

	case models.DataTypeFunding:
		rows, err := m.Backend.GetFundingRates(ctx, key.Symbol, r)
		if err != nil {
			return cov, err
		}
		cov.StoredRecords = int64(len(rows))
		if len(rows) > 0 {
			cov.FirstStored = rows[0].FundingTime
			cov.LastStored = rows[len(rows)-1].FundingTime
		}

	case models.DataTypeOI:
		rows, err := m.Backend.GetOpenInterest(ctx, key.Symbol, r)
		if err != nil {
			return cov, err
		}
		cov.StoredRecords = int64(len(rows))
		if len(rows) > 0 {
			cov.FirstStored = rows[0].Timestamp
			cov.LastStored = rows[len(rows)-1].Timestamp
		}

	case models.DataTypePremium:
		rows, err := m.Backend.GetPremiumIndex(ctx, key.Symbol, r)
		if err != nil {
			return cov, err
		}
		cov.StoredRecords = int64(len(rows))
		if len(rows) > 0 {
			cov.FirstStored = rows[0].Timestamp
			cov.LastStored = rows[len(rows)-1].Timestamp
		}
	}

	return cov, nil
}

// -----------------------------------------------------------------------------

// AvailableSymbols lists every symbol with stored candles.
func (m *Manager) AvailableSymbols(ctx context.Context) ([]string, error) {
	return m.Backend.AvailableSymbols(ctx)
}
