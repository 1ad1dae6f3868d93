package pages

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"market-data-service/src/config"
	"market-data-service/src/interfaces"
	"market-data-service/src/logger"
	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Test Fixtures
// -----------------------------------------------------------------------------

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cache.EvictionGraceSeconds = 1
	cfg.Cache.EvictionSweepSeconds = 3600 // sweeps are driven manually
	return cfg
}

func testManager(t *testing.T, deps Deps) *Manager {
	t.Helper()
	m := NewManager(testConfig(), logger.NewLogger("ERROR", "test"), deps)
	t.Cleanup(m.Stop)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// -----------------------------------------------------------------------------
// Fake Storage Backend
// -----------------------------------------------------------------------------

type fakeBackend struct {
	mu      sync.Mutex
	candles []models.MCandle

	// candleGate, when set, blocks GetCandles until closed.
	candleGate      chan struct{}
	candleReadCalls int

	failGetCandles error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) Initialize() error { return nil }
func (b *fakeBackend) Close() error      { return nil }

func (b *fakeBackend) GetCandles(ctx context.Context, symbol, timeframe, marketType string, r models.MTimeRange) ([]models.MCandle, error) {
	b.mu.Lock()
	gate := b.candleGate
	b.candleReadCalls++
	failErr := b.failGetCandles
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failErr != nil {
		return nil, failErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.MCandle
	for _, c := range b.candles {
		if c.Symbol == symbol && c.Timeframe == timeframe && c.MarketType == marketType && r.Contains(c.OpenTime) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}

func (b *fakeBackend) SaveCandles(ctx context.Context, candles []models.MCandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.candles = append(b.candles, candles...)
	return nil
}

func (b *fakeBackend) candleCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.candleReadCalls
}

// The remaining contract methods are unused by the manager paths under test.

func (b *fakeBackend) GetAggTrades(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MAggTrade, error) {
	return nil, nil
}
func (b *fakeBackend) SaveAggTrades(ctx context.Context, trades []models.MAggTrade) error { return nil }
func (b *fakeBackend) CountAggTrades(ctx context.Context, symbol string, r models.MTimeRange) (int64, error) {
	return 0, nil
}
func (b *fakeBackend) AggTradeBounds(ctx context.Context, symbol string, r models.MTimeRange) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}
func (b *fakeBackend) StreamAggTrades(ctx context.Context, symbol string, r models.MTimeRange, chunkSize int, onChunk func([]models.MAggTrade) bool) error {
	return nil
}
func (b *fakeBackend) CancelCurrentFetch() {}
func (b *fakeBackend) GetFundingRates(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MFundingRate, error) {
	return nil, nil
}
func (b *fakeBackend) SaveFundingRates(ctx context.Context, rates []models.MFundingRate) error {
	return nil
}
func (b *fakeBackend) GetOpenInterest(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MOpenInterest, error) {
	return nil, nil
}
func (b *fakeBackend) SaveOpenInterest(ctx context.Context, rows []models.MOpenInterest) error {
	return nil
}
func (b *fakeBackend) GetPremiumIndex(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MPremiumIndex, error) {
	return nil, nil
}
func (b *fakeBackend) SavePremiumIndex(ctx context.Context, rows []models.MPremiumIndex) error {
	return nil
}
func (b *fakeBackend) AvailableSymbols(ctx context.Context) ([]string, error) {
	return []string{"BTCUSDT"}, nil
}

// -----------------------------------------------------------------------------
// Fake Upstream Clients
// -----------------------------------------------------------------------------

type fakeKlineClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeKlineClient) FetchAllKlines(ctx context.Context, symbol, marketType, timeframe string, r models.MTimeRange, progress interfaces.ProgressFunc) ([]models.MCandle, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	step, perr := models.TimeframeMillis(timeframe)
	if perr != nil {
		return nil, perr
	}
	if progress != nil {
		progress(50)
	}

	var bars []models.MCandle
	for open := r.Start; open < r.End; open += step {
		bars = append(bars, models.MCandle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  open,
			CloseTime: open + step,
			Open:      100, High: 110, Low: 90, Close: 105, Volume: 1,
			Closed: true,
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

type fakeAggStore struct {
	count int64
	err   error
}

func (f *fakeAggStore) EnsureCached(ctx context.Context, symbol string, r models.MTimeRange, progress interfaces.ProgressFunc) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if progress != nil {
		progress(80)
	}
	return f.count, nil
}

// -----------------------------------------------------------------------------
// Fake Live Bridge
// -----------------------------------------------------------------------------

type fakeBridge struct {
	mu       sync.Mutex
	onUpdate func(models.MCandle)
	onClose  func(models.MCandle)
	subs     int
	unsubs   int
	inflight *models.MCandle
}

func (f *fakeBridge) Subscribe(sub interfaces.LiveSubscription, onUpdate func(models.MCandle), onClose func(models.MCandle)) *models.MCandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	f.onUpdate = onUpdate
	f.onClose = onClose
	return f.inflight
}

func (f *fakeBridge) Unsubscribe(sub interfaces.LiveSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs++
	f.onUpdate = nil
	f.onClose = nil
}

func (f *fakeBridge) pushUpdate(bar models.MCandle) {
	f.mu.Lock()
	fn := f.onUpdate
	f.mu.Unlock()
	if fn != nil {
		fn(bar)
	}
}

func (f *fakeBridge) pushClose(bar models.MCandle) {
	f.mu.Lock()
	fn := f.onClose
	f.mu.Unlock()
	if fn != nil {
		fn(bar)
	}
}

func (f *fakeBridge) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onClose != nil
}

// -----------------------------------------------------------------------------
// Recording Listener
// -----------------------------------------------------------------------------

type liveAppendEvent struct {
	key     string
	bar     models.MCandle
	removed []models.MCandle
}

type recordingListener struct {
	mu       sync.Mutex
	states   []models.MPageStatus
	ready    []models.MPageStatus
	frames   [][]byte
	errors   []string
	evicted  []string
	updates  []models.MCandle
	appends  []liveAppendEvent
}

func (l *recordingListener) OnStateChanged(status models.MPageStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, status)
}

func (l *recordingListener) OnDataReady(status models.MPageStatus, frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = append(l.ready, status)
	l.frames = append(l.frames, frame)
}

func (l *recordingListener) OnError(status models.MPageStatus, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

func (l *recordingListener) OnEvicted(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evicted = append(l.evicted, key)
}

func (l *recordingListener) OnLiveUpdate(key string, bar models.MCandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, bar)
}

func (l *recordingListener) OnLiveAppend(key string, bar models.MCandle, removed []models.MCandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appends = append(l.appends, liveAppendEvent{key: key, bar: bar, removed: removed})
}

func (l *recordingListener) stateSeq() []models.MPageStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.MPageStatus(nil), l.states...)
}

func (l *recordingListener) readyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ready)
}

func (l *recordingListener) lastFrame() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return nil
	}
	return l.frames[len(l.frames)-1]
}

func (l *recordingListener) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func (l *recordingListener) evictedKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.evicted...)
}

func (l *recordingListener) updateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

func (l *recordingListener) appendEvents() []liveAppendEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]liveAppendEvent(nil), l.appends...)
}
