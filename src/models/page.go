package models

import (
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Page Lifecycle
// -----------------------------------------------------------------------------

// MPageState is the lifecycle state of a page.
type MPageState string

const (
	PageStatePending MPageState = "PENDING"
	PageStateLoading MPageState = "LOADING"
	PageStateReady   MPageState = "READY"
	PageStateError   MPageState = "ERROR"
	PageStateEvicted MPageState = "EVICTED"
)

// -----------------------------------------------------------------------------
// MPage
// -----------------------------------------------------------------------------

// MPage is the mutable runtime state behind one page key. All access goes
// through the methods; the mutex also guards the live candle window, which is
// written by feed callbacks while being read by concurrent serves.
//
// Payload and RecordCount are trustworthy only once the state is READY.
// Types too large to buffer (aggregated trades) keep a nil payload forever.
type MPage struct {
	Key MPageKey

	mu          sync.RWMutex
	state       MPageState
	progress    int
	errMsg      string
	recordCount int64
	lastSync    time.Time
	lastTouched time.Time
	consumers   map[string]string // consumer id -> display name
	payload     []byte

	// Live candle window: closed bars spanning the trailing window plus at
	// most one forming bar.
	closedBars []MCandle
	formingBar *MCandle
}

// -----------------------------------------------------------------------------

// NewPage creates a page in PENDING with an empty consumer set.
func NewPage(key MPageKey) *MPage {
	return &MPage{
		Key:         key,
		state:       PageStatePending,
		consumers:   make(map[string]string),
		lastTouched: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// State Transitions
// -----------------------------------------------------------------------------

// SetLoading moves the page into LOADING with the given progress percent.
func (p *MPage) SetLoading(progress int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PageStateLoading
	p.progress = clampProgress(progress)
	p.lastTouched = time.Now()
}

// SetProgress bumps the load progress without changing state.
func (p *MPage) SetProgress(progress int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if progress > p.progress {
		p.progress = clampProgress(progress)
	}
}

// SetReady stores the load result and moves to READY(100). payload is nil for
// never-materialized types.
func (p *MPage) SetReady(payload []byte, recordCount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PageStateReady
	p.progress = 100
	p.payload = payload
	p.recordCount = recordCount
	p.lastSync = time.Now()
	p.lastTouched = p.lastSync
}

// SetError moves to ERROR(0) with a message. The page is terminal; a fresh
// request replaces the registry entry instead of retrying this instance.
func (p *MPage) SetError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PageStateError
	p.progress = 0
	p.errMsg = msg
	p.lastTouched = time.Now()
}

// SetEvicted marks the page removed from the registry.
func (p *MPage) SetEvicted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PageStateEvicted
}

// -----------------------------------------------------------------------------
// Consumers
// -----------------------------------------------------------------------------

// AddConsumer registers interest. Re-adding the same id is idempotent.
func (p *MPage) AddConsumer(id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[id] = name
	p.lastTouched = time.Now()
}

// RemoveConsumer drops one consumer. It never deletes the page; deletion is
// the eviction sweep's decision.
func (p *MPage) RemoveConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
	p.lastTouched = time.Now()
}

// ConsumerCount returns the number of registered consumers.
func (p *MPage) ConsumerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.consumers)
}

// HasConsumer reports whether id currently holds the page.
func (p *MPage) HasConsumer(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.consumers[id]
	return ok
}

// -----------------------------------------------------------------------------
// Live Candle Window
// -----------------------------------------------------------------------------

// SetClosedBars installs the initial window after a live load completes.
func (p *MPage) SetClosedBars(bars []MCandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closedBars = bars
}

// ReplaceFormingBar swaps the in-flight bar. Updates never append.
func (p *MPage) ReplaceFormingBar(bar MCandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bar.Closed = false
	p.formingBar = &bar
}

// AppendClosedBar finalizes a bar, clears the forming slot, and trims every
// leading bar older than now-window. Trimming happens on every close, never
// batched, so the window invariant holds after each event. The removed bars
// are returned so subscribers can patch incrementally.
func (p *MPage) AppendClosedBar(bar MCandle, now time.Time) []MCandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	bar.Closed = true
	p.closedBars = append(p.closedBars, bar)
	p.formingBar = nil
	p.lastSync = now

	cutoff := now.UnixMilli() - p.Key.WindowMillis
	i := 0
	for i < len(p.closedBars) && p.closedBars[i].OpenTime < cutoff {
		i++
	}
	removed := append([]MCandle(nil), p.closedBars[:i]...)
	p.closedBars = p.closedBars[i:]
	p.recordCount = int64(len(p.closedBars))
	return removed
}

// LiveWindow returns a copy of the closed bars and the forming bar, if any.
func (p *MPage) LiveWindow() ([]MCandle, *MCandle) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars := append([]MCandle(nil), p.closedBars...)
	if p.formingBar == nil {
		return bars, nil
	}
	forming := *p.formingBar
	return bars, &forming
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// MPageStatus is an immutable snapshot of a page, safe to serialize.
type MPageStatus struct {
	Key         string            `json:"key"`
	State       MPageState        `json:"state"`
	Progress    int               `json:"progress"`
	RecordCount int64             `json:"record_count"`
	LastSync    int64             `json:"last_sync,omitempty"`
	Error       string            `json:"error,omitempty"`
	Consumers   map[string]string `json:"consumers"`
}

// Status snapshots the page under the read lock.
func (p *MPage) Status() MPageStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	consumers := make(map[string]string, len(p.consumers))
	for id, name := range p.consumers {
		consumers[id] = name
	}

	st := MPageStatus{
		Key:         p.Key.KeyString(),
		State:       p.state,
		Progress:    p.progress,
		RecordCount: p.recordCount,
		Error:       p.errMsg,
		Consumers:   consumers,
	}
	if !p.lastSync.IsZero() {
		st.LastSync = p.lastSync.UnixMilli()
	}
	return st
}

// State returns the current lifecycle state.
func (p *MPage) State() MPageState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Payload returns the buffered payload, nil until READY and always nil for
// never-materialized types.
func (p *MPage) Payload() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.payload
}

// RecordCount returns the authoritative row count as of the last sync.
func (p *MPage) RecordCount() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.recordCount
}

// IdleSince reports the last time the page was touched by a consumer, load,
// or live event.
func (p *MPage) IdleSince() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastTouched
}

// Touch refreshes the idle clock.
func (p *MPage) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTouched = time.Now()
}

// -----------------------------------------------------------------------------

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
