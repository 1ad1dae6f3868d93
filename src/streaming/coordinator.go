package streaming

import (
	"context"
	"fmt"
	"sync"

	"market-data-service/src/config"
	"market-data-service/src/interfaces"
	"market-data-service/src/logger"
	"market-data-service/src/models"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Coordinator
//
// Drives resumable chunked exports of aggregated trades, independent of the
// page abstraction. One session per requestId; sessions are discarded on
// completion, cancel, error, or disconnect. Stream execution runs on its own
// bounded pool so a slow export never starves page loads, and vice versa.
// -----------------------------------------------------------------------------

// Source labels for chunk messages.
const (
	SourceCache   = "cache"
	SourceFetched = "fetched"
)

type Coordinator struct {
	Config  *config.Config
	Logger  *logger.Logger
	Backend interfaces.IStorageBackend
	Store   interfaces.IAggTradeStore

	mu       sync.Mutex
	sessions map[string]*sessionRuntime

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// sessionRuntime pairs a session with its consumer-facing emitter and the
// heartbeat stop signal.
type sessionRuntime struct {
	session       *models.MStreamSession
	emitter       interfaces.IStreamEmitter
	stopHeartbeat chan struct{}
	hbOnce        sync.Once
}

func (rt *sessionRuntime) haltHeartbeat() {
	rt.hbOnce.Do(func() { close(rt.stopHeartbeat) })
}

// -----------------------------------------------------------------------------

// NewCoordinator wires a Coordinator.
func NewCoordinator(cfg *config.Config, log *logger.Logger, backend interfaces.IStorageBackend, store interfaces.IAggTradeStore) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		Config:   cfg,
		Logger:   log,
		Backend:  backend,
		Store:    store,
		sessions: make(map[string]*sessionRuntime),
		sem:      make(chan struct{}, cfg.Streaming.MaxConcurrentStreams),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// -----------------------------------------------------------------------------

// Stop cancels every session and waits for workers to drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for _, rt := range c.sessions {
		rt.session.Cancel()
		rt.haltHeartbeat()
	}
	c.mu.Unlock()

	c.cancel()
	c.Backend.CancelCurrentFetch()
	c.wg.Wait()
}

// ActiveSessions returns the number of live sessions.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// -----------------------------------------------------------------------------
// Start / Resume
// -----------------------------------------------------------------------------

// Start allocates a fresh session over [start, end), acknowledges it, and
// begins pulling chunks. The returned requestId tags every later message.
func (c *Coordinator) Start(consumerID, symbol string, start, end int64, emitter interfaces.IStreamEmitter) (string, error) {
	return c.launch(consumerID, symbol, start, end, false, emitter)
}

// Resume supersedes a cancelled or disconnected stream: a brand-new session
// and requestId over (lastTimestamp, end), acknowledged with a distinct
// resumed message so the client can tell a continuation from a fresh start.
// Dedup across the seam is the client's responsibility.
func (c *Coordinator) Resume(consumerID, symbol string, lastTimestamp, end int64, emitter interfaces.IStreamEmitter) (string, error) {
	return c.launch(consumerID, symbol, lastTimestamp+1, end, true, emitter)
}

// -----------------------------------------------------------------------------

func (c *Coordinator) launch(consumerID, symbol string, start, end int64, resumed bool, emitter interfaces.IStreamEmitter) (string, error) {
	if consumerID == "" || symbol == "" {
		return "", fmt.Errorf("%w: consumer id and symbol are required", models.ErrValidation)
	}
	if end <= start {
		return "", fmt.Errorf("%w: empty stream range [%d, %d)", models.ErrValidation, start, end)
	}

	requestID := uuid.NewString()
	session := models.NewStreamSession(requestID, consumerID, symbol, start, end, resumed)
	rt := &sessionRuntime{
		session:       session,
		emitter:       emitter,
		stopHeartbeat: make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[requestID] = rt
	c.mu.Unlock()

	ackType := models.MsgStreamStarted
	if resumed {
		ackType = models.MsgStreamResumed
	}
	emitter.EmitStream(models.MServerMessage{
		Type:      ackType,
		RequestID: requestID,
		Symbol:    symbol,
		StartTime: start,
		EndTime:   end,
	})

	// Heartbeat runs on its own timer so the connection stays informative
	// even while the pull is stalled on an upstream fetch.
	c.wg.Add(2)
	go c.heartbeatLoop(rt)
	go c.run(rt)

	return requestID, nil
}

// -----------------------------------------------------------------------------
// Cancel
// -----------------------------------------------------------------------------

// Cancel stops a session. The request must come from the owning consumer; a
// foreign cancel is ignored entirely, with no state change and no reply.
func (c *Coordinator) Cancel(requestID, consumerID string) {
	c.mu.Lock()
	rt, ok := c.sessions[requestID]
	if !ok || rt.session.ConsumerID != consumerID {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, requestID)
	c.mu.Unlock()

	rt.session.Cancel()
	c.Backend.CancelCurrentFetch()
	rt.haltHeartbeat()

	total, lastTs := rt.session.Totals()
	rt.emitter.EmitStream(models.MServerMessage{
		Type:          models.MsgStreamCancelledAck,
		RequestID:     requestID,
		Symbol:        rt.session.Symbol,
		Total:         total,
		LastTimestamp: lastTs,
	})
}

// -----------------------------------------------------------------------------

// CancelAllForConsumer cancels every session a disconnected consumer owns,
// without emitting acknowledgements nobody would receive.
func (c *Coordinator) CancelAllForConsumer(consumerID string) {
	c.mu.Lock()
	var owned []*sessionRuntime
	for id, rt := range c.sessions {
		if rt.session.ConsumerID == consumerID {
			owned = append(owned, rt)
			delete(c.sessions, id)
		}
	}
	c.mu.Unlock()

	for _, rt := range owned {
		rt.session.Cancel()
		rt.haltHeartbeat()
	}
	if len(owned) > 0 {
		c.Backend.CancelCurrentFetch()
	}
}

// -----------------------------------------------------------------------------
// Pull Loop
// -----------------------------------------------------------------------------

func (c *Coordinator) run(rt *sessionRuntime) {
	defer c.wg.Done()

	select {
	case c.sem <- struct{}{}:
	case <-c.ctx.Done():
		return
	}
	defer func() { <-c.sem }()

	session := rt.session
	if session.Cancelled() {
		return
	}
	session.MarkStreaming()

	r := models.MTimeRange{Start: session.StartTime, End: session.EndTime}

	// Storage-level gap-fill before the read loop; the source label tells
	// the client whether rows were already local.
	source := SourceCache
	before, err := c.Backend.CountAggTrades(c.ctx, session.Symbol, r)
	if err == nil && c.Store != nil {
		after, ensureErr := c.Store.EnsureCached(c.ctx, session.Symbol, r, nil)
		if ensureErr != nil {
			c.fail(rt, ensureErr)
			return
		}
		if after > before {
			source = SourceFetched
		}
	} else if err != nil {
		c.fail(rt, err)
		return
	}

	chunkSize := c.Config.Streaming.ChunkSize
	err = c.Backend.StreamAggTrades(c.ctx, session.Symbol, r, chunkSize, func(chunk []models.MAggTrade) bool {
		// Cooperative cancellation, checked between chunks.
		if session.Cancelled() {
			return false
		}

		trades := make([]models.MTradeLite, len(chunk))
		for i, t := range chunk {
			trades[i] = models.TradeLite(t)
		}
		session.RecordChunk(chunk[len(chunk)-1].Timestamp, len(chunk))

		rt.emitter.EmitStream(models.MServerMessage{
			Type:      models.MsgStreamChunk,
			RequestID: session.RequestID,
			Symbol:    session.Symbol,
			Source:    source,
			Trades:    trades,
			Progress:  session.Progress(),
		})
		return true
	})

	if session.Cancelled() {
		// Cancel already cleaned up and acknowledged.
		return
	}
	if err != nil {
		// Includes ErrFetchAbandoned: the abort flag is shared across the
		// backend, so a neighbor's cancel can interrupt this read. The
		// session errors with its current cursor instead of reporting a
		// truncated range as complete, and the client resumes from there.
		c.fail(rt, err)
		return
	}

	rt.haltHeartbeat()
	session.MarkCompleted()
	c.drop(session.RequestID)

	total, lastTs := session.Totals()
	rt.emitter.EmitStream(models.MServerMessage{
		Type:          models.MsgStreamEnd,
		RequestID:     session.RequestID,
		Symbol:        session.Symbol,
		Total:         total,
		LastTimestamp: lastTs,
		Progress:      100,
	})
}

// -----------------------------------------------------------------------------

// fail terminates a session with an error message. Already-streamed data is
// never retracted; delivery is at-least-once and resume dedup is on the
// client.
func (c *Coordinator) fail(rt *sessionRuntime, err error) {
	rt.haltHeartbeat()
	rt.session.MarkErrored()
	c.drop(rt.session.RequestID)

	c.Logger.Error("stream %s failed: %v", rt.session.RequestID, err)
	total, lastTs := rt.session.Totals()
	rt.emitter.EmitStream(models.MServerMessage{
		Type:          models.MsgStreamError,
		RequestID:     rt.session.RequestID,
		Symbol:        rt.session.Symbol,
		Error:         err.Error(),
		Total:         total,
		LastTimestamp: lastTs,
	})
}

func (c *Coordinator) drop(requestID string) {
	c.mu.Lock()
	delete(c.sessions, requestID)
	c.mu.Unlock()
}
