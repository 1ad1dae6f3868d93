package models

import "sync"

// -----------------------------------------------------------------------------
// Streaming Sessions
// -----------------------------------------------------------------------------

// MStreamState is the lifecycle state of one historical stream.
type MStreamState string

const (
	StreamStateStartRequested MStreamState = "START_REQUESTED"
	StreamStateStreaming      MStreamState = "STREAMING"
	StreamStateCompleted      MStreamState = "COMPLETED"
	StreamStateCancelled      MStreamState = "CANCELLED"
	StreamStateErrored        MStreamState = "ERRORED"
)

// -----------------------------------------------------------------------------

// MStreamSession tracks one resumable chunked export of aggregated trades.
// LastChunkTimestamp is the exact resume cursor: a resumed stream starts at
// LastChunkTimestamp+1.
type MStreamSession struct {
	RequestID  string
	ConsumerID string
	Symbol     string
	StartTime  int64
	EndTime    int64
	// Resumed marks a session created by a resume request rather than a
	// fresh start.
	Resumed bool

	mu                 sync.Mutex
	state              MStreamState
	cancelled          bool
	lastChunkTimestamp int64
	totalStreamed      int64
	lastProgress       int
}

// -----------------------------------------------------------------------------

// NewStreamSession creates a session in START_REQUESTED.
func NewStreamSession(requestID, consumerID, symbol string, start, end int64, resumed bool) *MStreamSession {
	return &MStreamSession{
		RequestID:  requestID,
		ConsumerID: consumerID,
		Symbol:     symbol,
		StartTime:  start,
		EndTime:    end,
		Resumed:    resumed,
		state:      StreamStateStartRequested,
	}
}

// -----------------------------------------------------------------------------

// MarkStreaming moves the session into STREAMING.
func (s *MStreamSession) MarkStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StreamStateStreaming
}

// MarkCompleted moves the session into COMPLETED.
func (s *MStreamSession) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StreamStateCompleted
}

// MarkErrored moves the session into ERRORED.
func (s *MStreamSession) MarkErrored() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StreamStateErrored
}

// Cancel flips the cooperative flag; the pull loop checks it between chunks.
func (s *MStreamSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.state = StreamStateCancelled
}

// Cancelled reports whether the session was cancelled.
func (s *MStreamSession) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// State returns the current lifecycle state.
func (s *MStreamSession) State() MStreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// -----------------------------------------------------------------------------

// RecordChunk advances the resume cursor and the delivered total after one
// chunk was pushed.
func (s *MStreamSession) RecordChunk(lastTimestamp int64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lastTimestamp > s.lastChunkTimestamp {
		s.lastChunkTimestamp = lastTimestamp
	}
	s.totalStreamed += int64(count)
}

// Progress returns the percent of the requested range covered by the resume
// cursor, updated monotonically.
func (s *MStreamSession) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.EndTime - s.StartTime
	if span <= 0 {
		return 100
	}
	done := s.lastChunkTimestamp - s.StartTime
	pct := int(done * 100 / span)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > s.lastProgress {
		s.lastProgress = pct
	}
	return s.lastProgress
}

// Totals returns the delivered total and the resume cursor.
func (s *MStreamSession) Totals() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalStreamed, s.lastChunkTimestamp
}
