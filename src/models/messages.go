package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Wire Messages (JSON text frames)
// -----------------------------------------------------------------------------

// Inbound message types.
const (
	MsgRequestPage      = "request_page"
	MsgBatchRequestPage = "batch_request_page"
	MsgReleasePage      = "release_page"
	MsgPageStatus       = "page_status"
	MsgCoverage         = "coverage"
	MsgAvailableSymbols = "available_symbols"
	MsgSubscribeLive    = "subscribe_live"
	MsgUnsubscribeLive  = "unsubscribe_live"
	MsgStreamStart      = "subscribe_aggtrades_history"
	MsgStreamCancel     = "cancel_aggtrades_history"
	MsgStreamResume     = "resume_aggtrades_history"
)

// Outbound message types.
const (
	MsgPageStatusReply     = "page_status"
	MsgPageEvicted         = "page_evicted"
	MsgPageError           = "page_error"
	MsgCoverageReply       = "coverage"
	MsgSymbolsReply        = "available_symbols"
	MsgLiveUpdate          = "live_update"
	MsgLiveAppend          = "live_append"
	MsgStreamStarted       = "aggtrades_history_started"
	MsgStreamResumed       = "aggtrades_history_resumed"
	MsgStreamChunk         = "aggtrades_history_chunk"
	MsgStreamHeartbeat     = "aggtrades_history_heartbeat"
	MsgStreamEnd           = "aggtrades_history_end"
	MsgStreamCancelledAck  = "aggtrades_history_cancelled"
	MsgStreamError         = "aggtrades_history_error"
	MsgProtocolErrorReply  = "error"
)

// -----------------------------------------------------------------------------

// MClientMessage is the envelope for every inbound text frame. Type selects
// the handler; the remaining fields are populated per message type.
type MClientMessage struct {
	Type string `json:"type"`

	// Page addressing (request/release/status/coverage/subscribe).
	DataType     string `json:"data_type,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	Timeframe    string `json:"timeframe,omitempty"`
	MarketType   string `json:"market_type,omitempty"`
	EndTime      int64  `json:"end_time,omitempty"`
	WindowMillis int64  `json:"window_millis,omitempty"`
	Key          string `json:"key,omitempty"`

	// Batch request.
	Pages []MClientMessage `json:"pages,omitempty"`

	// Historical streaming.
	StartTime     int64  `json:"start_time,omitempty"`
	LastTimestamp int64  `json:"last_timestamp,omitempty"`
	RequestID     string `json:"request_id,omitempty"`

	ConsumerName string `json:"consumer_name,omitempty"`
}

// PageKey assembles the addressed key, preferring the canonical string form
// when present.
func (m *MClientMessage) PageKey() (MPageKey, error) {
	if m.Key != "" {
		return ParsePageKey(m.Key)
	}
	key := NewPageKey(MDataType(m.DataType), m.Symbol, m.Timeframe, m.MarketType, m.EndTime, m.WindowMillis)
	if err := key.Validate(); err != nil {
		return MPageKey{}, err
	}
	return key, nil
}

// -----------------------------------------------------------------------------

// MServerMessage is the envelope for every outbound text frame.
type MServerMessage struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`

	Status  *MPageStatus `json:"status,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`

	Coverage *MCoverage `json:"coverage,omitempty"`
	Symbols  []string   `json:"symbols,omitempty"`

	// Live candle events.
	Bar     *MCandle  `json:"bar,omitempty"`
	Removed []MCandle `json:"removed,omitempty"`

	// Historical streaming.
	RequestID     string       `json:"request_id,omitempty"`
	Symbol        string       `json:"symbol,omitempty"`
	StartTime     int64        `json:"start_time,omitempty"`
	EndTime       int64        `json:"end_time,omitempty"`
	Source        string       `json:"source,omitempty"`
	Trades        []MTradeLite `json:"trades,omitempty"`
	Progress      int          `json:"progress,omitempty"`
	StatusText    string       `json:"status_text,omitempty"`
	Total         int64        `json:"total,omitempty"`
	LastTimestamp int64        `json:"last_timestamp,omitempty"`
}

// -----------------------------------------------------------------------------

// MTradeLite is the compact chunk shape for one aggregated trade:
// [timestamp, price, quantity, buyerMakerFlag].
type MTradeLite struct {
	Timestamp    int64
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
}

// MarshalJSON renders the positional array form.
func (t MTradeLite) MarshalJSON() ([]byte, error) {
	flag := 0
	if t.IsBuyerMaker {
		flag = 1
	}
	return json.Marshal([4]any{t.Timestamp, t.Price, t.Quantity, flag})
}

// UnmarshalJSON parses the positional array form.
func (t *MTradeLite) UnmarshalJSON(data []byte) error {
	var raw [4]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Timestamp = int64(raw[0])
	t.Price = raw[1]
	t.Quantity = raw[2]
	t.IsBuyerMaker = raw[3] != 0
	return nil
}

// -----------------------------------------------------------------------------

// TradeLite compacts a stored trade for the chunk wire shape.
func TradeLite(t MAggTrade) MTradeLite {
	return MTradeLite{
		Timestamp:    t.Timestamp,
		Price:        t.Price,
		Quantity:     t.Quantity,
		IsBuyerMaker: t.IsBuyerMaker,
	}
}
