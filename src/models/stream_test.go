package models

import (
	"encoding/json"
	"testing"
)

func TestStreamSessionRecordsCursorAndTotal(t *testing.T) {
	s := NewStreamSession("req-1", "c1", "BTCUSDT", 1000, 11000, false)

	s.MarkStreaming()
	s.RecordChunk(3000, 200)
	s.RecordChunk(6000, 300)
	s.RecordChunk(5000, 100) // late chunk never rewinds the cursor

	total, last := s.Totals()
	if total != 600 {
		t.Errorf("total = %d, want 600", total)
	}
	if last != 6000 {
		t.Errorf("cursor = %d, want 6000", last)
	}
}

func TestStreamSessionProgressMonotonic(t *testing.T) {
	s := NewStreamSession("req-1", "c1", "BTCUSDT", 0, 10_000, false)

	s.RecordChunk(5000, 1)
	if p := s.Progress(); p != 50 {
		t.Errorf("progress = %d, want 50", p)
	}
	if p := s.Progress(); p != 50 {
		t.Errorf("repeated progress = %d, want 50", p)
	}
	s.RecordChunk(10_000, 1)
	if p := s.Progress(); p != 100 {
		t.Errorf("progress = %d, want 100", p)
	}
}

func TestStreamSessionCancelIsSticky(t *testing.T) {
	s := NewStreamSession("req-1", "c1", "BTCUSDT", 0, 10_000, false)
	s.MarkStreaming()
	s.Cancel()

	if !s.Cancelled() {
		t.Fatal("cancel flag not set")
	}
	if s.State() != StreamStateCancelled {
		t.Errorf("state = %s, want CANCELLED", s.State())
	}
}

func TestTradeLitePositionalJSON(t *testing.T) {
	in := MTradeLite{Timestamp: 1_700_000_000_123, Price: 42000.5, Quantity: 0.25, IsBuyerMaker: true}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	want := `[1700000000123,42000.5,0.25,1]`
	if string(raw) != want {
		t.Errorf("marshal = %s, want %s", raw, want)
	}

	var out MTradeLite
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestClientMessagePageKeyPrefersCanonicalString(t *testing.T) {
	msg := MClientMessage{
		Type: MsgRequestPage,
		Key:  "FUNDING|BTCUSDT||perp|live|86400000",
		// Conflicting structured fields must lose to the canonical form.
		DataType: "CANDLES",
		Symbol:   "ETHUSDT",
	}
	key, err := msg.PageKey()
	if err != nil {
		t.Fatal(err)
	}
	if key.DataType != DataTypeFunding || key.Symbol != "BTCUSDT" {
		t.Errorf("key = %+v, want funding BTCUSDT", key)
	}
}
