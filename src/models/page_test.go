package models

import (
	"testing"
	"time"
)

func liveCandlePage(windowMillis int64) *MPage {
	return NewPage(NewPageKey(DataTypeCandles, "BTCUSDT", "1m", "perp", 0, windowMillis))
}

func TestPageLifecycle(t *testing.T) {
	p := liveCandlePage(3_600_000)

	if p.State() != PageStatePending {
		t.Fatalf("new page state = %s, want PENDING", p.State())
	}

	p.SetLoading(0)
	if st := p.Status(); st.State != PageStateLoading || st.Progress != 0 {
		t.Errorf("after SetLoading(0): %+v", st)
	}

	p.SetProgress(40)
	p.SetProgress(20) // progress never goes backwards
	if st := p.Status(); st.Progress != 40 {
		t.Errorf("progress regressed: %d", st.Progress)
	}

	p.SetReady([]byte{1, 2, 3}, 3)
	st := p.Status()
	if st.State != PageStateReady || st.Progress != 100 || st.RecordCount != 3 {
		t.Errorf("after SetReady: %+v", st)
	}
	if st.LastSync == 0 {
		t.Error("READY status must carry a last sync timestamp")
	}
}

func TestPageErrorIsTerminalSnapshot(t *testing.T) {
	p := liveCandlePage(3_600_000)
	p.SetLoading(50)
	p.SetError("upstream down")

	st := p.Status()
	if st.State != PageStateError || st.Progress != 0 || st.Error != "upstream down" {
		t.Errorf("after SetError: %+v", st)
	}
}

func TestConsumerRegistrationIdempotent(t *testing.T) {
	p := liveCandlePage(3_600_000)

	p.AddConsumer("c1", "chart-a")
	p.AddConsumer("c1", "chart-a")
	p.AddConsumer("c2", "chart-b")
	if n := p.ConsumerCount(); n != 2 {
		t.Errorf("consumer count = %d, want 2", n)
	}

	p.RemoveConsumer("c1")
	p.RemoveConsumer("c1") // double release is harmless
	if n := p.ConsumerCount(); n != 1 {
		t.Errorf("consumer count after release = %d, want 1", n)
	}
	if p.HasConsumer("c1") || !p.HasConsumer("c2") {
		t.Error("wrong consumer set after release")
	}
}

func TestLiveWindowTrimsOnEveryClose(t *testing.T) {
	const window = int64(10 * 60_000) // 10 minutes of 1m bars
	p := liveCandlePage(window)

	base := int64(1_700_000_000_000)
	for i := int64(0); i < 30; i++ {
		open := base + i*60_000
		bar := MCandle{Symbol: "BTCUSDT", Timeframe: "1m", OpenTime: open, CloseTime: open + 60_000}
		now := time.UnixMilli(open + 60_000)
		p.AppendClosedBar(bar, now)

		bars, forming := p.LiveWindow()
		if forming != nil {
			t.Fatalf("forming bar must be cleared on close, i=%d", i)
		}
		cutoff := now.UnixMilli() - window
		for _, b := range bars {
			if b.OpenTime < cutoff {
				t.Fatalf("bar open %d older than cutoff %d after close %d", b.OpenTime, cutoff, i)
			}
		}
		if len(bars) > int(window/60_000) {
			t.Fatalf("window holds %d bars, cap is %d", len(bars), window/60_000)
		}
		if got := p.RecordCount(); got != int64(len(bars)) {
			t.Fatalf("record count %d, window holds %d bars after close %d", got, len(bars), i)
		}
	}
}

func TestAppendClosedBarReturnsRemoved(t *testing.T) {
	const window = int64(3 * 60_000)
	p := liveCandlePage(window)

	base := int64(1_700_000_000_000)
	seed := make([]MCandle, 0, 3)
	for i := int64(0); i < 3; i++ {
		open := base + i*60_000
		seed = append(seed, MCandle{OpenTime: open, CloseTime: open + 60_000, Closed: true})
	}
	p.SetClosedBars(seed)

	open := base + 3*60_000
	removed := p.AppendClosedBar(MCandle{OpenTime: open, CloseTime: open + 60_000}, time.UnixMilli(open+60_000))
	if len(removed) != 1 || removed[0].OpenTime != base {
		t.Errorf("removed = %+v, want the single oldest bar", removed)
	}
}

func TestReplaceFormingBarNeverAppends(t *testing.T) {
	p := liveCandlePage(3_600_000)

	for i := 0; i < 5; i++ {
		p.ReplaceFormingBar(MCandle{OpenTime: 1000, Close: float64(i)})
	}
	bars, forming := p.LiveWindow()
	if len(bars) != 0 {
		t.Errorf("updates leaked into closed bars: %d", len(bars))
	}
	if forming == nil || forming.Close != 4 {
		t.Errorf("forming bar = %+v, want latest update", forming)
	}
	if forming.Closed {
		t.Error("forming bar must not be flagged closed")
	}
}
