package interfaces

import "market-data-service/src/models"

// -----------------------------------------------------------------------------
// IPageListener receives page lifecycle and live-data events.
//
// Listeners are an explicit injected list, not a global registration point.
// The manager fans out to every listener and isolates failures: a panic in
// one listener is recovered and logged, never propagated to siblings.
// -----------------------------------------------------------------------------

type IPageListener interface {

	// OnStateChanged fires on every lifecycle transition.
	OnStateChanged(status models.MPageStatus)

	// OnDataReady fires once per successful load, after the READY state
	// change, carrying the materialized frame (nil for never-buffered
	// types).
	OnDataReady(status models.MPageStatus, frame []byte)

	// OnError fires when a load fails.
	OnError(status models.MPageStatus, message string)

	// OnEvicted fires when the sweep removes an idle page.
	OnEvicted(key string)

	// OnLiveUpdate fires when the forming bar of a live page is replaced.
	OnLiveUpdate(key string, bar models.MCandle)

	// OnLiveAppend fires when a bar closes: the finalized bar plus the
	// leading bars trimmed out of the window by this event.
	OnLiveAppend(key string, bar models.MCandle, removed []models.MCandle)
}
