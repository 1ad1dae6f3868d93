package interfaces

import "market-data-service/src/models"

// -----------------------------------------------------------------------------
// ILiveBridge bridges real-time exchange feeds into the page cache.
// -----------------------------------------------------------------------------

// LiveSubscription is the structured feed address. Keeping it a struct rather
// than a joined "SYMBOL:timeframe" string means unsubscribe never has to
// split anything.
type LiveSubscription struct {
	Symbol     string
	Timeframe  string
	MarketType string
}

// -----------------------------------------------------------------------------

type ILiveBridge interface {

	// Subscribe attaches the callback pair to a feed. onUpdate fires with
	// the still-forming bar, onClose with each finalized bar. The return
	// value is the current in-flight bar if the feed already tracks one,
	// so a fresh subscriber does not wait a full interval for its first
	// update.
	Subscribe(sub LiveSubscription, onUpdate func(models.MCandle), onClose func(models.MCandle)) *models.MCandle

	// Unsubscribe detaches the feed. Idempotent.
	Unsubscribe(sub LiveSubscription)
}
