package interfaces

import "market-data-service/src/models"

// -----------------------------------------------------------------------------
// IStreamEmitter delivers historical-stream messages to one consumer.
// -----------------------------------------------------------------------------

type IStreamEmitter interface {

	// EmitStream sends one stream-scoped message (ack, chunk, heartbeat,
	// end, cancelled, error) to the owning consumer. A failed send is the
	// emitter's problem; the coordinator never blocks on it.
	EmitStream(msg models.MServerMessage)
}
