package streaming

import (
	"fmt"
	"time"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Heartbeat
//
// Each session gets one scheduled heartbeat emitting progress on its own
// timer, regardless of chunk arrival. Long upstream fetches therefore never
// leave the connection silent.
// -----------------------------------------------------------------------------

func (c *Coordinator) heartbeatLoop(rt *sessionRuntime) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.Config.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-rt.stopHeartbeat:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			session := rt.session
			total, _ := session.Totals()
			rt.emitter.EmitStream(models.MServerMessage{
				Type:       models.MsgStreamHeartbeat,
				RequestID:  session.RequestID,
				Symbol:     session.Symbol,
				Progress:   session.Progress(),
				Total:      total,
				StatusText: heartbeatText(session),
			})
		}
	}
}

// -----------------------------------------------------------------------------

func heartbeatText(s *models.MStreamSession) string {
	total, _ := s.Totals()
	switch s.State() {
	case models.StreamStateStartRequested:
		return "queued"
	case models.StreamStateStreaming:
		return fmt.Sprintf("streaming %s, %d trades sent", s.Symbol, total)
	default:
		return string(s.State())
	}
}
