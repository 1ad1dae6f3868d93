package server

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main Hub loop. Registration attaches the client as a page
// listener; deregistration releases every page the client held and cancels
// every stream it owned, so a vanished client never pins a page or leaves an
// orphaned session.
func (s *Server) runHub() {
	for {
		select {
		case client, ok := <-s.register:
			if !ok {
				return
			}
			s.clients[client] = struct{}{}
			s.Manager.AddListener(client)
			s.Logger.Info("client %s connected", client.ID)

		case client, ok := <-s.unregister:
			if !ok {
				return
			}
			if _, known := s.clients[client]; known {
				delete(s.clients, client)
				s.Manager.RemoveListener(client)
				s.Manager.ReleaseAllForConsumer(client.ID)
				s.Streams.CancelAllForConsumer(client.ID)
				close(client.send)
				s.Logger.Info("client %s disconnected", client.ID)
			}
		}
	}
}
