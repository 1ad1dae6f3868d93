package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Client Message Handling
//
// Every inbound text frame is handled independently: a malformed message is
// answered with a per-message error reply and the connection stays open.
// -----------------------------------------------------------------------------

func (s *Server) HandleClientMessage(client *Client, message []byte) {
	var msg models.MClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.trySend(protocolError(fmt.Sprintf("malformed message: %v", err)))
		return
	}

	switch msg.Type {
	case models.MsgRequestPage:
		s.handleRequestPage(client, &msg, false)

	case models.MsgBatchRequestPage:
		for i := range msg.Pages {
			s.handleRequestPage(client, &msg.Pages[i], false)
		}

	case models.MsgSubscribeLive:
		s.handleRequestPage(client, &msg, true)

	case models.MsgReleasePage, models.MsgUnsubscribeLive:
		s.handleReleasePage(client, &msg)

	case models.MsgPageStatus:
		s.handlePageStatus(client, &msg)

	case models.MsgCoverage:
		s.handleCoverage(client, &msg)

	case models.MsgAvailableSymbols:
		s.handleAvailableSymbols(client)

	case models.MsgStreamStart:
		s.handleStreamStart(client, &msg)

	case models.MsgStreamCancel:
		// Ownership is enforced inside the coordinator: a cancel for a
		// session this client does not own changes nothing and gets no
		// reply.
		s.Streams.Cancel(msg.RequestID, client.ID)

	case models.MsgStreamResume:
		s.handleStreamResume(client, &msg)

	default:
		client.trySend(protocolError(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// -----------------------------------------------------------------------------
// Page Handlers
// -----------------------------------------------------------------------------

func (s *Server) handleRequestPage(client *Client, msg *models.MClientMessage, forceLive bool) {
	key, err := msg.PageKey()
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}
	// A live subscription always tracks the moving window, whether the
	// request arrived as structured fields or a canonical anchored key.
	if forceLive {
		key.EndTime = 0
	}

	name := msg.ConsumerName
	if name == "" {
		name = client.ID
	}

	status, err := s.Manager.RequestPage(key, client.ID, name)
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}

	client.subscribe(status.Key)
	client.trySend(models.MServerMessage{
		Type:   models.MsgPageStatusReply,
		Key:    status.Key,
		Status: &status,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) handleReleasePage(client *Client, msg *models.MClientMessage) {
	key, err := msg.PageKey()
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}

	s.Manager.ReleasePage(key, client.ID)
	client.unsubscribe(key.KeyString())
}

// -----------------------------------------------------------------------------

func (s *Server) handlePageStatus(client *Client, msg *models.MClientMessage) {
	key, err := msg.PageKey()
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}

	status, ok := s.Manager.PageStatus(key)
	if !ok {
		client.trySend(models.MServerMessage{
			Type:  models.MsgProtocolErrorReply,
			Key:   key.KeyString(),
			Error: "page not found",
		})
		return
	}
	client.trySend(models.MServerMessage{
		Type:   models.MsgPageStatusReply,
		Key:    status.Key,
		Status: &status,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) handleCoverage(client *Client, msg *models.MClientMessage) {
	key, err := msg.PageKey()
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}

	cov, err := s.Manager.Coverage(context.Background(), key)
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}
	client.trySend(models.MServerMessage{
		Type:     models.MsgCoverageReply,
		Key:      cov.Key,
		Coverage: &cov,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) handleAvailableSymbols(client *Client) {
	symbols, err := s.Manager.AvailableSymbols(context.Background())
	if err != nil {
		client.trySend(protocolError(err.Error()))
		return
	}
	client.trySend(models.MServerMessage{
		Type:    models.MsgSymbolsReply,
		Symbols: symbols,
	})
}

// -----------------------------------------------------------------------------
// Stream Handlers
// -----------------------------------------------------------------------------

func (s *Server) handleStreamStart(client *Client, msg *models.MClientMessage) {
	if _, err := s.Streams.Start(client.ID, msg.Symbol, msg.StartTime, msg.EndTime, client); err != nil {
		s.replyStreamError(client, err)
	}
}

// -----------------------------------------------------------------------------

func (s *Server) handleStreamResume(client *Client, msg *models.MClientMessage) {
	if _, err := s.Streams.Resume(client.ID, msg.Symbol, msg.LastTimestamp, msg.EndTime, client); err != nil {
		s.replyStreamError(client, err)
	}
}

// -----------------------------------------------------------------------------

func (s *Server) replyStreamError(client *Client, err error) {
	if errors.Is(err, models.ErrValidation) {
		client.trySend(protocolError(err.Error()))
		return
	}
	client.trySend(models.MServerMessage{
		Type:  models.MsgStreamError,
		Error: err.Error(),
	})
}

// -----------------------------------------------------------------------------

func protocolError(msg string) models.MServerMessage {
	return models.MServerMessage{
		Type:  models.MsgProtocolErrorReply,
		Error: msg,
	}
}
