package server

import (
	"sync"
	"time"

	"market-data-service/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB for larger JSON messages
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one WebSocket consumer. Its ID doubles as the consumer id on
// pages and the owner id on streaming sessions.
type Client struct {
	ID   string
	Name string

	hub  *Server
	conn *websocket.Conn
	send chan any

	// subscribed filters page events: only keys this client requested or
	// subscribed to are forwarded.
	subMu      sync.RWMutex
	subscribed map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewClient(hub *Server, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send:       make(chan any, 256),
		subscribed: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (c *Client) subscribe(key string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribed[key] = struct{}{}
}

func (c *Client) unsubscribe(key string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subscribed, key)
}

func (c *Client) isSubscribed(key string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscribed[key]
	return ok
}

// -----------------------------------------------------------------------------
// Sending
// -----------------------------------------------------------------------------

// trySend queues a message without ever blocking the caller. A client whose
// buffer is full is pruned: closing the connection trips readPump, which
// deregisters and cancels its sessions, and the client can resume later.
func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
		c.hub.Logger.Warning("client %s too slow, disconnecting", c.ID)
		c.conn.Close()
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Binary page frames go out as-is; everything else is JSON.
			switch m := message.(type) {
			case []byte:
				if err := c.conn.WriteMessage(websocket.BinaryMessage, m); err != nil {
					c.hub.Logger.Info("Write error: %v", err)
					return
				}
			default:
				if err := c.conn.WriteJSON(m); err != nil {
					c.hub.Logger.Info("Write error: %v", err)
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// IStreamEmitter Implementation
// -----------------------------------------------------------------------------

// EmitStream delivers one stream-scoped message to this consumer.
func (c *Client) EmitStream(msg models.MServerMessage) {
	c.trySend(msg)
}

// -----------------------------------------------------------------------------
// IPageListener Implementation
// -----------------------------------------------------------------------------

// OnStateChanged forwards lifecycle transitions for subscribed keys.
func (c *Client) OnStateChanged(status models.MPageStatus) {
	if !c.isSubscribed(status.Key) {
		return
	}
	c.trySend(models.MServerMessage{
		Type:   models.MsgPageStatusReply,
		Key:    status.Key,
		Status: &status,
	})
}

// OnDataReady pushes the binary page frame, when one exists.
func (c *Client) OnDataReady(status models.MPageStatus, frame []byte) {
	if frame == nil || !c.isSubscribed(status.Key) {
		return
	}
	c.trySend(frame)
}

// OnError forwards terminal load failures.
func (c *Client) OnError(status models.MPageStatus, message string) {
	if !c.isSubscribed(status.Key) {
		return
	}
	c.trySend(models.MServerMessage{
		Type:   models.MsgPageError,
		Key:    status.Key,
		Status: &status,
		Error:  message,
	})
}

// OnEvicted forwards evictions and drops the local subscription.
func (c *Client) OnEvicted(key string) {
	if !c.isSubscribed(key) {
		return
	}
	c.unsubscribe(key)
	c.trySend(models.MServerMessage{
		Type: models.MsgPageEvicted,
		Key:  key,
	})
}

// OnLiveUpdate forwards forming-bar replacements.
func (c *Client) OnLiveUpdate(key string, bar models.MCandle) {
	if !c.isSubscribed(key) {
		return
	}
	c.trySend(models.MServerMessage{
		Type: models.MsgLiveUpdate,
		Key:  key,
		Bar:  &bar,
	})
}

// OnLiveAppend forwards bar closes with the trimmed-out leading bars so the
// client can patch its window incrementally.
func (c *Client) OnLiveAppend(key string, bar models.MCandle, removed []models.MCandle) {
	if !c.isSubscribed(key) {
		return
	}
	c.trySend(models.MServerMessage{
		Type:    models.MsgLiveAppend,
		Key:     key,
		Bar:     &bar,
		Removed: removed,
	})
}
