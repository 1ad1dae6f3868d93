package server

import (
	"fmt"
	"net/http"
	"strings"

	"market-data-service/src/config"
	"market-data-service/src/logger"
	"market-data-service/src/pages"
	"market-data-service/src/streaming"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config  *config.Config
	Logger  *logger.Logger
	Manager *pages.Manager
	Streams *streaming.Coordinator
	engine  *gin.Engine

	// WebSocket clients
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *config.Config, log *logger.Logger, manager *pages.Manager, streams *streaming.Coordinator) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:     cfg,
		Logger:     log,
		Manager:    manager,
		Streams:    streams,
		engine:     gin.Default(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/metrics", s.getMetrics)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/health", s.getHealth)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.runHub()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *Server) Stop() error {
	close(s.register)
	close(s.unregister)
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(200, gin.H{
		"pages":          s.Manager.PageCount(),
		"active_streams": s.Streams.ActiveSessions(),
		"connections":    len(s.clients),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"chunk_size":               s.Config.Streaming.ChunkSize,
		"candle_coverage_ratio":    s.Config.Cache.CandleCoverageRatio,
		"eviction_grace_seconds":   s.Config.Cache.EvictionGraceSeconds,
		"max_concurrent_downloads": s.Config.Cache.MaxConcurrentDownloads,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": len(s.clients),
		"pages":       s.Manager.PageCount(),
	})
}

// -----------------------------------------------------------------------------
// WebSocket Upgrade
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := NewClient(s, conn)
	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
