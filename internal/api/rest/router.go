// Package rest provides the Gin-based REST API server.
//
//	@title			tabsync API
//	@version		1.0
//	@description	Relay presence, mutation broadcast and offline simulation for a tabsync node.
//	@BasePath		/
package rest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/iggydv12/tabsync/internal/api/rest/docs"
	"github.com/iggydv12/tabsync/internal/network"
	"github.com/iggydv12/tabsync/internal/offline"
	"github.com/iggydv12/tabsync/internal/relay"
	"github.com/iggydv12/tabsync/internal/transport"
)

// Deps are the components the REST API exposes.
type Deps struct {
	Relay     relay.Handle
	Simulator offline.Simulator
	Network   *network.Environment
	// Hub bridges websocket clients into the relay bus. Nil disables the bridge.
	Hub          *transport.HubHandler
	ProbeURL     string
	ProbeTimeout time.Duration
}

// Server is the REST API server.
type Server struct {
	engine *gin.Engine
	deps   Deps
	logger *zap.Logger
	srv    *http.Server
}

// New creates a REST Server.
func New(deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if deps.ProbeTimeout <= 0 {
		deps.ProbeTimeout = 5 * time.Second
	}
	s := &Server{
		engine: engine,
		deps:   deps,
		logger: logger,
		srv:    &http.Server{Handler: engine, ReadHeaderTimeout: 10 * time.Second},
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	s.logger.Info("REST API listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully. A Start that has not begun
// listening yet returns immediately once Shutdown has been called.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/swagger-ui/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/status", s.status)
	s.engine.POST("/mutations", s.broadcastMutation)
	s.engine.GET("/probe", s.probe)

	offlineGroup := s.engine.Group("/offline")
	{
		offlineGroup.GET("", s.offlineState)
		offlineGroup.POST("/toggle", s.toggleOffline)
	}

	if s.deps.Hub != nil {
		s.engine.GET("/relay/:channel/ws", func(c *gin.Context) {
			s.deps.Hub.Serve(c.Writer, c.Request, c.Param("channel"))
		})
	}
}

// @Summary Liveness check
// @Tags node
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusResponse struct {
	PeerID       string           `json:"peerID"`
	Channel      string           `json:"channel"`
	Connected    bool             `json:"connected"`
	PeerCount    int              `json:"peerCount"`
	Peers        map[string]int64 `json:"peers"` // peerID → lastSeenAt unix ms
	LastMutation *relay.Mutation  `json:"lastMutation"`
	Offline      bool             `json:"offline"`
	Online       bool             `json:"online"`
}

// @Summary Relay and network status
// @Tags relay
// @Produce json
// @Success 200 {object} statusResponse
// @Router /status [get]
func (s *Server) status(c *gin.Context) {
	h := s.deps.Relay
	peers := make(map[string]int64)
	for id, seen := range h.Peers() {
		peers[id] = seen.UnixMilli()
	}
	c.JSON(http.StatusOK, statusResponse{
		PeerID:       h.PeerID(),
		Channel:      h.Channel(),
		Connected:    h.Connected(),
		PeerCount:    h.PeerCount().Get(),
		Peers:        peers,
		LastMutation: h.LastMutation().Get(),
		Offline:      s.deps.Simulator.IsOffline(),
		Online:       s.deps.Network.Online(),
	})
}

type mutationRequest struct {
	Action string `json:"action" binding:"required"`
}

// @Summary Broadcast a mutation notice to the other peers
// @Tags relay
// @Accept json
// @Produce json
// @Param mutation body mutationRequest true "Mutation"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /mutations [post]
func (s *Server) broadcastMutation(c *gin.Context) {
	var body mutationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Relay.BroadcastMutation(body.Action)
	c.JSON(http.StatusAccepted, gin.H{"action": body.Action})
}

// @Summary Offline simulation state
// @Tags offline
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /offline [get]
func (s *Server) offlineState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"offline": s.deps.Simulator.IsOffline(),
		"state":   s.deps.Simulator.State().String(),
	})
}

// @Summary Toggle simulated offline mode
// @Tags offline
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /offline/toggle [post]
func (s *Server) toggleOffline(c *gin.Context) {
	s.deps.Simulator.Toggle()
	s.offlineState(c)
}

// probe fetches the configured upstream through the network seam, so it
// fails while the simulator is offline.
//
// @Summary Fetch the configured upstream through the network seam
// @Tags offline
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]interface{}
// @Router /probe [get]
func (s *Server) probe(c *gin.Context) {
	if s.deps.ProbeURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no probe url configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.deps.ProbeURL, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.deps.Network.Client().Do(req)
	if err != nil {
		s.logger.Debug("Probe failed", zap.String("url", s.deps.ProbeURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "online": s.deps.Network.Online()})
		return
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)
	c.JSON(http.StatusOK, gin.H{
		"url":    s.deps.ProbeURL,
		"status": resp.StatusCode,
		"bytes":  n,
	})
}
