// Package devstore implements a local stand-in for the external low-latency
// feature store: an HTTP upsert/read surface over an in-memory backend, plus
// a websocket feed of upserts for scoring-service development.
//
// It exists so the HTTP store client and round-trip tests have a real server
// shape to talk to; production deployments point the pipeline at the managed
// store instead.
package devstore

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/metrics"
)

// Server serves the dev feature store API.
type Server struct {
	store  *featurestore.MemoryStore
	hub    *Hub
	logger *slog.Logger
}

type putRequest struct {
	Features []featurestore.Feature `json:"features" binding:"required"`
}

type recordResponse struct {
	Key      string                 `json:"key"`
	Features []featurestore.Feature `json:"features"`
}

// New creates a dev store server with an empty backend.
func New(logger *slog.Logger) *Server {
	return &Server{
		store:  featurestore.NewMemoryStore(),
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/v1")
	{
		v1.PUT("/records/:key", s.handlePut)
		v1.GET("/records/:key", s.handleGet)
		v1.GET("/updates", s.hub.ServeWS)
	}
	return r
}

// Run starts the hub's broadcast loop. Call before serving.
func (s *Server) Run() {
	go s.hub.Run()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"records": s.store.Len(),
	})
}

func (s *Server) handlePut(c *gin.Context) {
	key := c.Param("key")

	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if err := s.store.Put(c.Request.Context(), key, req.Features); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.hub.Broadcast(Update{
		Key:        key,
		Features:   req.Features,
		ObservedAt: time.Now(),
	})

	c.Status(http.StatusNoContent)
}

func (s *Server) handleGet(c *gin.Context) {
	key := c.Param("key")

	features, err := s.store.Get(c.Request.Context(), key)
	if errors.Is(err, featurestore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recordResponse{Key: key, Features: features})
}
