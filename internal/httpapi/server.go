package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/pkg/plexexec"
	"github.com/plexil-group/plexil-sub002/pkg/plexnode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// entry pairs one running executive with the event hub its wiring
// publishes node transitions and cache updates onto.
type entry struct {
	exec *plexexec.Executive
	hub  *Hub
}

// Registry tracks the executives this server exposes, keyed by an
// operator-assigned id (e.g. a plan name).
type Registry struct {
	entries map[string]entry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds exec under id with a fresh event hub, and returns the hub
// so the caller's Step loop can Publish transition/value events onto it.
func (r *Registry) Register(id string, exec *plexexec.Executive) *Hub {
	h := NewHub()
	r.entries[id] = entry{exec: exec, hub: h}
	return h
}

type idParam struct {
	ID string `uri:"id" validate:"required,max=128"`
}

// nodeParams validates both path segments of GET /executives/:id/nodes/:nodeID.
type nodeParams struct {
	ID     string `uri:"id" validate:"required,max=128"`
	NodeID string `uri:"nodeID" validate:"required,max=256"`
}

type stateParams struct {
	ID    string `uri:"id" validate:"required,max=128"`
	State string `uri:"state" validate:"required,max=256"`
}

// Server is the read-only introspection HTTP+websocket API (spec §2's
// domain stack), grounded on the teacher's pkg/server lifecycle.
type Server struct {
	registry   *Registry
	log        zerolog.Logger
	validate   *validator.Validate
	router     *gin.Engine
	httpServer *http.Server
}

// New builds a Server bound to addr, serving routes over registry.
func New(addr string, registry *Registry, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		registry: registry,
		log:      log,
		validate: validator.New(),
		router:   router,
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 0, // the websocket route needs to stream indefinitely
			IdleTimeout:  120 * time.Second,
		},
	}
	s.httpServer.Handler = router
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/executives/:id/nodes", s.handleListNodes)
	s.router.GET("/executives/:id/nodes/:nodeID", s.handleGetNode)
	s.router.GET("/executives/:id/cache/:state", s.handleGetCacheEntry)
	s.router.GET("/executives/:id/events", s.handleEvents)
}

// Run starts the HTTP server; it blocks until Shutdown is called or
// ListenAndServe itself fails.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("httpapi listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) lookup(c *gin.Context, id string) (entry, bool) {
	e, ok := s.registry.entries[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown executive: " + id})
		return entry{}, false
	}
	return e, true
}

type nodeSnapshot struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Outcome     string `json:"outcome"`
	FailureType string `json:"failure_type,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
}

func snapshotOf(n *plexnode.Node) nodeSnapshot {
	s := nodeSnapshot{
		ID:      n.ID,
		Kind:    n.Kind.String(),
		State:   n.State().String(),
		Outcome: n.Outcome().String(),
	}
	if n.FailureType() != plexnode.FailureNone {
		s.FailureType = n.FailureType().String()
	}
	if n.Parent != nil {
		s.ParentID = n.Parent.ID
	}
	return s
}

func (s *Server) handleListNodes(c *gin.Context) {
	var p idParam
	if err := c.ShouldBindUri(&p); err != nil || s.validate.Struct(p) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid executive id"})
		return
	}
	e, ok := s.lookup(c, p.ID)
	if !ok {
		return
	}
	nodes := e.exec.Nodes()
	out := make([]nodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, snapshotOf(n))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetNode(c *gin.Context) {
	var p nodeParams
	if err := c.ShouldBindUri(&p); err != nil || s.validate.Struct(p) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node reference"})
		return
	}
	e, ok := s.lookup(c, p.ID)
	if !ok {
		return
	}
	n, ok := e.exec.Node(p.NodeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown node: " + p.NodeID})
		return
	}
	c.JSON(http.StatusOK, snapshotOf(n))
}

func (s *Server) handleGetCacheEntry(c *gin.Context) {
	var p stateParams
	if err := c.ShouldBindUri(&p); err != nil || s.validate.Struct(p) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state key"})
		return
	}
	e, ok := s.lookup(c, p.ID)
	if !ok {
		return
	}
	snapshot := e.exec.Cache().Snapshot()
	v, ok := snapshot[p.State]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cache entry for state: " + p.State})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": p.State, "value": v.String(), "type": v.Type().String()})
}

func (s *Server) handleEvents(c *gin.Context) {
	var p idParam
	if err := c.ShouldBindUri(&p); err != nil || s.validate.Struct(p) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid executive id"})
		return
	}
	e, ok := s.lookup(c, p.ID)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{send: make(chan []byte, 64)}
	e.hub.register <- cl
	defer func() { e.hub.unregister <- cl }()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				e.hub.unregister <- cl
				return
			}
		}
	}()

	for msg := range cl.send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	conn.Close()
}
