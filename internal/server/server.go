package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atikulmunna/moor/internal/access"
	"github.com/atikulmunna/moor/internal/service"
	"github.com/atikulmunna/moor/internal/stats"
)

// Server exposes the manager's operations over HTTP and WebSocket. It holds
// no state of its own; every request is delegated to the manager, which
// performs the authorization check.
type Server struct {
	engine  *gin.Engine
	manager *service.Manager
	stats   *stats.Collector
	addr    string
	replay  int // default replay count for new websocket subscribers
}

// New creates the control-plane server.
func New(m *service.Manager, col *stats.Collector, addr string, replay int) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		manager: m,
		stats:   col,
		addr:    addr,
		replay:  replay,
	}

	s.setupRoutes()
	return s
}

// token extracts the caller's access key from the query string or header.
func token(c *gin.Context) string {
	if key := c.Query("access_key"); key != "" {
		return key
	}
	return c.GetHeader("X-Access-Key")
}

// fail maps the core error taxonomy onto HTTP statuses. Authorization and
// lookup failures are rejections, never crashes; anything else is an
// external tool failure.
func fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, access.ErrNotAuthorized), errors.Is(err, service.ErrCommandsDisabled):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUnknownService), errors.Is(err, service.ErrUnknownCommand):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func (s *Server) setupRoutes() {
	// Health check.
	s.engine.GET("/healthz", func(c *gin.Context) {
		snap := s.stats.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   snap.Uptime,
			"services": len(s.manager.Names()),
		})
	})

	// Metrics API.
	s.engine.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.stats.Snapshot())
	})

	s.engine.GET("/api/services", s.handleServices)
	s.engine.GET("/api/status/:service", s.handleStatus)
	s.engine.POST("/api/start/:service", s.handleStart)
	s.engine.POST("/api/stop/:service", s.handleStop)
	s.engine.GET("/api/logs/:service", s.handleLogs)
	s.engine.POST("/api/exec/:service", s.handleExec)

	// WebSocket streaming.
	s.engine.GET("/ws/logs/:service", s.handleWebSocket)
}

func (s *Server) handleServices(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Services(token(c)))
}

func (s *Server) handleStatus(c *gin.Context) {
	running, err := s.manager.Status(token(c), c.Param("service"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": running})
}

func (s *Server) handleStart(c *gin.Context) {
	name := c.Param("service")
	if err := s.manager.Start(token(c), name); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("started %s", name)})
}

func (s *Server) handleStop(c *gin.Context) {
	name := c.Param("service")
	if err := s.manager.Stop(token(c), name); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("stopped %s", name)})
}

func (s *Server) handleLogs(c *gin.Context) {
	records, err := s.manager.Logs(token(c), c.Param("service"))
	if err != nil {
		fail(c, err)
		return
	}

	// plain=1 renders one "source|timestamp message" line per record.
	if c.Query("plain") != "" {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		for _, rec := range records {
			fmt.Fprintf(c.Writer, "%s|%s %s\n", rec.Source, rec.Timestamp, rec.Message)
		}
		return
	}
	c.JSON(http.StatusOK, records)
}

type execRequest struct {
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
}

func (s *Server) handleExec(c *gin.Context) {
	var req execRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	ok, out, err := s.manager.RunCommand(token(c), c.Param("service"), req.Command, req.Args)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok, "output": out})
}

// Handler exposes the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully, letting in-flight requests finish.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
