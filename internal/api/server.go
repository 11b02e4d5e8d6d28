// Package api implements the versioned /v0 HTTP surface: health, miner
// state and pause/resume, and read-only board/source listings.
package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// commandTimeout bounds how long a PATCH /v0/miner waits for the scheduler
// to acknowledge a pause/resume before the handler gives up and returns 500.
const commandTimeout = 5 * time.Second

// PauseResumer is the subset of *scheduler.Scheduler the API needs. Command
// dispatch goes through a bounded channel inside the scheduler itself; the
// bool return here reports whether the reply arrived before ctx expired.
type PauseResumer interface {
	Pause(ctx context.Context) bool
	Resume(ctx context.Context) bool
}

// Server wires the Registry and scheduler control surface to a gin engine.
type Server struct {
	log       *logrus.Entry
	sched     PauseResumer
	registry  *Registry
	startTime time.Time
	paused    atomic.Bool

	engine *gin.Engine
}

// NewServer builds a Server ready to Handler() into an http.Server.
func NewServer(sched PauseResumer, registry *Registry, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	s := &Server{
		log:       log,
		sched:     sched,
		registry:  registry,
		startTime: time.Now(),
	}
	s.engine = s.buildEngine()
	return s
}

// Handler returns the http.Handler to serve, for embedding in an
// http.Server with graceful shutdown.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v0 := r.Group("/v0")
	{
		v0.GET("/health", s.handleHealth)
		v0.GET("/miner", s.handleGetMiner)
		v0.PATCH("/miner", s.handlePatchMiner)
		v0.GET("/boards", s.handleListBoards)
		v0.GET("/boards/:name", s.handleGetBoard)
		v0.GET("/sources", s.handleListSources)
		v0.GET("/sources/:name", s.handleGetSource)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, "OK")
}

func (s *Server) snapshot() MinerState {
	return MinerState{
		UptimeSecs:      time.Since(s.startTime).Seconds(),
		HashRate:        s.registry.TotalHashRate(),
		SharesSubmitted: s.registry.TotalSharesSubmitted(),
		Paused:          s.paused.Load(),
		Boards:          s.registry.Boards(),
		Sources:         s.registry.Sources(),
	}
}

func (s *Server) handleGetMiner(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) handlePatchMiner(c *gin.Context) {
	var req PatchMinerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Paused == nil {
		c.JSON(http.StatusOK, s.snapshot())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	var ok bool
	if *req.Paused {
		ok = s.sched.Pause(ctx)
	} else {
		ok = s.sched.Resume(ctx)
	}
	if !ok {
		s.log.Warn("scheduler did not acknowledge pause/resume before timeout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scheduler command timed out"})
		return
	}
	s.paused.Store(*req.Paused)
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) handleListBoards(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Boards())
}

func (s *Server) handleGetBoard(c *gin.Context) {
	b, ok := s.registry.Board(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "board not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleListSources(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Sources())
}

func (s *Server) handleGetSource(c *gin.Context) {
	src, ok := s.registry.Source(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.JSON(http.StatusOK, src)
}
