package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/racedqn/autopilot/internal/api"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
)

// Dependencies holds the collaborators of the replay endpoint
type Dependencies struct {
	Backend storage.Backend
	Logger  *slog.Logger
	// APIKey, when set, must be sent in the X-Api-Key header of every /api request.
	APIKey string
}

// Service serves the replay persistence endpoint
type Service struct {
	deps Dependencies
}

// NewService creates a new replay endpoint service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Router builds the gin engine with every route registered.
func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET(api.HealthcheckPath, s.handleHealthcheck)

	g := r.Group("/api", s.requireKey())
	g.POST("/sessions", s.handleCreateSession)
	g.GET("/sessions/:id", s.handleGetSession)
	g.POST("/replay", s.handlePostReplay)
	return r
}

func (s *Service) handleHealthcheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Service) handleCreateSession(c *gin.Context) {
	var sess core.Session
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.String(http.StatusBadRequest, "invalid session: %v", err)
		return
	}
	if sess.ID == "" {
		c.String(http.StatusBadRequest, "invalid session: missing id")
		return
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	if err := s.deps.Backend.StartSession(&sess); err != nil {
		s.fail(c, "create session", err)
		return
	}
	s.deps.Logger.Info("Session registered", "session", sess.ID, "scene", sess.SceneName)
	c.String(http.StatusOK, "OK")
}

// sessionInfo is the body of GET /api/sessions/:id
type sessionInfo struct {
	core.Session
	Transitions int64 `json:"transitions"`
}

func (s *Service) handleGetSession(c *gin.Context) {
	reader, ok := s.deps.Backend.(storage.Reader)
	if !ok {
		c.String(http.StatusNotImplemented, "backend does not support queries")
		return
	}
	id := c.Param("id")
	sess, err := reader.GetSession(id)
	if err != nil {
		s.fail(c, "get session", err)
		return
	}
	n, err := reader.CountTransitions(id)
	if err != nil {
		s.fail(c, "count transitions", err)
		return
	}
	c.JSON(http.StatusOK, sessionInfo{Session: sess, Transitions: n})
}

func (s *Service) handlePostReplay(c *gin.Context) {
	var records []core.ReplayRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.String(http.StatusBadRequest, "invalid replay batch: %v", err)
		return
	}

	if err := s.deps.Backend.StoreTransitions(records); err != nil {
		s.fail(c, "store replay", err)
		return
	}
	s.deps.Logger.Debug("Replay batch stored", "size", len(records))
	c.String(http.StatusOK, "OK")
}

// fail maps storage errors onto status codes: 409 for duplicates, 404 for
// unknown sessions and 400 for anything else.
func (s *Service) fail(c *gin.Context, op string, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	}
	s.deps.Logger.Warn("Request rejected", "op", op, "status", status, "error", err)
	c.String(status, fmt.Sprintf("%s: %v", op, err))
}

func (s *Service) requireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.APIKey != "" && c.GetHeader(api.APIKeyHeader) != s.deps.APIKey {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == api.HealthcheckPath {
			return
		}
		s.deps.Logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
