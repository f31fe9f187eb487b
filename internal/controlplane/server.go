package controlplane

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/store"
	"github.com/fentz26/familydash/internal/syncstate"
	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint.
var Version = "dev"

// SyncController exposes the sync coordinator to the API.
type SyncController interface {
	SyncState() syncstate.State
	ForceSync(ctx context.Context) (reconcile.Report, error)
}

// Server provides the HTTP API for familydash.
type Server struct {
	service *Service
	sync    SyncController
	addr    string
	logger  *log.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server. sync may be nil, in which case the
// sync endpoints answer 503.
func NewServer(service *Service, sync SyncController, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		service: service,
		sync:    sync,
		addr:    addr,
		logger:  logger,
		router:  router,
	}

	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/tasks", s.listTasks)
		api.POST("/tasks", s.createTask)
		api.GET("/tasks/:id", s.getTask)
		api.PUT("/tasks/:id", s.updateTask)
		api.DELETE("/tasks/:id", s.deleteTask)

		api.GET("/completions", s.listCompletions)
		api.POST("/completions", s.addCompletion)
		api.DELETE("/completions", s.removeCompletions)

		api.GET("/notes/:date", s.getNote)
		api.PUT("/notes/:date", s.saveNote)
		api.DELETE("/notes/:date", s.deleteNote)

		api.GET("/groceries", s.listGroceries)
		api.POST("/groceries", s.addGrocery)
		api.PUT("/groceries/:id", s.updateGrocery)
		api.DELETE("/groceries/:id", s.deleteGrocery)

		api.GET("/categories", s.listCategories)
		api.PUT("/categories/:key", s.updateCategory)

		api.GET("/settings/:key", s.getSetting)
		api.PUT("/settings/:key", s.setSetting)

		api.GET("/week", s.getWeek)
		api.GET("/audit", s.listAudit)

		api.GET("/sync", s.getSync)
		api.POST("/sync", s.forceSync)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting familydash daemon", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// --- Envelope ---

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "message": message})
}

// failErr maps a service error to a status code.
func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, models.ErrInvalidTask), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict), errors.Is(err, reconcile.ErrSyncInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrSyncUnavailable), errors.Is(err, reconcile.ErrOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
