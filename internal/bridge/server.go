package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Users checks bridge credentials.
type Users interface {
	TestUser(user string, pass string) bool
}

// Pruner drops ledger rows for downloads that no longer exist.
type Pruner interface {
	PruneMissing(ctx context.Context, root string) (int, error)
}

type ServerOptions struct {
	Listen        string
	RequireAuth   bool
	PruneSchedule string
	Workspace     string
	PrettyJson    bool
}

type Server struct {
	opts    ServerOptions
	handler *Handler
	users   Users
	pruner  Pruner
	log     *zap.Logger
	router  *gin.Engine
	cron    *cron.Cron
}

// NewServer wires the HTTP routes. users may be nil when auth is off and
// pruner may be nil to skip the scheduled prune.
func NewServer(opts ServerOptions, handler *Handler, users Users, pruner Pruner, log *zap.Logger) (*Server, error) {
	s := &Server{
		opts:    opts,
		handler: handler,
		users:   users,
		pruner:  pruner,
		log:     log.Named("server"),
		cron:    cron.New(),
	}
	if opts.RequireAuth && users == nil {
		return nil, errors.New("auth required but no user store")
	}
	if pruner != nil && opts.PruneSchedule != "" && opts.Workspace != "" {
		if _, err := s.cron.AddFunc(opts.PruneSchedule, s.prune); err != nil {
			return nil, err
		}
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestID())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	msgs := router.Group("/messages")
	if opts.RequireAuth {
		msgs.Use(s.basicAuth())
	}
	msgs.POST("", s.postMessage)
	s.router = router
	return s, nil
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.cron.Start()
	defer s.cron.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", zap.String("listen", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) prune() {
	n, err := s.pruner.PruneMissing(context.Background(), s.opts.Workspace)
	if err != nil {
		s.log.Error("Prune job failed", zap.Error(err))
		return
	}
	s.log.Info("Prune job completed", zap.Int("removed", n))
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !s.users.TestUser(user, pass) {
			c.Header("WWW-Authenticate", `Basic realm="devstock"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) postMessage(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.write(c, []any{errorMessage("Invalid request body.")})
		return
	}
	log := s.log.With(zap.String("requestId", c.GetString("requestId")), zap.String("type", req.Type))
	log.Debug("Message received")
	s.write(c, s.handler.Collect(c.Request.Context(), req))
}

// write sends msgs as a JSON array, brotli or gzip encoded when the client
// accepts it.
func (s *Server) write(c *gin.Context, msgs []any) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	body := brotli.HTTPCompressor(c.Writer, c.Request)
	defer body.Close()
	c.Status(http.StatusOK)

	enc := json.NewEncoder(body)
	if s.opts.PrettyJson {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(msgs); err != nil {
		s.log.Error("Failed to write response", zap.Error(err))
	}
}
