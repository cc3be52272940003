package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	headerUserID = "X-User-ID"
	ctxUserID    = "user_id"

	defaultSessionTTL = 30 * time.Minute
)

// ControllerFactory creates a conversation controller owned by userID
type ControllerFactory func(userID model.UserID) *conversation.Controller

// Server exposes conversations over HTTP and WebSocket
type Server struct {
	engine        *gin.Engine
	sessions      *sessionRegistry
	repo          repository.Repository
	newController ControllerFactory
	sessionTTL    time.Duration
}

type Option func(*Server)

// WithSessionTTL sets how long an idle session is kept
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func New(factory ControllerFactory, repo repository.Repository, opts ...Option) *Server {
	s := &Server{
		sessions:      newSessionRegistry(),
		repo:          repo,
		newController: factory,
		sessionTTL:    defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.len()})
	})

	api := r.Group("/api", requireUser())
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.closeSession)
		for name := range intents {
			api.POST("/sessions/:id/"+name, s.handleIntent(name))
		}

		api.GET("/history", s.listHistory)
		api.GET("/history/:id", s.getHistory)
		api.POST("/history/:id/resume", s.resumeHistory)
	}

	r.GET("/ws/sessions/:id", requireUser(), s.sessionWebSocket)

	return r
}

// requestLogger attaches a request scoped logger and logs each request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := logging.WithAttrs(c.Request.Context(), "request_id", uuid.NewString())
		c.Request = c.Request.WithContext(ctx)
		logger := logging.From(ctx)

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// requireUser reads the caller's identity from the X-User-ID header. Browser
// WebSocket clients cannot set headers and may pass user_id as a query
// parameter instead.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerUserID)
		if id == "" {
			id = c.Query("user_id")
		}
		if id == "" {
			fail(c, http.StatusUnauthorized, codeUnauthorized, "missing "+headerUserID+" header", nil)
			return
		}
		c.Set(ctxUserID, model.UserID(id))
		c.Request = c.Request.WithContext(logging.WithAttrs(c.Request.Context(), "user_id", id))
		c.Next()
	}
}

func userID(c *gin.Context) model.UserID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(model.UserID)
	return uid
}

// Run serves on addr until ctx is canceled, sweeping idle sessions meanwhile
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger := logging.From(ctx)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "failed to serve", goerr.V("addr", addr))
		}
		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(max(s.sessionTTL/2, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.sessions.sweep(s.sessionTTL); n > 0 {
					logger.Info("idle sessions closed", "count", n)
				}
			}
		}
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shutdown server")
		}
		logger.Info("server stopped")
		return nil
	})

	return eg.Wait()
}
