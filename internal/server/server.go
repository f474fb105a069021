// Package server exposes the coach over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compas-coach/compas/internal/coach"
	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/memory"
	"github.com/compas-coach/compas/internal/reflection"
)

const shutdownTimeout = 10 * time.Second

// Coach is the part of coach.Service the HTTP surface drives.
type Coach interface {
	HandleChatTurn(ctx context.Context, sessionID, message string) (*coach.TurnResult, error)
	HandleFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error
	HandleMemoryOp(ctx context.Context, op coach.MemoryOp) (*coach.MemoryResult, error)
	GiftIdeas(ctx context.Context) []string
	Lessons(ctx context.Context) ([]coach.Lesson, error)
	Profile(ctx context.Context) memory.Profile
}

// StatsReader reports ledger row counts for /healthz.
type StatsReader interface {
	Stats(ctx context.Context) (ledger.Stats, error)
}

// Options wires a Server. Coach is required.
type Options struct {
	Listen   string
	Passcode string

	Coach       Coach
	Stats       StatsReader
	Deck        *reflection.Deck
	Reflections *reflection.Log

	ConnectionIdeasPath string
	KindnessPath        string
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	engine *gin.Engine
}

// New builds the router. Every route except /healthz sits behind the
// passcode check when a passcode is configured.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts}
	s.engine = setupRouter(NewHandler(opts), opts.Passcode)
	return s
}

func setupRouter(h *Handler, passcode string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), AccessLogMiddleware())

	r.GET("/healthz", h.Health)

	api := r.Group("/")
	api.Use(PasscodeMiddleware(passcode))
	{
		api.GET("/", h.Index)
		api.POST("/chat", h.Chat)
		api.POST("/feedback", h.Feedback)
		api.POST("/memory", h.Memory)
		api.POST("/suggest/gift", h.Gift)
		api.GET("/lessons", h.Lessons)
		api.GET("/reflection", h.ReflectionPrompts)
		api.POST("/reflection", h.SaveReflection)
	}
	return r
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info("http server listening", "listen", s.opts.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logging.Logger().Info("http server stopped")
	return nil
}
