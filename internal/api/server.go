// ==============================
// File: internal/api/server.go
// ==============================
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/buyback"
	"github.com/didier3529/casino-sol-sub000/internal/storage"
)

// Pinger reports whether the RPC node is reachable.
type Pinger interface {
	GetVersion(ctx context.Context) (string, error)
}

// Server exposes the operator REST API.
type Server struct {
	store        storage.Storage
	runner       buyback.Runner
	ledger       buyback.SpendableSource
	chain        Pinger
	operatorKeys []string
	logger       *zap.Logger

	httpServer *http.Server
}

func NewServer(listen string, store storage.Storage, runner buyback.Runner, ledger buyback.SpendableSource, chain Pinger, operatorKeys []string, logger *zap.Logger) *Server {
	s := &Server{
		store:        store,
		runner:       runner,
		ledger:       ledger,
		chain:        chain,
		operatorKeys: operatorKeys,
		logger:       logger.Named("api"),
	}
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)

	bb := r.Group("/api/buyback")
	{
		bb.GET("/status", s.handleStatus)
		bb.GET("/config", s.handleGetConfig)
		bb.GET("/events", s.handleListEvents)
		bb.GET("/stats", s.handleStats)

		protected := bb.Group("", operatorAuth(s.operatorKeys, s.logger))
		{
			protected.PATCH("/config", s.handlePatchConfig)
			protected.POST("/run", s.handleRun)
			protected.POST("/pause", s.handlePause)
			protected.POST("/resume", s.handleResume)
		}
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
