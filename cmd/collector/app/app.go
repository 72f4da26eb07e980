package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Run serves the collector API until ctx is cancelled
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return Serve(ctx, ln, config, logger)
}

// Serve serves the collector API on ln until ctx is cancelled
func Serve(ctx context.Context, ln net.Listener, config *Config, logger *slog.Logger) error {
	handler := NewLogHandler(NewRing(config.Capacity), WithFailEvery(config.FailEvery), WithLogger(logger))

	server := &http.Server{
		Handler:        NewRouter(handler, logger),
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening",
			slog.String("addr", ln.Addr().String()),
			slog.Int("capacity", config.Capacity),
			slog.Int("failEvery", config.FailEvery),
		)
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("collector stopped")
	return nil
}

// NewRouter wires the collector routes
func NewRouter(h *LogHandler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/health", h.HealthCheck)
	router.POST("/api/logs", h.CreateLog)
	router.GET("/api/logs", h.ListLogs)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client", c.ClientIP()),
		)
	}
}
