// Package devserver is a self-contained stand-in for the platform auth API,
// used for local development and integration tests. Accounts live in memory;
// verification codes are written to the log instead of an inbox.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/EmerBV/figrclub-sub001/internal/infra/config"
	"github.com/EmerBV/figrclub-sub001/internal/infra/security"
)

// Server hosts the stub auth API.
type Server struct {
	cfg      config.DevServerSettings
	log      *zap.Logger
	engine   *gin.Engine
	accounts *accountStore
	secret   []byte
}

// New builds the stub server. An empty signing secret gets random material,
// which is fine for a process-local fixture.
func New(cfg config.DevServerSettings, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	secret := []byte(cfg.SigningSecret)
	if len(secret) == 0 {
		random, err := security.GenerateSecureToken(32)
		if err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
		secret = []byte(random)
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		accounts: newAccountStore(cfg.RefreshTokenTTL),
		secret:   secret,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(requestMetrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.POST("/verify", s.verify)
		auth.POST("/refresh", s.refresh)
		auth.POST("/logout", s.logout)

		api.GET("/users/me", s.currentUser)
	}

	s.engine = r
	return s, nil
}

// Handler exposes the underlying handler for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("devserver listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("devserver: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request completed",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)))
	}
}

var devRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "figrclub",
	Subsystem: "devserver",
	Name:      "requests_total",
	Help:      "HTTP requests served by the dev stub, by method, path, and status.",
}, []string{"method", "path", "status"})

func requestMetrics() gin.HandlerFunc {
	if err := prometheus.Register(devRequests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			devRequests = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	return func(c *gin.Context) {
		c.Next()
		devRequests.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			fmt.Sprintf("%d", c.Writer.Status()),
		).Inc()
	}
}
