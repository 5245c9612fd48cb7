// Package server exposes poller state over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/rosctl/internal/logging"
	"github.com/danmuck/rosctl/internal/observability"
	"github.com/danmuck/rosctl/internal/poller"
)

type Config struct {
	Name            string
	Addr            string
	CorsOrigins     []string
	ShutdownTimeout time.Duration
	// APIToken guards /routers with a bearer token when set.
	APIToken string
}

func DefaultConfig() Config {
	return Config{
		Name:            "rosctl",
		Addr:            ":9080",
		CorsOrigins:     []string{"http://localhost:3000"},
		ShutdownTimeout: 5 * time.Second,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if len(c.CorsOrigins) == 0 {
		c.CorsOrigins = def.CorsOrigins
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

type Server struct {
	cfg      Config
	store    *poller.Store
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, store *poller.Store) *Server {
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CorsOrigins,
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		store:    store,
		router:   r,
		appeared: time.Now(),
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("server.Serve listening name=%q addr=%q", s.cfg.Name, s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnf("server.Serve shutdown addr=%q err=%v", s.cfg.Addr, err)
		return err
	}
	return nil
}
