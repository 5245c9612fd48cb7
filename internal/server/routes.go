package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/rosctl/internal/auth"
)

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routers := s.router.Group("/routers")
	if s.cfg.APIToken != "" {
		routers.Use(auth.RequireBearer(auth.StaticToken{Token: s.cfg.APIToken}))
	}

	routers.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"routers": s.store.List(),
		})
	})

	routers.GET("/:id", func(c *gin.Context) {
		snap, ok := s.store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "router not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	routers.GET("/:id/stats", func(c *gin.Context) {
		snap, ok := s.store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "router not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":         snap.RouterID,
			"state":      snap.State,
			"updated_at": snap.UpdatedAt,
			"interfaces": snap.Interfaces,
		})
	})
}
