package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// GraphQLPath serves the handler. Defaults to /graphql.
	GraphQLPath string
	// MetricsPath serves Gatherer when both are set.
	MetricsPath string
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
}

// NewRouter mounts h, a health check and optionally Prometheus metrics.
func NewRouter(h http.Handler, o RouterOptions) *gin.Engine {
	if o.GraphQLPath == "" {
		o.GraphQLPath = "/graphql"
	}
	router := gin.New()
	router.Use(accessLog(o.Logger.With().Str("component", "http").Logger()))
	router.Use(gin.Recovery())

	graphql := gin.WrapH(h)
	router.GET(o.GraphQLPath, graphql)
	router.POST(o.GraphQLPath, graphql)
	router.OPTIONS(o.GraphQLPath, graphql)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if o.MetricsPath != "" && o.Gatherer != nil {
		router.GET(o.MetricsPath, gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func accessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request served")
	}
}
