package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/notify-engine/internal/handler"
	"github.com/jwalitptl/notify-engine/internal/middleware"
	"github.com/jwalitptl/notify-engine/pkg/logger"
)

// Handler registers versioned API routes.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	MetricsEnabled  bool
}

// New assembles the gin engine with the ambient middleware chain and
// the given API handlers.
func New(cfg Config, log *logger.Logger, db *sqlx.DB, handlers ...Handler) *gin.Engine {
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(log))
	engine.Use(middleware.Recovery(log))

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	engine.Use(limiter.RateLimit())

	handler.NewHealthHandler(db).RegisterRoutes(engine)
	if cfg.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/api/v1")
	for _, h := range handlers {
		h.RegisterRoutes(v1)
	}

	return engine
}
