package router

import (
	"github.com/gin-gonic/gin"

	promhandler "github.com/jwalitptl/card-notifier/internal/handler/prometheus"
	"github.com/jwalitptl/card-notifier/internal/middleware"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	metrics *promhandler.Handler
}

// NewRouter builds the ops HTTP engine: request id, logging, recovery and
// request metrics on every route, /metrics, and each handler's routes.
func NewRouter(log *logger.Logger, metrics *promhandler.Handler, handlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		metrics.Middleware(),
	)

	r := &Router{engine: engine, metrics: metrics}
	r.setup(handlers)
	return r
}

func (r *Router) setup(handlers []Handler) {
	r.engine.GET("/metrics", r.metrics.Handler())

	root := r.engine.Group("")
	for _, h := range handlers {
		h.RegisterRoutes(root)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
