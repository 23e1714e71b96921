package api

import (
	"log/slog"

	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig wires the gin engine
type RouterConfig struct {
	Service  Service
	Operator common.Address
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Registry, when set, is served on MetricsPath
	Registry    *prometheus.Registry
	MetricsPath string
	Health      *Health
	// Hub, when set, is served on /ws
	Hub *events.Hub
}

// NewRouter builds the engine with middleware, health checks, metrics, the
// event stream and the v1 routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := cfg.Health
	if health == nil {
		health = NewHealth(true)
	}

	router := gin.New()
	router.Use(RequestID(), Logger(logger, cfg.Metrics), Recovery(logger))

	router.GET("/healthz", LivenessHandler)
	router.GET("/readyz", ReadinessHandler(health))
	if cfg.Registry != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(metrics.Handler(cfg.Registry)))
	}
	if cfg.Hub != nil {
		router.GET("/ws", gin.WrapH(cfg.Hub))
	}

	New(cfg.Service, cfg.Operator, logger).Register(router)
	return router
}
