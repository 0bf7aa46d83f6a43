package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds the cross-cutting HTTP settings
type RouterConfig struct {
	AllowedOrigins []string
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Gatherer       prometheus.Gatherer
}

// NewRouter wires the studio and preview handlers behind the shared middleware
func NewRouter(cfg RouterConfig, studio *StudioHandler, preview *PreviewHandler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), Tracing())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", studio.Health)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.Use(Auth(cfg.JWTSecret), RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		studio.Register(api)
		api.GET("/sessions/:session_id/preview", preview.Preview)
	}

	return router
}
