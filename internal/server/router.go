package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/waveline/waveline-backend/internal/http/handlers"
	"github.com/waveline/waveline-backend/internal/observability"
	"github.com/waveline/waveline-backend/internal/platform/envutil"
)

type RouterConfig struct {
	UserHandler *handlers.UserHandler
	PostHandler *handlers.PostHandler
	FeedHandler *handlers.FeedHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("waveline-api"))
	router.Use(metricsMiddleware())

	router.GET("/healthcheck", handlers.HealthCheck)
	if m := observability.Current(); m != nil {
		router.GET("/metrics", gin.WrapF(m.WriteHTTP))
	}

	api := router.Group("/api")
	{
		api.POST("/users", cfg.UserHandler.Register)
		api.GET("/users/:id", cfg.UserHandler.Get)
		api.GET("/users/:id/followers", cfg.UserHandler.Followers)
		api.POST("/users/follow", cfg.UserHandler.Follow)
		api.POST("/users/unfollow", cfg.UserHandler.Unfollow)

		api.POST("/posts", cfg.PostHandler.Create)
		api.GET("/posts/:id", cfg.PostHandler.Get)
		api.POST("/posts/:id/like", cfg.PostHandler.Like)

		api.GET("/feed", cfg.FeedHandler.Get)
		api.POST("/feed/impressions", cfg.FeedHandler.RecordImpressions)
	}

	return router
}
