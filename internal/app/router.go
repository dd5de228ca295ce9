package app

import (
	"exam_prep_backend/docs"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要身份的路由，令牌由外部签发
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerSessionRoutes(authGroup, c)
		authGroup.GET("/mastery", c.mastery.GetMastery)
	}
}

func (a *App) registerSessionRoutes(rg *gin.RouterGroup, c *controllers) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", c.session.Start)
		sessions.GET("/:id", c.session.State)

		// 答题过程
		sessions.POST("/:id/next", c.session.Next)
		sessions.POST("/:id/prev", c.session.Prev)
		sessions.POST("/:id/jump", c.session.Jump)
		sessions.PUT("/:id/draft", c.session.SaveDraft)
		sessions.POST("/:id/submit", c.session.Submit)
		sessions.POST("/:id/solutions/photo", c.session.UploadPhoto)

		// 结算与回顾
		sessions.POST("/:id/finish", c.session.Finish)
		sessions.GET("/:id/report", c.session.Report)
		sessions.GET("/:id/review", c.session.Review)
	}
}
