package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dannoetc/raterhub-tracker/internal/config"
	"github.com/dannoetc/raterhub-tracker/internal/http/handler"
	httpmiddleware "github.com/dannoetc/raterhub-tracker/internal/http/middleware"
	"github.com/dannoetc/raterhub-tracker/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, trackerHandler *handler.TrackerHandler, authMiddleware *httpmiddleware.Auth) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", authMiddleware.RequireUser, authHandler.Me)
		authGroup.PUT("/profile", authMiddleware.RequireUser, authHandler.UpdateProfile)
	}

	api := r.Group("/", authMiddleware.RequireUser)
	{
		api.POST("/events", trackerHandler.PostEvent)

		sessions := api.Group("/sessions")
		{
			sessions.GET("/today", trackerHandler.TodaySummary)
			sessions.GET("/week", trackerHandler.WeekSummary)
			sessions.GET("/:id/summary", trackerHandler.SessionSummary)
		}

		reports := api.Group("/reports")
		{
			reports.GET("/daily/csv", trackerHandler.DailyCSV)
			reports.GET("/weekly/csv", trackerHandler.WeeklyCSV)
		}

		api.DELETE("/questions/:id", trackerHandler.DeleteQuestion)

		admin := api.Group("/admin", authMiddleware.RequireAdmin)
		{
			admin.POST("/reports/deliver", trackerHandler.DeliverReports)
		}
	}

	return r
}
