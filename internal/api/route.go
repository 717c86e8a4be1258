package api

import (
	"Teamlink/internal/api/middleware"
	"Teamlink/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			imGroup.Use(middleware.AuthMiddleware())
			{
				imGroup.GET("/badges", group.IMHandler.GetBadges)
				imGroup.POST("/seen", group.IMHandler.MarkSeen)
				imGroup.GET("/receipt", group.IMHandler.GetReadReceipt)
			}
		}

		presenceGroup := apiGroup.Group("/presence")
		{
			presenceGroup.Use(middleware.AuthMiddleware())
			{
				presenceGroup.POST("", group.PresenceHandler.Report)
			}
		}
	}

	return r
}
