package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the engine with the shared middleware stack
func NewRouter(allowedOrigins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Identity())
	router.Use(RequestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AddAllowHeaders(HeaderUserID, HeaderRequestID)
	corsConfig.AddExposeHeaders(HeaderRequestID)
	router.Use(cors.New(corsConfig))

	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/healthz", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/location/resolve", handler.ResolveLocation)
		api.POST("/properties/by-location", handler.PropertiesByLocation)
		api.GET("/recommendations", handler.GetRecommendations)

		api.GET("/areas/suggest", handler.SuggestAreas)
		api.GET("/areas", handler.ListAreas)
		api.POST("/areas", handler.CreateArea)
		api.DELETE("/areas/:name", handler.DeleteArea)

		api.GET("/search-history", handler.GetSearchHistory)
		api.POST("/search-history", handler.RecordSearch)

		api.POST("/analytics/view", handler.AddView)
		api.POST("/analytics/engagement", handler.AddEngagementTime)
		api.POST("/analytics/rating", handler.AddRating)
		api.POST("/analytics/save", handler.AddSave)
		api.POST("/analytics/summary", handler.GetSummary)
		api.GET("/analytics/saved", handler.GetSavedProperties)
		api.GET("/analytics/:id", handler.GetMetrics)
	}
}
