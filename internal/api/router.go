package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func NewRouter(svc service, hub *Hub, logger *logrus.Logger, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(svc, logger)
	api := r.Group(basePath)
	{
		// Ingestion and status
		api.POST("/notifications", h.Submit)
		api.GET("/status/:key", h.GetStatus)

		// Notifications
		api.GET("/notifications/:id", h.GetNotification)
		api.PUT("/notifications/:id/viewed", h.MarkViewed)
		api.GET("/ships/:code/notifications", h.ListByShip)

		// Incidents and reports
		api.GET("/ships/:code/incidents", h.ListIncidents)
		api.GET("/incidents/:id", h.GetIncident)
		api.POST("/reports", h.FileReport)

		// Devices
		api.POST("/devices", h.RegisterDevice)

		api.GET("/ws", hub.ServeWS)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
