// Package api exposes the engine over HTTP: ingestion, status queries,
// officer reports, device registration and a websocket feed of status events.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, logger *logrus.Logger, msg string, err error) {
	status := statusFor(err)
	entry := logger.WithFields(logrus.Fields{
		requestIDKey: c.GetString(requestIDKey),
		"path":       c.FullPath(),
		"status":     status,
	})
	if status == http.StatusInternalServerError {
		entry.Errorf("%s: %v", msg, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	entry.Warnf("%s: %v", msg, err)
	c.JSON(status, gin.H{"error": err.Error()})
}
