package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

type service interface {
	Submit(ctx context.Context, sub models.Submission) (models.Receipt, error)
	GetStatus(ctx context.Context, key string) (models.Receipt, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	MarkViewed(ctx context.Context, id string) (*models.Notification, error)
	ListByShip(ctx context.Context, shipCode string, limit, offset int) ([]models.Notification, error)
	ResolveByReport(ctx context.Context, report models.Report) (*models.Incident, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, shipCode string, openOnly bool) ([]models.Incident, error)
	RegisterDevice(ctx context.Context, reg models.DeviceRegistration) (*models.Device, error)
}

type Handler struct {
	svc    service
	logger *logrus.Logger
}

func NewHandler(svc service, logger *logrus.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Submit(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		h.logger.Errorf("Invalid request body for submission: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	receipt, err := h.svc.Submit(c.Request.Context(), sub)
	if err != nil {
		respondError(c, h.logger, "Failed to submit notification", err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// GetStatus accepts either a client request id or a request id.
func (h *Handler) GetStatus(c *gin.Context) {
	receipt, err := h.svc.GetStatus(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.logger, "Notification not found", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) GetNotification(c *gin.Context) {
	n, err := h.svc.GetNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Notification not found", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkViewed(c *gin.Context) {
	n, err := h.svc.MarkViewed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to mark notification viewed", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) ListByShip(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	code := c.Param("code")
	list, err := h.svc.ListByShip(c.Request.Context(), code, limit, offset)
	if err != nil {
		respondError(c, h.logger, "Failed to list notifications", err)
		return
	}
	h.logger.Debugf("Retrieved %d notifications for ship %s", len(list), code)
	c.JSON(http.StatusOK, list)
}

func (h *Handler) ListIncidents(c *gin.Context) {
	openOnly, _ := strconv.ParseBool(c.DefaultQuery("open", "false"))
	list, err := h.svc.ListIncidents(c.Request.Context(), c.Param("code"), openOnly)
	if err != nil {
		respondError(c, h.logger, "Failed to list incidents", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetIncident(c *gin.Context) {
	inc, err := h.svc.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Incident not found", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// FileReport is the callback the reporting module uses when an officer files
// a resolving report. incident is null when the notification has none.
func (h *Handler) FileReport(c *gin.Context) {
	var report models.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		h.logger.Errorf("Invalid request body for report: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	inc, err := h.svc.ResolveByReport(c.Request.Context(), report)
	if err != nil {
		respondError(c, h.logger, "Failed to apply report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident": inc})
}

func (h *Handler) RegisterDevice(c *gin.Context) {
	var reg models.DeviceRegistration
	if err := c.ShouldBindJSON(&reg); err != nil {
		h.logger.Errorf("Invalid request body for device: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	d, err := h.svc.RegisterDevice(c.Request.Context(), reg)
	if err != nil {
		respondError(c, h.logger, "Failed to register device", err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
