package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PostNotification ingests one notification from the host
func (h *Handlers) PostNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.pipeline.HandleNotification(req.toEvent())
	if err != nil {
		logrus.Errorf("Failed to handle notification: %v", err)
		errorJSON(c, http.StatusInternalServerError, "pipeline_error", "Failed to handle notification")
		return
	}

	status := http.StatusOK
	if result.Admitted {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// ListenerConnected records that the host granted notification access
func (h *Handlers) ListenerConnected(c *gin.Context) {
	h.pipeline.SetListenerConnected(true)
	c.JSON(http.StatusOK, gin.H{"listener_connected": true})
}

// ListenerDisconnected records that the host revoked or lost notification access
func (h *Handlers) ListenerDisconnected(c *gin.Context) {
	h.pipeline.SetListenerConnected(false)
	c.JSON(http.StatusOK, gin.H{"listener_connected": false})
}

// Boot schedules recovery after a device boot or package replacement
func (h *Handlers) Boot(c *gin.Context) {
	h.supervisor.Boot()
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Boot recovery scheduled",
		"next_run": h.supervisor.NextRun(),
	})
}
