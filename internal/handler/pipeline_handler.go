package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StartPipeline enables forwarding and starts the pipeline
func (h *Handlers) StartPipeline(c *gin.Context) {
	if !h.enable(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Pipeline started successfully",
		"status":  "running",
	})
}

// StopPipeline disables forwarding and stops the pipeline
func (h *Handlers) StopPipeline(c *gin.Context) {
	if !h.disable(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Pipeline stopped successfully",
		"status":  "stopped",
	})
}

// GetPipelineStatus returns the pipeline status
func (h *Handlers) GetPipelineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Status())
}

// enable writes the error response itself and reports whether it succeeded
func (h *Handlers) enable(c *gin.Context) bool {
	if !h.configs.GetEmailConfig().IsValid() {
		errorJSON(c, http.StatusConflict, "config_invalid", "Email configuration is incomplete")
		return false
	}
	if err := h.configs.SetEnabled(true); err != nil {
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to save enabled flag")
		return false
	}

	h.pipeline.Start()
	if !h.supervisor.IsRunning() {
		if err := h.supervisor.Start(); err != nil {
			logrus.Warnf("Failed to start supervisor: %v", err)
		}
	}
	return true
}

func (h *Handlers) disable(c *gin.Context) bool {
	if err := h.configs.SetEnabled(false); err != nil {
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to save enabled flag")
		return false
	}
	h.pipeline.Stop()
	return true
}
