package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"notify-mail-relay-go/internal/model"
)

// GetEmailConfig returns the email configuration with the password masked
func (h *Handlers) GetEmailConfig(c *gin.Context) {
	cfg := h.configs.GetEmailConfig()
	c.JSON(http.StatusOK, gin.H{
		"config":  cfg.Redacted(),
		"valid":   cfg.IsValid(),
		"enabled": h.configs.IsEnabled(),
	})
}

// UpdateEmailConfig replaces the email configuration
func (h *Handlers) UpdateEmailConfig(c *gin.Context) {
	var req EmailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg := model.EmailConfig{
		SMTPServer:     strings.TrimSpace(req.SMTPServer),
		SMTPPort:       strings.TrimSpace(req.SMTPPort),
		Encryption:     req.Encryption,
		SenderEmail:    strings.TrimSpace(req.SenderEmail),
		SenderPassword: req.SenderPassword,
		RecipientEmail: strings.TrimSpace(req.RecipientEmail),
	}
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = model.DefaultPort(cfg.Encryption)
	}
	if cfg.SenderPassword == "" {
		cfg.SenderPassword = h.configs.GetEmailConfig().SenderPassword
	}

	if !cfg.IsValid() {
		errorJSON(c, http.StatusBadRequest, "config_invalid", "Email configuration is incomplete or invalid")
		return
	}

	if err := h.configs.SaveEmailConfig(cfg); err != nil {
		errorJSON(c, http.StatusInternalServerError, "storage_error", "Failed to save email configuration")
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": cfg.Redacted(), "valid": true})
}

// SetEnabled switches forwarding on or off
func (h *Handlers) SetEnabled(c *gin.Context) {
	var req EnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var ok bool
	if *req.Enabled {
		ok = h.enable(c)
	} else {
		ok = h.disable(c)
	}
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}
