package handler

import (
	"time"

	"notify-mail-relay-go/internal/model"
)

// NotificationRequest is a notification posted by the host platform
type NotificationRequest struct {
	SourceIdentity string     `json:"source_identity"`
	DisplayName    string     `json:"display_name"`
	Title          string     `json:"title"`
	Text           string     `json:"text"`
	BigText        string     `json:"big_text"`
	IsOngoing      bool       `json:"is_ongoing"`
	Priority       *int       `json:"priority"`
	PostTime       *time.Time `json:"post_time"`
}

func (r NotificationRequest) toEvent() model.NotificationEvent {
	e := model.NotificationEvent{
		SourceIdentity: r.SourceIdentity,
		DisplayName:    r.DisplayName,
		Title:          r.Title,
		Text:           r.Text,
		BigText:        r.BigText,
		IsOngoing:      r.IsOngoing,
		Priority:       r.Priority,
	}
	if r.PostTime != nil {
		e.PostTime = *r.PostTime
	}
	return e
}

// EmailConfigRequest represents the request structure for saving the email configuration.
// An empty port selects the default port of the encryption mode; an empty
// password keeps the saved one.
type EmailConfigRequest struct {
	SMTPServer     string `json:"smtp_server" binding:"required"`
	SMTPPort       string `json:"smtp_port"`
	Encryption     string `json:"encryption" binding:"required,oneof=ssl tls none"`
	SenderEmail    string `json:"sender_email" binding:"required,email"`
	SenderPassword string `json:"sender_password"`
	RecipientEmail string `json:"recipient_email" binding:"required,email"`
}

// EnabledRequest switches forwarding on or off
type EnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ForwardRecordResponse represents the response structure for history records
type ForwardRecordResponse struct {
	ID          string       `json:"id"`
	SourceApp   string       `json:"source_app"`
	DisplayName string       `json:"display_name"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Preview     string       `json:"preview"`
	Timestamp   time.Time    `json:"timestamp"`
	DisplayTime string       `json:"display_time"`
	Status      model.Status `json:"status"`
	Error       *string      `json:"error"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func toRecordResponse(r model.ForwardRecord, now time.Time) ForwardRecordResponse {
	return ForwardRecordResponse{
		ID:          r.ID,
		SourceApp:   r.SourceApp,
		DisplayName: r.DisplayName,
		Title:       r.Title,
		Content:     r.Content,
		Preview:     r.ContentPreview(),
		Timestamp:   r.Timestamp,
		DisplayTime: r.DisplayTime(now),
		Status:      r.Status,
		Error:       r.Error,
		UpdatedAt:   r.UpdatedAt,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Database   string            `json:"database"`
	Pipeline   string            `json:"pipeline"`
	Supervisor string            `json:"supervisor"`
	Details    map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
