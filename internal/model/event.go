package model

import "time"

// NotificationEvent is a notification posted by the host platform
type NotificationEvent struct {
	SourceIdentity string    `json:"source_identity"`
	DisplayName    string    `json:"display_name"`
	Title          string    `json:"title"`
	Text           string    `json:"text"`
	BigText        string    `json:"big_text"`
	IsOngoing      bool      `json:"is_ongoing"`
	Priority       *int      `json:"priority,omitempty"`
	PostTime       time.Time `json:"post_time"`
}

// Sender returns the human readable sender, falling back to the source identity
func (e NotificationEvent) Sender() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.SourceIdentity
}

// Statistics summarizes forwarding activity
type Statistics struct {
	TodayCount   int       `json:"today_count"`
	TotalCount   int       `json:"total_count"`
	LastActive   time.Time `json:"last_active"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	PendingCount int       `json:"pending_count"`
	TodayRecords int       `json:"today_records"`
	HistorySize  int       `json:"history_size"`
}
