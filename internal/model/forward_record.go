package model

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Status is the delivery state of a ForwardRecord
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// IsTerminal reports whether no further automatic transition happens from s
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// ForwardRecord represents one forwarding attempt of a captured notification
type ForwardRecord struct {
	Seq         uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	ID          string    `json:"id" gorm:"type:varchar(64);not null;uniqueIndex"`
	SourceApp   string    `json:"source_app" gorm:"type:varchar(255);not null"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255)"`
	Title       string    `json:"title" gorm:"type:text"`
	Content     string    `json:"content" gorm:"type:text"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	Status      Status    `json:"status" gorm:"type:varchar(16);not null;index"`
	Error       *string   `json:"error" gorm:"column:error_msg;type:text"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for ForwardRecord
func (ForwardRecord) TableName() string {
	return "forward_records"
}

// ErrorText returns the error message or an empty string
func (r ForwardRecord) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// ContentPreview returns a short single-line summary for list views
func (r ForwardRecord) ContentPreview() string {
	full := r.Content
	if r.Title != "" {
		full = r.Title + ": " + r.Content
	}
	runes := []rune(full)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return full
}

// DisplayTime renders the capture time relative to now for recent records
func (r ForwardRecord) DisplayTime(now time.Time) string {
	age := now.Sub(r.Timestamp)
	switch {
	case age < time.Minute:
		return "just now"
	case age < 30*24*time.Hour:
		return humanize.RelTime(r.Timestamp, now, "ago", "from now")
	default:
		return r.Timestamp.Format("01-02 15:04")
	}
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
