package database

import "time"

// Log statuses stored in email_logs.status
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// DateLayout is the format of EmailLog.LogDate and LogFilter bounds.
const DateLayout = "2006-01-02"

// EmailLog represents a row in the email_logs table
type EmailLog struct {
	ID           int64     `json:"id"`
	Status       string    `json:"status"` // "sent", "failed"
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LogDate      string    `json:"log_date"` // calendar day of CreatedAt in the configured zone
}

// LogFilter narrows QueryLogs and DeleteLogs. Zero values mean unbounded.
type LogFilter struct {
	Status string
	Since  string // inclusive, YYYY-MM-DD
	Before string // exclusive, YYYY-MM-DD
	Limit  int
}

func (f LogFilter) matches(l *EmailLog) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Since != "" && l.LogDate < f.Since {
		return false
	}
	if f.Before != "" && l.LogDate >= f.Before {
		return false
	}
	return true
}
