// internal/models/emaillog.go
package models

import "time"

// Email kinds dispatched by this service.
const (
	EmailTypeDailyBrief        = "daily-brief"
	EmailTypeWeeklyReminder    = "weekly-reminder"
	EmailTypeLeaderDailyRadar  = "leader-daily-radar"
	EmailTypeLeaderWeeklyReport = "leader-weekly-report"
)

// Audit outcome values.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLogEntry is the append-only audit record written after every send
// attempt. It is best-effort and never read back by the dispatcher.
type EmailLogEntry struct {
	NotificationID string    `json:"notificationId"`
	EmailType      string    `json:"emailType"`
	RecipientEmail string    `json:"recipientEmail"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"`
	ErrorDetail    string    `json:"errorDetail,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

// WeeklySummary is the richer payload behind a periodic reminder: status
// counts across the recipient's active promises plus an integrity score
// once enough history exists to make one meaningful.
type WeeklySummary struct {
	OpenCount     int       `json:"openCount"`
	PendingCount  int       `json:"pendingCount"`
	MissedCount   int       `json:"missedCount"`
	OverdueCount  int       `json:"overdueCount"`
	Upcoming      []Promise `json:"upcoming"` // due through week's end
	IntegrityScore int      `json:"integrityScore"` // percent, valid only when HasScore
	HasScore       bool     `json:"hasScore"`
}
