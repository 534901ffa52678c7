// internal/models/promise.go
package models

import "time"

// Promise status values as stored by the tracking application. The
// dispatcher consumes promises read-only and never mutates status.
const (
	StatusOpen                = "Open"
	StatusPendingVerification = "PendingVerification"
	StatusClosed              = "Closed"
	StatusMissed              = "Missed"
)

// Promise is one commitment row. Each promise has exactly one owner (the
// accountable person) and one leader (who verifies completion); the two may
// be the same identity.
type Promise struct {
	ID          string    `json:"id"`
	PromiseText string    `json:"promiseText"`
	DueDate     time.Time `json:"dueDate"` // date granularity only
	Status      string    `json:"status"`
	OwnerEmail  string    `json:"ownerEmail"`
	OwnerName   string    `json:"ownerName"`
	LeaderID    string    `json:"leaderId"`
	LeaderEmail string    `json:"leaderEmail,omitempty"`
	LeaderName  string    `json:"leaderName,omitempty"`
}

// DueOnOrBefore compares due dates at day granularity.
func (p *Promise) DueOnOrBefore(day time.Time) bool {
	y1, m1, d1 := p.DueDate.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	if y1 != y2 {
		return y1 < y2
	}
	if m1 != m2 {
		return m1 < m2
	}
	return d1 <= d2
}

// DailyBriefCandidate reports whether the promise belongs in a daily brief:
// open or missed work that is due today or overdue.
func (p *Promise) DailyBriefCandidate(today time.Time) bool {
	if p.Status != StatusOpen && p.Status != StatusMissed {
		return false
	}
	return p.DueOnOrBefore(today)
}
