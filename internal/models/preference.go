// internal/models/preference.go
package models

import (
	"strings"
	"time"
)

// Frequency controls the cadence of the periodic reminder channel.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// NotificationPreference is the per-user settings record read by the
// dispatcher on every cycle. The weekly reminder watermark is the only
// field the dispatcher ever writes back.
type NotificationPreference struct {
	UserID string `json:"userId"`

	DailyBriefEnabled  bool     `json:"dailyBriefEnabled"`
	DailyBriefHour     int      `json:"dailyBriefHour"`   // 0-23, user-local
	DailyBriefMinute   int      `json:"dailyBriefMinute"` // 0-59
	DailyBriefTimezone string   `json:"dailyBriefTimezone"`
	DailyBriefDays     []string `json:"dailyBriefDays"` // lowercase weekday names

	WeeklyReminderEnabled   bool       `json:"weeklyReminderEnabled"`
	WeeklyReminderDay       string     `json:"weeklyReminderDay"`
	WeeklyReminderHour      int        `json:"weeklyReminderHour"`
	WeeklyReminderMinute    int        `json:"weeklyReminderMinute"`
	WeeklyReminderTimezone  string     `json:"weeklyReminderTimezone"`
	WeeklyReminderFrequency Frequency  `json:"weeklyReminderFrequency"`
	WeeklyReminderLastSent  *time.Time `json:"weeklyReminderLastSent,omitempty"`

	// Leader-side channels share the owner-side times and days but are
	// enabled independently.
	LeaderDailyRadarEnabled   bool `json:"leaderDailyRadarEnabled"`
	LeaderWeeklyReportEnabled bool `json:"leaderWeeklyReportEnabled"`
}

// HasDailyDay reports whether day (any case) is in the daily brief day set.
// Membership is what matters; insertion order is irrelevant.
func (p *NotificationPreference) HasDailyDay(day string) bool {
	day = strings.ToLower(strings.TrimSpace(day))
	for _, d := range p.DailyBriefDays {
		if strings.ToLower(strings.TrimSpace(d)) == day {
			return true
		}
	}
	return false
}

// DefaultPreference returns the settings record created on a user's first
// access: both channels off until the user opts in.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:                  userID,
		DailyBriefEnabled:       false,
		DailyBriefHour:          8,
		DailyBriefTimezone:      "UTC",
		DailyBriefDays:          []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		WeeklyReminderEnabled:   false,
		WeeklyReminderDay:       "monday",
		WeeklyReminderHour:      9,
		WeeklyReminderTimezone:  "UTC",
		WeeklyReminderFrequency: FrequencyWeekly,
	}
}
