// internal/store/preferences.go
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"promise-dispatch/internal/models"
)

// PreferenceStore reads and maintains per-user notification settings. The
// dispatcher only ever writes the weekly reminder watermark.
type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

const preferenceColumns = `user_id, daily_brief_enabled, daily_brief_hour, daily_brief_minute,
	daily_brief_timezone, daily_brief_days,
	weekly_reminder_enabled, weekly_reminder_day, weekly_reminder_hour, weekly_reminder_minute,
	weekly_reminder_timezone, weekly_reminder_frequency, weekly_reminder_last_sent,
	leader_daily_radar_enabled, leader_weekly_report_enabled`

// GetAllPreferences loads every settings record in one query; the dispatcher
// calls this exactly once per cycle.
func (s *PreferenceStore) GetAllPreferences(ctx context.Context) ([]models.NotificationPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+preferenceColumns+` FROM notification_preferences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []models.NotificationPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// UpdateWatermark persists the last-sent timestamp after a confirmed
// periodic send.
func (s *PreferenceStore) UpdateWatermark(ctx context.Context, userID string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_preferences SET weekly_reminder_last_sent = $2 WHERE user_id = $1`,
		userID, sentAt.UTC())
	return err
}

// CreateDefault inserts the bootstrap record for a user's first access. The
// settings UI calls this, not the dispatcher; the dispatcher tolerates a
// missing record by skipping the user.
func (s *PreferenceStore) CreateDefault(ctx context.Context, userID string) (models.NotificationPreference, error) {
	p := models.DefaultPreference(userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (`+preferenceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.UserID, p.DailyBriefEnabled, p.DailyBriefHour, p.DailyBriefMinute,
		p.DailyBriefTimezone, strings.Join(p.DailyBriefDays, ","),
		p.WeeklyReminderEnabled, p.WeeklyReminderDay, p.WeeklyReminderHour, p.WeeklyReminderMinute,
		p.WeeklyReminderTimezone, string(p.WeeklyReminderFrequency), nil,
		p.LeaderDailyRadarEnabled, p.LeaderWeeklyReportEnabled)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	return p, nil
}

func scanPreference(rows *sql.Rows) (models.NotificationPreference, error) {
	var p models.NotificationPreference
	var days string
	var frequency string
	var lastSent sql.NullTime

	err := rows.Scan(
		&p.UserID, &p.DailyBriefEnabled, &p.DailyBriefHour, &p.DailyBriefMinute,
		&p.DailyBriefTimezone, &days,
		&p.WeeklyReminderEnabled, &p.WeeklyReminderDay, &p.WeeklyReminderHour, &p.WeeklyReminderMinute,
		&p.WeeklyReminderTimezone, &frequency, &lastSent,
		&p.LeaderDailyRadarEnabled, &p.LeaderWeeklyReportEnabled,
	)
	if err != nil {
		return p, err
	}

	p.DailyBriefDays = splitDays(days)
	p.WeeklyReminderFrequency = models.Frequency(frequency)
	if lastSent.Valid {
		t := lastSent.Time.UTC()
		p.WeeklyReminderLastSent = &t
	}
	return p, nil
}

func splitDays(days string) []string {
	if strings.TrimSpace(days) == "" {
		return nil
	}
	parts := strings.Split(days, ",")
	out := make([]string, 0, len(parts))
	for _, d := range parts {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
