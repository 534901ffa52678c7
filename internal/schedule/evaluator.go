// internal/schedule/evaluator.go
package schedule

import (
	"strings"
	"time"

	"promise-dispatch/internal/models"
)

func normalizeDay(day string) string {
	return strings.ToLower(strings.TrimSpace(day))
}

// Interval floors for the watermark gate. Both sit slightly under the
// nominal period to absorb scheduler jitter: a cycle that runs a few minutes
// early must not push the send a whole week out.
const (
	biweeklyMinDays = 13
	monthlyMinDays  = 27
)

// Evaluator decides, per user and per tick, whether the daily or periodic
// channel should fire. It holds no state; now is always explicit so tests
// can pin the instant.
type Evaluator struct {
	resolver *Resolver
}

func NewEvaluator(resolver *Resolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// dailyWindowMatch is the hour+day gate shared by the owner brief and the
// leader radar.
func (e *Evaluator) dailyWindowMatch(pref *models.NotificationPreference, now time.Time) bool {
	if !e.resolver.MatchesUTCHour(pref.DailyBriefHour, pref.DailyBriefTimezone, now) {
		return false
	}
	weekday := e.resolver.CurrentLocalWeekday(now, pref.DailyBriefTimezone)
	return pref.HasDailyDay(weekday)
}

// DailyBriefDue applies the daily decision in order: the enable flag
// short-circuits before any other field is consulted.
func (e *Evaluator) DailyBriefDue(pref *models.NotificationPreference, now time.Time) bool {
	if !pref.DailyBriefEnabled {
		return false
	}
	return e.dailyWindowMatch(pref, now)
}

// LeaderDailyRadarDue mirrors the daily gate under the leader-channel flag.
func (e *Evaluator) LeaderDailyRadarDue(pref *models.NotificationPreference, now time.Time) bool {
	if !pref.LeaderDailyRadarEnabled {
		return false
	}
	return e.dailyWindowMatch(pref, now)
}

// periodicWindowMatch is the hour+day gate of the weekly reminder settings.
func (e *Evaluator) periodicWindowMatch(pref *models.NotificationPreference, now time.Time) bool {
	if !e.resolver.MatchesUTCHour(pref.WeeklyReminderHour, pref.WeeklyReminderTimezone, now) {
		return false
	}
	weekday := e.resolver.CurrentLocalWeekday(now, pref.WeeklyReminderTimezone)
	return weekday == normalizeDay(pref.WeeklyReminderDay)
}

// cadenceSatisfied converts the hour+day gate into an interval timer using
// the persisted watermark. Weekly needs no watermark; a nil watermark always
// fires (first-ever send).
func (e *Evaluator) cadenceSatisfied(pref *models.NotificationPreference, now time.Time) bool {
	switch pref.WeeklyReminderFrequency {
	case models.FrequencyBiweekly, models.FrequencyMonthly:
	default:
		return true
	}

	if pref.WeeklyReminderLastSent == nil {
		return true
	}

	daysSince := now.Sub(*pref.WeeklyReminderLastSent).Hours() / 24
	if pref.WeeklyReminderFrequency == models.FrequencyBiweekly {
		return daysSince >= biweeklyMinDays
	}
	return daysSince >= monthlyMinDays
}

// PeriodicReminderDue applies the periodic decision in order: enable flag,
// hour, day, then frequency cadence against the watermark.
func (e *Evaluator) PeriodicReminderDue(pref *models.NotificationPreference, now time.Time) bool {
	if !pref.WeeklyReminderEnabled {
		return false
	}
	if !e.periodicWindowMatch(pref, now) {
		return false
	}
	return e.cadenceSatisfied(pref, now)
}

// LeaderWeeklyReportDue mirrors the periodic gate under the leader-channel
// flag, sharing the same cadence watermark.
func (e *Evaluator) LeaderWeeklyReportDue(pref *models.NotificationPreference, now time.Time) bool {
	if !pref.LeaderWeeklyReportEnabled {
		return false
	}
	if !e.periodicWindowMatch(pref, now) {
		return false
	}
	return e.cadenceSatisfied(pref, now)
}
