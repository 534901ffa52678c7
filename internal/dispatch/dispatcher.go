// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"strconv"
	"time"

	"promise-dispatch/internal/common/errors"
	"promise-dispatch/internal/common/logger"
	"promise-dispatch/internal/common/metrics"
	"promise-dispatch/internal/digest"
	"promise-dispatch/internal/models"
	"promise-dispatch/internal/schedule"

	"github.com/google/uuid"
)

// Minimum settled-promise samples before an integrity score is shown.
const integrityMinSamples = 3

// PreferenceStore is the settings collaborator. The watermark update is the
// only write the dispatcher performs against it.
type PreferenceStore interface {
	GetAllPreferences(ctx context.Context) ([]models.NotificationPreference, error)
	UpdateWatermark(ctx context.Context, userID string, sentAt time.Time) error
}

// PromiseRepository is the read-only commitment collaborator.
type PromiseRepository interface {
	GetActivePromises(ctx context.Context, dueBefore time.Time) ([]models.Promise, error)
	GetHistoryForOwner(ctx context.Context, email string) ([]string, error)
}

// ProfileDirectory resolves user ids to emails, loaded once per cycle.
type ProfileDirectory interface {
	GetAllProfiles(ctx context.Context) ([]models.Profile, error)
}

// EmailSender is the outbound transport collaborator.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// AuditLog is the append-only, best-effort audit collaborator.
type AuditLog interface {
	Append(ctx context.Context, entry models.EmailLogEntry) error
}

type Config struct {
	// SendTimeout bounds one outbound email send; a stuck transport call is
	// treated as a failure, never allowed to stall the whole cycle.
	SendTimeout time.Duration
}

// CycleResult reports what one dispatch cycle delivered.
type CycleResult struct {
	DailyBriefsSent       int `json:"dailyBriefsSent"`
	PeriodicRemindersSent int `json:"periodicRemindersSent"`
	LeaderRadarsSent      int `json:"leaderRadarsSent"`
	LeaderReportsSent     int `json:"leaderReportsSent"`
}

// Dispatcher runs one pass over all users: evaluate schedules, build
// digests, send, audit, advance watermarks. Per-user failures are isolated;
// only the initial bulk loads are cycle-fatal.
type Dispatcher struct {
	cfg       Config
	prefs     PreferenceStore
	promises  PromiseRepository
	profiles  ProfileDirectory
	sender    EmailSender
	audit     AuditLog
	evaluator *schedule.Evaluator
	logger    logger.Logger
}

func New(
	cfg Config,
	prefs PreferenceStore,
	promises PromiseRepository,
	profiles ProfileDirectory,
	sender EmailSender,
	audit AuditLog,
	evaluator *schedule.Evaluator,
	log logger.Logger,
) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		prefs:     prefs,
		promises:  promises,
		profiles:  profiles,
		sender:    sender,
		audit:     audit,
		evaluator: evaluator,
		logger:    log,
	}
}

// RunDispatchCycle executes one full dispatch pass at the given instant.
// targetUserEmail, when non-empty, narrows both the promise set and the
// recipient loop to that one identity for manual or test invocation.
func (d *Dispatcher) RunDispatchCycle(ctx context.Context, now time.Time, targetUserEmail string) (*CycleResult, error) {
	now = now.UTC()
	today := startOfDay(now)
	weekEnd := endOfWeek(now)

	prefs, err := d.prefs.GetAllPreferences(ctx)
	if err != nil {
		return nil, errors.NewPreferencesLoadFailedError(err)
	}

	promises, err := d.promises.GetActivePromises(ctx, weekEnd)
	if err != nil {
		return nil, errors.NewPromiseQueryFailedError(err)
	}

	allProfiles, err := d.profiles.GetAllProfiles(ctx)
	if err != nil {
		return nil, errors.NewProfileLoadFailedError(err)
	}
	profilesByID := make(map[string]models.Profile, len(allProfiles))
	for _, p := range allProfiles {
		profilesByID[p.ID] = p
	}

	if targetUserEmail != "" {
		promises = filterPromisesFor(promises, targetUserEmail, profilesByID)
	}

	dueToday := make([]models.Promise, 0, len(promises))
	for _, p := range promises {
		if p.DailyBriefCandidate(today) {
			dueToday = append(dueToday, p)
		}
	}

	ownerDaily := digest.GroupForOwners(dueToday)
	leaderDaily := digest.GroupForLeaders(dueToday, profilesByID)
	leaderWeekly := digest.GroupForLeaders(promises, profilesByID)

	result := &CycleResult{}
	for i := range prefs {
		pref := &prefs[i]

		profile, ok := profilesByID[pref.UserID]
		if !ok || profile.Email == "" {
			d.logger.Warn("skipping user without profile", map[string]interface{}{
				"userId": pref.UserID,
				"error":  errors.NewProfileNotFoundError(pref.UserID).Error(),
			})
			continue
		}
		email := profile.Email
		if targetUserEmail != "" && email != targetUserEmail {
			continue
		}

		d.dispatchDaily(ctx, pref, email, profile.FullName, ownerDaily, leaderDaily, now, result)
		d.dispatchPeriodic(ctx, pref, email, profile.FullName, promises, leaderWeekly, now, today, weekEnd, result)
	}

	d.logger.Info("dispatch cycle complete", map[string]interface{}{
		"dailyBriefsSent":       result.DailyBriefsSent,
		"periodicRemindersSent": result.PeriodicRemindersSent,
		"leaderRadarsSent":      result.LeaderRadarsSent,
		"leaderReportsSent":     result.LeaderReportsSent,
	})
	return result, nil
}

// dispatchDaily fires the owner brief and leader radar when their gates
// match and there is something to report.
func (d *Dispatcher) dispatchDaily(
	ctx context.Context,
	pref *models.NotificationPreference,
	email, name string,
	ownerDaily, leaderDaily map[string]*digest.Bucket,
	now time.Time,
	result *CycleResult,
) {
	if d.evaluator.DailyBriefDue(pref, now) {
		if bucket := ownerDaily[email]; bucket != nil {
			data := map[string]string{
				"recipientName": displayName(name, bucket.RecipientName),
				"promiseList":   formatItems(bucket.Items),
			}
			if d.send(ctx, models.EmailTypeDailyBrief, email, data) {
				result.DailyBriefsSent++
			}
		}
	}

	if d.evaluator.LeaderDailyRadarDue(pref, now) {
		if bucket := leaderDaily[email]; bucket != nil {
			data := map[string]string{
				"recipientName": displayName(name, bucket.RecipientName),
				"promiseList":   formatItems(bucket.Items),
			}
			if d.send(ctx, models.EmailTypeLeaderDailyRadar, email, data) {
				result.LeaderRadarsSent++
			}
		}
	}
}

// dispatchPeriodic fires the weekly reminder and leader report. The
// watermark advances at most once per user per cycle, only after a
// confirmed send.
func (d *Dispatcher) dispatchPeriodic(
	ctx context.Context,
	pref *models.NotificationPreference,
	email, name string,
	promises []models.Promise,
	leaderWeekly map[string]*digest.Bucket,
	now, today, weekEnd time.Time,
	result *CycleResult,
) {
	watermarkDue := false

	if d.evaluator.PeriodicReminderDue(pref, now) {
		summary := d.buildWeeklySummary(ctx, email, promises, today, weekEnd)
		data := map[string]string{
			"recipientName": displayName(name, ""),
			"openCount":     strconv.Itoa(summary.OpenCount),
			"pendingCount":  strconv.Itoa(summary.PendingCount),
			"missedCount":   strconv.Itoa(summary.MissedCount),
			"overdueCount":  strconv.Itoa(summary.OverdueCount),
			"integrityLine": integrityLine(summary),
			"promiseList":   formatUpcoming(summary.Upcoming),
		}
		if d.send(ctx, models.EmailTypeWeeklyReminder, email, data) {
			result.PeriodicRemindersSent++
			watermarkDue = true
		}
	}

	if d.evaluator.LeaderWeeklyReportDue(pref, now) {
		if bucket := leaderWeekly[email]; bucket != nil {
			data := map[string]string{
				"recipientName": displayName(name, bucket.RecipientName),
				"promiseList":   formatItems(bucket.Items),
			}
			if d.send(ctx, models.EmailTypeLeaderWeeklyReport, email, data) {
				result.LeaderReportsSent++
				watermarkDue = true
			}
		}
	}

	if watermarkDue {
		if err := d.prefs.UpdateWatermark(ctx, pref.UserID, now); err != nil {
			// The email already left the building; a stale watermark risks a
			// duplicate on the next tick, not a lost reminder.
			metrics.WatermarkUpdateFailuresTotal.Inc()
			d.logger.Error("watermark update failed", map[string]interface{}{
				"userId": pref.UserID,
				"error":  errors.NewWatermarkUpdateFailedError(pref.UserID, err).Error(),
			})
		}
	}
}

// buildWeeklySummary assembles the periodic payload for one owner.
func (d *Dispatcher) buildWeeklySummary(
	ctx context.Context,
	email string,
	promises []models.Promise,
	today, weekEnd time.Time,
) models.WeeklySummary {
	var summary models.WeeklySummary
	for _, p := range promises {
		if p.OwnerEmail != email {
			continue
		}
		switch p.Status {
		case models.StatusOpen:
			summary.OpenCount++
			if !p.DueOnOrBefore(today.AddDate(0, 0, -1)) {
				summary.Upcoming = append(summary.Upcoming, p)
			} else {
				summary.OverdueCount++
			}
		case models.StatusPendingVerification:
			summary.PendingCount++
		case models.StatusMissed:
			summary.MissedCount++
		}
	}

	history, err := d.promises.GetHistoryForOwner(ctx, email)
	if err != nil {
		// Degrade to no score; the summary is still worth sending.
		d.logger.Warn("history lookup failed", map[string]interface{}{
			"owner": email,
			"error": errors.NewHistoryQueryFailedError(email, err).Error(),
		})
		return summary
	}

	closed := 0
	for _, status := range history {
		if status == models.StatusClosed {
			closed++
		}
	}
	if len(history) >= integrityMinSamples {
		summary.HasScore = true
		summary.IntegrityScore = closed * 100 / len(history)
	}
	return summary
}

// send renders, delivers, and audits one email. Returns true on a confirmed
// send. Failures are per-recipient: counted, audited, never cycle-fatal.
func (d *Dispatcher) send(ctx context.Context, emailType, to string, data map[string]string) bool {
	subject, body, err := renderEmail(emailType, data)
	if err != nil {
		d.logger.Error("template render failed", map[string]interface{}{
			"emailType": emailType,
			"recipient": to,
			"error":     err.Error(),
		})
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	entry := models.EmailLogEntry{
		NotificationID: uuid.New().String(),
		EmailType:      emailType,
		RecipientEmail: to,
		Subject:        subject,
		SentAt:         time.Now().UTC(),
	}

	if err := d.sender.SendEmail(sendCtx, to, subject, body); err != nil {
		sendErr := errors.NewEmailSendFailedError(to, err)
		if sendCtx.Err() == context.DeadlineExceeded {
			sendErr = errors.NewEmailSendTimeoutError(to)
		}
		metrics.EmailSendFailuresTotal.WithLabelValues(emailType).Inc()
		d.logger.Error("email send failed", map[string]interface{}{
			"emailType": emailType,
			"recipient": to,
			"category":  errors.GetErrorCategory(sendErr.Code),
			"error":     sendErr.Error(),
		})
		entry.Status = models.EmailStatusFailed
		entry.ErrorDetail = err.Error()
		d.appendAudit(ctx, entry)
		return false
	}

	metrics.EmailsSentTotal.WithLabelValues(emailType).Inc()
	d.logger.Info("email sent", map[string]interface{}{
		"emailType": emailType,
		"recipient": to,
	})
	entry.Status = models.EmailStatusSent
	d.appendAudit(ctx, entry)
	return true
}

// appendAudit writes the best-effort audit entry; failures never affect the
// send outcome.
func (d *Dispatcher) appendAudit(ctx context.Context, entry models.EmailLogEntry) {
	if err := d.audit.Append(ctx, entry); err != nil {
		metrics.AuditLogFailuresTotal.Inc()
		d.logger.Warn("audit log append failed", map[string]interface{}{
			"emailType": entry.EmailType,
			"recipient": entry.RecipientEmail,
			"error":     errors.NewAuditLogWriteFailedError(err).Error(),
		})
	}
}

// filterPromisesFor keeps promises where the target identity is either the
// owner or the resolved leader, so a narrowed run exercises both channels.
func filterPromisesFor(promises []models.Promise, email string, profilesByID map[string]models.Profile) []models.Promise {
	out := make([]models.Promise, 0, len(promises))
	for _, p := range promises {
		if p.OwnerEmail == email {
			out = append(out, p)
			continue
		}
		if profile, ok := profilesByID[p.LeaderID]; ok && profile.Email == email {
			out = append(out, p)
		}
	}
	return out
}

// integrityLine renders the integrity score fragment, or nothing while the
// sample count is below the floor.
func integrityLine(summary models.WeeklySummary) string {
	if !summary.HasScore {
		return ""
	}
	return "<p>Integrity score: " + strconv.Itoa(summary.IntegrityScore) + "%</p>"
}

func displayName(profileName, bucketName string) string {
	if profileName != "" {
		return profileName
	}
	if bucketName != "" {
		return bucketName
	}
	return "there"
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// endOfWeek is the upcoming Sunday at end of day (UTC). Weekly payloads
// consider future-dated open items through this horizon.
func endOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	daysUntilSunday := (7 - int(day.Weekday())) % 7
	return day.AddDate(0, 0, daysUntilSunday).Add(24*time.Hour - time.Second)
}
