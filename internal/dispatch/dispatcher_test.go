// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"promise-dispatch/internal/common/logger"
	"promise-dispatch/internal/models"
	"promise-dispatch/internal/schedule"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Test Helper Functions
// ==========================

type mockPreferenceStore struct {
	prefs           []models.NotificationPreference
	prefsErr        error
	watermarkErr    error
	watermarkCalls  []string
	watermarkTimes  []time.Time
}

func (m *mockPreferenceStore) GetAllPreferences(ctx context.Context) ([]models.NotificationPreference, error) {
	return m.prefs, m.prefsErr
}

func (m *mockPreferenceStore) UpdateWatermark(ctx context.Context, userID string, sentAt time.Time) error {
	m.watermarkCalls = append(m.watermarkCalls, userID)
	m.watermarkTimes = append(m.watermarkTimes, sentAt)
	return m.watermarkErr
}

type mockPromiseRepository struct {
	promises    []models.Promise
	promisesErr error
	history     map[string][]string
	historyErr  error
}

func (m *mockPromiseRepository) GetActivePromises(ctx context.Context, dueBefore time.Time) ([]models.Promise, error) {
	return m.promises, m.promisesErr
}

func (m *mockPromiseRepository) GetHistoryForOwner(ctx context.Context, email string) ([]string, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history[email], nil
}

type mockProfileDirectory struct {
	profiles    []models.Profile
	profilesErr error
}

func (m *mockProfileDirectory) GetAllProfiles(ctx context.Context) ([]models.Profile, error) {
	return m.profiles, m.profilesErr
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type mockEmailSender struct {
	sent    []sentEmail
	failFor map[string]error
}

func (m *mockEmailSender) SendEmail(ctx context.Context, to, subject, html string) error {
	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, Body: html})
	return nil
}

type mockAuditLog struct {
	entries   []models.EmailLogEntry
	appendErr error
}

func (m *mockAuditLog) Append(ctx context.Context, entry models.EmailLogEntry) error {
	m.entries = append(m.entries, entry)
	return m.appendErr
}

type testDeps struct {
	prefs    *mockPreferenceStore
	promises *mockPromiseRepository
	profiles *mockProfileDirectory
	sender   *mockEmailSender
	audit    *mockAuditLog
}

func newTestDispatcher(t *testing.T, deps *testDeps) *Dispatcher {
	evaluator := schedule.NewEvaluator(schedule.NewResolver(schedule.DefaultOffsets()))
	return New(
		Config{SendTimeout: 5 * time.Second},
		deps.prefs, deps.promises, deps.profiles,
		deps.sender, deps.audit,
		evaluator, logger.NewTestLogger(t),
	)
}

// mondayMorning is 2026-01-05 (a Monday) 09:15 UTC.
var mondayMorning = time.Date(2026, time.January, 5, 9, 15, 0, 0, time.UTC)

func dailyPref(userID string) models.NotificationPreference {
	return models.NotificationPreference{
		UserID:             userID,
		DailyBriefEnabled:  true,
		DailyBriefHour:     9,
		DailyBriefTimezone: "UTC",
		DailyBriefDays:     []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
	}
}

func weeklyPref(userID string) models.NotificationPreference {
	return models.NotificationPreference{
		UserID:                  userID,
		WeeklyReminderEnabled:   true,
		WeeklyReminderDay:       "monday",
		WeeklyReminderHour:      9,
		WeeklyReminderTimezone:  "UTC",
		WeeklyReminderFrequency: models.FrequencyWeekly,
	}
}

func openPromise(id, ownerEmail, ownerName, leaderID string, due time.Time) models.Promise {
	return models.Promise{
		ID:          id,
		PromiseText: "deliver " + id,
		DueDate:     due,
		Status:      models.StatusOpen,
		OwnerEmail:  ownerEmail,
		OwnerName:   ownerName,
		LeaderID:    leaderID,
	}
}

func defaultDeps() *testDeps {
	return &testDeps{
		prefs:    &mockPreferenceStore{},
		promises: &mockPromiseRepository{},
		profiles: &mockProfileDirectory{},
		sender:   &mockEmailSender{},
		audit:    &mockAuditLog{},
	}
}

// ==========================
// Cycle Tests
// ==========================

func TestRunDispatchCycle_DailyBrief(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
		openPromise("p2", "alice@example.com", "Alice", "lead-1", mondayMorning.AddDate(0, 0, -2)),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.DailyBriefsSent)
	assert.Len(t, deps.sender.sent, 1)
	assert.Equal(t, "alice@example.com", deps.sender.sent[0].To)
	assert.Contains(t, deps.sender.sent[0].Body, "deliver p1")
	assert.Contains(t, deps.sender.sent[0].Body, "deliver p2")
	assert.Contains(t, deps.sender.sent[0].Body, "Alice")

	if assert.Len(t, deps.audit.entries, 1) {
		entry := deps.audit.entries[0]
		assert.Equal(t, models.EmailTypeDailyBrief, entry.EmailType)
		assert.Equal(t, models.EmailStatusSent, entry.Status)
		assert.NotEmpty(t, entry.NotificationID)
	}
}

func TestRunDispatchCycle_EmptyBucketSkipsSend(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	// Only future-dated work: nothing due today, so no brief goes out even
	// though the schedule gate matches.
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning.AddDate(0, 0, 3)),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 0, result.DailyBriefsSent)
	assert.Empty(t, deps.sender.sent)
}

func TestRunDispatchCycle_BulkLoadFailuresAreFatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(deps *testDeps)
	}{
		{
			name:  "preferences load fails",
			setup: func(deps *testDeps) { deps.prefs.prefsErr = errors.New("db down") },
		},
		{
			name:  "promise query fails",
			setup: func(deps *testDeps) { deps.promises.promisesErr = errors.New("db down") },
		},
		{
			name:  "profile load fails",
			setup: func(deps *testDeps) { deps.profiles.profilesErr = errors.New("db down") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1")}
			tt.setup(deps)

			d := newTestDispatcher(t, deps)
			result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

			assert.Error(t, err)
			assert.Nil(t, result)
			assert.Empty(t, deps.sender.sent)
		})
	}
}

func TestRunDispatchCycle_SendFailureIsolatedPerUser(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1"), dailyPref("u2")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
		{ID: "u2", Email: "bob@example.com", FullName: "Bob"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
		openPromise("p2", "bob@example.com", "Bob", "lead-1", mondayMorning),
	}
	deps.sender.failFor = map[string]error{
		"alice@example.com": errors.New("smtp rejected"),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.DailyBriefsSent)
	assert.Len(t, deps.sender.sent, 1)
	assert.Equal(t, "bob@example.com", deps.sender.sent[0].To)

	// Both attempts are audited, one failed and one sent.
	assert.Len(t, deps.audit.entries, 2)
	statuses := []string{deps.audit.entries[0].Status, deps.audit.entries[1].Status}
	assert.Contains(t, statuses, models.EmailStatusFailed)
	assert.Contains(t, statuses, models.EmailStatusSent)
}

func TestRunDispatchCycle_SkipsUserWithoutProfile(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1"), dailyPref("ghost")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.DailyBriefsSent)
	assert.Len(t, deps.sender.sent, 1)
}

func TestRunDispatchCycle_WeeklyReminderAdvancesWatermark(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{weeklyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning.AddDate(0, 0, 2)),
	}
	deps.promises.history = map[string][]string{
		"alice@example.com": {models.StatusClosed, models.StatusClosed, models.StatusMissed},
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.PeriodicRemindersSent)
	assert.Equal(t, []string{"u1"}, deps.prefs.watermarkCalls)

	if assert.Len(t, deps.sender.sent, 1) {
		body := deps.sender.sent[0].Body
		assert.Contains(t, body, "Open: 1")
		// 2 closed of 3 settled promises.
		assert.Contains(t, body, "Integrity score: 66%")
		assert.Contains(t, body, "deliver p1")
	}
}

func TestRunDispatchCycle_NoIntegrityScoreBelowSampleFloor(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{weeklyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.history = map[string][]string{
		"alice@example.com": {models.StatusClosed, models.StatusMissed},
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.PeriodicRemindersSent)
	assert.NotContains(t, deps.sender.sent[0].Body, "Integrity score")
}

func TestRunDispatchCycle_WatermarkFailureDoesNotFailCycle(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{weeklyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.prefs.watermarkErr = errors.New("db busy")

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.PeriodicRemindersSent)
	assert.Len(t, deps.sender.sent, 1)
}

func TestRunDispatchCycle_NoWatermarkWithoutConfirmedSend(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{weeklyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.sender.failFor = map[string]error{
		"alice@example.com": errors.New("smtp rejected"),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 0, result.PeriodicRemindersSent)
	assert.Empty(t, deps.prefs.watermarkCalls)
}

func TestRunDispatchCycle_AuditFailureSwallowed(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
	}
	deps.audit.appendErr = errors.New("es unavailable")

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.DailyBriefsSent)
}

func TestRunDispatchCycle_LeaderChannels(t *testing.T) {
	lenaPref := dailyPref("lead-1")
	lenaPref.DailyBriefEnabled = false
	lenaPref.LeaderDailyRadarEnabled = true

	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{lenaPref}
	deps.profiles.profiles = []models.Profile{
		{ID: "lead-1", Email: "lena@example.com", FullName: "Lena"},
	}
	deps.promises.promises = []models.Promise{
		// A report's promise Lena verifies.
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
		// Lena's own promise is suppressed in the leader view.
		openPromise("p2", "lena@example.com", "Lena", "lead-1", mondayMorning),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.LeaderRadarsSent)
	assert.Equal(t, 0, result.DailyBriefsSent)

	if assert.Len(t, deps.sender.sent, 1) {
		assert.Equal(t, "lena@example.com", deps.sender.sent[0].To)
		assert.Contains(t, deps.sender.sent[0].Body, "deliver p1")
		assert.NotContains(t, deps.sender.sent[0].Body, "deliver p2")
	}
}

func TestRunDispatchCycle_LeaderWeeklyReportAdvancesWatermarkOnce(t *testing.T) {
	pref := weeklyPref("lead-1")
	pref.LeaderWeeklyReportEnabled = true

	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{pref}
	deps.profiles.profiles = []models.Profile{
		{ID: "lead-1", Email: "lena@example.com", FullName: "Lena"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning.AddDate(0, 0, 2)),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.PeriodicRemindersSent)
	assert.Equal(t, 1, result.LeaderReportsSent)
	// Two periodic sends for the same user still only one watermark write.
	assert.Equal(t, []string{"lead-1"}, deps.prefs.watermarkCalls)
}

func TestRunDispatchCycle_TargetUserNarrowsCycle(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{dailyPref("u1"), dailyPref("u2")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
		{ID: "u2", Email: "bob@example.com", FullName: "Bob"},
	}
	deps.promises.promises = []models.Promise{
		openPromise("p1", "alice@example.com", "Alice", "lead-1", mondayMorning),
		openPromise("p2", "bob@example.com", "Bob", "lead-1", mondayMorning),
	}

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "bob@example.com")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.DailyBriefsSent)
	assert.Len(t, deps.sender.sent, 1)
	assert.Equal(t, "bob@example.com", deps.sender.sent[0].To)
}

func TestRunDispatchCycle_HistoryFailureDegradesToNoScore(t *testing.T) {
	deps := defaultDeps()
	deps.prefs.prefs = []models.NotificationPreference{weeklyPref("u1")}
	deps.profiles.profiles = []models.Profile{
		{ID: "u1", Email: "alice@example.com", FullName: "Alice"},
	}
	deps.promises.historyErr = errors.New("query timeout")

	d := newTestDispatcher(t, deps)
	result, err := d.RunDispatchCycle(context.Background(), mondayMorning, "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.PeriodicRemindersSent)
	assert.False(t, strings.Contains(deps.sender.sent[0].Body, "Integrity score"))
}

// ==========================
// Helper Tests
// ==========================

func TestEndOfWeek(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{
			name:     "monday rolls to upcoming sunday",
			now:      time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2026, time.January, 11, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "sunday is its own horizon",
			now:      time.Date(2026, time.January, 11, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2026, time.January, 11, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, endOfWeek(tt.now).Equal(tt.expected))
		})
	}
}
