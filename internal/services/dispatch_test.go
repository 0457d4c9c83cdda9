package services

import (
	"care-alert/internal/models"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(tokens *fakeTokens, attempts *fakeAttempts, transport *fakeTransport, at time.Time) *DispatchEngine {
	engine := NewDispatchEngine(tokens, attempts, map[string]Transport{
		models.ChannelPush: transport,
	}, zap.NewNop())
	engine.now = func() time.Time { return at }
	return engine
}

func testAlert(severity models.Severity) *models.Alert {
	return &models.Alert{
		ID:          uuid.New(),
		SharerEmail: testSharer,
		AlertType:   models.AlertActivityDrop,
		Severity:    severity,
		Title:       "Activity drop",
		Message:     "Step count is far below baseline.",
		Status:      models.StatusPending,
	}
}

func daytime() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func nighttime() time.Time {
	return time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
}

func TestNotifyDeliversAndAudits(t *testing.T) {
	tokens := &fakeTokens{tokens: map[string]string{"sarah@example.com/push": "tok-1"}}
	attempts := &fakeAttempts{}
	transport := &fakeTransport{}
	engine := newTestEngine(tokens, attempts, transport, daytime())

	alert := testAlert(models.SeverityHigh)
	engine.Notify(context.Background(), alert,
		[]models.CaregiverRef{{Email: "sarah@example.com", Role: models.RolePrimary}},
		[]string{models.ChannelPush}, false)

	sent := transport.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "tok-1", sent[0].Token)
	assert.Equal(t, "⚠️ Activity drop", sent[0].Title)
	assert.Equal(t, models.PriorityHigh, sent[0].Priority)

	recorded := attempts.all()
	require.Len(t, recorded, 1)
	assert.True(t, recorded[0].Success)
	assert.Equal(t, alert.ID, recorded[0].AlertID)
	assert.Equal(t, models.ChannelPush, recorded[0].Channel)
}

func TestNotifyEscalatedTitlePrefix(t *testing.T) {
	tokens := &fakeTokens{tokens: map[string]string{"tom@example.com/push": "tok-2"}}
	transport := &fakeTransport{}
	engine := newTestEngine(tokens, &fakeAttempts{}, transport, daytime())

	engine.Notify(context.Background(), testAlert(models.SeverityHigh),
		[]models.CaregiverRef{{Email: "tom@example.com"}}, []string{models.ChannelPush}, true)

	sent := transport.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "ESCALATED: ⚠️ Activity drop", sent[0].Title)
}

func TestNotifySkipsMediumDuringQuietHours(t *testing.T) {
	tokens := &fakeTokens{tokens: map[string]string{"sarah@example.com/push": "tok-1"}}
	attempts := &fakeAttempts{}
	transport := &fakeTransport{}
	engine := newTestEngine(tokens, attempts, transport, nighttime())

	engine.Notify(context.Background(), testAlert(models.SeverityMedium),
		[]models.CaregiverRef{{Email: "sarah@example.com"}}, []string{models.ChannelPush}, false)

	assert.Empty(t, transport.all())
	// Quiet-hour skips are not delivery failures and leave no audit row.
	assert.Empty(t, attempts.all())
}

func TestNotifyCriticalIgnoresQuietHours(t *testing.T) {
	tokens := &fakeTokens{tokens: map[string]string{"sarah@example.com/push": "tok-1"}}
	transport := &fakeTransport{}
	engine := newTestEngine(tokens, &fakeAttempts{}, transport, nighttime())

	engine.Notify(context.Background(), testAlert(models.SeverityCritical),
		[]models.CaregiverRef{{Email: "sarah@example.com"}}, []string{models.ChannelPush}, false)

	require.Len(t, transport.all(), 1)
}

func TestNotifyMissingTokenRecordsFailedAttempt(t *testing.T) {
	attempts := &fakeAttempts{}
	transport := &fakeTransport{}
	engine := newTestEngine(&fakeTokens{tokens: map[string]string{}}, attempts, transport, daytime())

	engine.Notify(context.Background(), testAlert(models.SeverityHigh),
		[]models.CaregiverRef{{Email: "sarah@example.com"}}, []string{models.ChannelPush}, false)

	assert.Empty(t, transport.all())
	recorded := attempts.all()
	require.Len(t, recorded, 1)
	assert.False(t, recorded[0].Success)
	assert.Equal(t, "no deliverable address", recorded[0].Error)
}

func TestNotifyOneFailureNeverAbortsTheRest(t *testing.T) {
	tokens := &fakeTokens{tokens: map[string]string{
		"sarah@example.com/push": "tok-bad",
		"tom@example.com/push":   "tok-good",
	}}
	attempts := &fakeAttempts{}
	transport := &fakeTransport{errs: map[string]error{"tok-bad": errors.New("gateway 502")}}
	engine := newTestEngine(tokens, attempts, transport, daytime())

	engine.Notify(context.Background(), testAlert(models.SeverityHigh),
		[]models.CaregiverRef{{Email: "sarah@example.com"}, {Email: "tom@example.com"}},
		[]string{models.ChannelPush}, false)

	sent := transport.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "tok-good", sent[0].Token)

	recorded := attempts.all()
	require.Len(t, recorded, 2)
	successes := 0
	for _, attempt := range recorded {
		if attempt.Success {
			successes++
		} else {
			assert.Equal(t, "gateway 502", attempt.Error)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestNotifyUnwiredChannelIsSkipped(t *testing.T) {
	attempts := &fakeAttempts{}
	engine := newTestEngine(&fakeTokens{}, attempts, &fakeTransport{}, daytime())

	engine.Notify(context.Background(), testAlert(models.SeverityCritical),
		[]models.CaregiverRef{{Email: "sarah@example.com"}}, []string{models.ChannelSMS}, false)

	assert.Empty(t, attempts.all())
}
