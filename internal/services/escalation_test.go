package services

import (
	"care-alert/internal/models"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSweeper(store *fakeAlertStore, directory *fakeDirectory, dispatcher *fakeDispatcher, broadcaster *fakeBroadcaster, at time.Time) *EscalationSweeper {
	var b Broadcaster
	if broadcaster != nil {
		b = broadcaster
	}
	sweeper := NewEscalationSweeper(store, directory, dispatcher, b,
		DefaultEscalationRules(), time.Minute, zap.NewNop())
	sweeper.now = func() time.Time { return at }
	return sweeper
}

func sentAlert(severity models.Severity, createdAt time.Time, routedTo []string) *models.Alert {
	return &models.Alert{
		ID:                 uuid.New(),
		SharerEmail:        testSharer,
		AlertType:          models.AlertActivityDrop,
		Severity:           severity,
		Title:              "Activity drop",
		Message:            "m",
		RoutedToCaregivers: routedTo,
		Status:             models.StatusSent,
		CreatedAt:          createdAt,
		ExpiresAt:          createdAt.Add(models.ExpiryFor(severity)),
	}
}

func TestSweepEscalatesUnacknowledgedHighToSecondary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	alert := sentAlert(models.SeverityHigh, now.Add(-31*time.Minute), []string{"sarah@example.com"})
	store.put(alert)

	directory := &fakeDirectory{rels: map[string][]models.Relationship{
		testSharer: {
			relationship(testSharer, "sarah@example.com", models.RolePrimary, nil),
			relationship(testSharer, "tom@example.com", models.RoleSecondary, nil),
		},
	}}
	dispatcher := &fakeDispatcher{}
	broadcaster := &fakeBroadcaster{}
	sweeper := newTestSweeper(store, directory, dispatcher, broadcaster, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := store.GetByID(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, stored.Status)
	require.NotNil(t, stored.EscalatedAt)
	assert.ElementsMatch(t, []string{"sarah@example.com", "tom@example.com"}, stored.RoutedToCaregivers)

	// Only the newly added caregiver is notified on escalation.
	require.Len(t, dispatcher.calls, 1)
	call := dispatcher.calls[0]
	require.Len(t, call.Recipients, 1)
	assert.Equal(t, "tom@example.com", call.Recipients[0].Email)
	assert.True(t, call.Escalated)
	assert.Equal(t, []string{models.ChannelPush}, call.Channels)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(models.StatusEscalated), events[0].Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	store.put(sentAlert(models.SeverityHigh, now.Add(-31*time.Minute), []string{"sarah@example.com"}))

	directory := &fakeDirectory{rels: map[string][]models.Relationship{
		testSharer: {relationship(testSharer, "tom@example.com", models.RoleSecondary, nil)},
	}}
	dispatcher := &fakeDispatcher{}
	sweeper := newTestSweeper(store, directory, dispatcher, nil, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, dispatcher.calls, 1)
}

func TestSweepSkipsAlertsInsideGracePeriod(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	// High escalates after 30 minutes; 20 minutes is still inside grace.
	alert := sentAlert(models.SeverityHigh, now.Add(-20*time.Minute), []string{"sarah@example.com"})
	store.put(alert)

	sweeper := newTestSweeper(store, &fakeDirectory{}, &fakeDispatcher{}, nil, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	stored, _ := store.GetByID(context.Background(), alert.ID)
	assert.Equal(t, models.StatusSent, stored.Status)
}

func TestSweepNoAdditionalRecipientsLeavesAlertSent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	// The only secondary caregiver was already in the original audience.
	alert := sentAlert(models.SeverityHigh, now.Add(-31*time.Minute),
		[]string{"sarah@example.com", "tom@example.com"})
	store.put(alert)

	directory := &fakeDirectory{rels: map[string][]models.Relationship{
		testSharer: {relationship(testSharer, "tom@example.com", models.RoleSecondary, nil)},
	}}
	dispatcher := &fakeDispatcher{}
	sweeper := newTestSweeper(store, directory, dispatcher, nil, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, dispatcher.calls)

	stored, _ := store.GetByID(context.Background(), alert.ID)
	assert.Equal(t, models.StatusSent, stored.Status)
	assert.Nil(t, stored.EscalatedAt)
}

func TestSweepCriticalEscalatesToAllActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	alert := sentAlert(models.SeverityCritical, now.Add(-11*time.Minute), []string{"sarah@example.com"})
	store.put(alert)

	directory := &fakeDirectory{rels: map[string][]models.Relationship{
		testSharer: {
			relationship(testSharer, "sarah@example.com", models.RolePrimary, nil),
			relationship(testSharer, "tom@example.com", models.RoleSecondary, nil),
			relationship(testSharer, "june@example.com", models.RoleSecondary, nil),
		},
	}}
	dispatcher := &fakeDispatcher{}
	sweeper := newTestSweeper(store, directory, dispatcher, nil, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, dispatcher.calls, 1)
	emails := []string{}
	for _, cg := range dispatcher.calls[0].Recipients {
		emails = append(emails, cg.Email)
	}
	assert.ElementsMatch(t, []string{"tom@example.com", "june@example.com"}, emails)
}

func TestSweepExpiresOverdueAlerts(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	stale := sentAlert(models.SeverityHigh, now.Add(-72*time.Hour), []string{"sarah@example.com"})
	store.put(stale)

	sweeper := newTestSweeper(store, &fakeDirectory{}, &fakeDispatcher{}, nil, now)

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	stored, _ := store.GetByID(context.Background(), stale.ID)
	assert.Equal(t, models.StatusExpired, stored.Status)
}

func TestSweepLowAndInfoNeverEscalate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeAlertStore()
	low := sentAlert(models.SeverityLow, now.Add(-48*time.Hour), []string{"sarah@example.com"})
	store.put(low)

	directory := &fakeDirectory{rels: map[string][]models.Relationship{
		testSharer: {relationship(testSharer, "tom@example.com", models.RoleSecondary, nil)},
	}}
	sweeper := newTestSweeper(store, directory, &fakeDispatcher{}, nil, now)

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
