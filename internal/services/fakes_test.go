package services

import (
	"care-alert/internal/models"
	"care-alert/internal/repository"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory stand-ins for the repository layer. They mirror the SQL
// compare-and-set semantics so transition races can be exercised without a
// database.

type fakeDirectory struct {
	rels    map[string][]models.Relationship
	sharers map[string][]string
	err     error
}

func (d *fakeDirectory) ListActive(_ context.Context, sharerEmail string) ([]models.Relationship, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.rels[sharerEmail], nil
}

func (d *fakeDirectory) ListActiveByRole(_ context.Context, sharerEmail, role string) ([]models.Relationship, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := []models.Relationship{}
	for _, rel := range d.rels[sharerEmail] {
		if rel.Role == role {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (d *fakeDirectory) SharersForCaregiver(_ context.Context, caregiverEmail string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sharers[caregiverEmail], nil
}

func (d *fakeDirectory) ActiveExists(_ context.Context, sharerEmail, caregiverEmail string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	for _, rel := range d.rels[sharerEmail] {
		if rel.CaregiverEmail == caregiverEmail {
			return true, nil
		}
	}
	return false, nil
}

func relationship(sharer, caregiver, role string, perms models.CaregiverPermissions) models.Relationship {
	return models.Relationship{
		ID:             uuid.New(),
		SharerEmail:    sharer,
		CaregiverEmail: caregiver,
		Role:           role,
		Status:         "active",
		Permissions:    perms,
	}
}

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*models.Alert

	createErr   error
	getErr      error
	markSentErr error
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{alerts: map[uuid.UUID]*models.Alert{}}
}

func (s *fakeAlertStore) Create(_ context.Context, alert *models.Alert) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *fakeAlertStore) GetByID(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

func (s *fakeAlertStore) MarkSent(_ context.Context, id uuid.UUID) error {
	if s.markSentErr != nil {
		return s.markSentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert, ok := s.alerts[id]; ok && alert.Status == models.StatusPending {
		alert.Status = models.StatusSent
	}
	return nil
}

func (s *fakeAlertStore) Acknowledge(_ context.Context, id uuid.UUID, by string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || (alert.Status != models.StatusSent && alert.Status != models.StatusEscalated) {
		return 0, nil
	}
	alert.Status = models.StatusAcknowledged
	alert.AcknowledgedAt = &at
	alert.AcknowledgedBy = &by
	return 1, nil
}

func (s *fakeAlertStore) Resolve(_ context.Context, id uuid.UUID, by string, note *string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.Status == models.StatusResolved || alert.Status == models.StatusExpired {
		return 0, nil
	}
	alert.Status = models.StatusResolved
	alert.ResolvedAt = &at
	alert.ResolvedBy = &by
	alert.ResolutionNote = note
	return 1, nil
}

func (s *fakeAlertStore) MarkEscalated(_ context.Context, id uuid.UUID, additional []string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.Status != models.StatusSent || alert.EscalatedAt != nil {
		return false, nil
	}
	alert.Status = models.StatusEscalated
	alert.EscalatedAt = &at
	alert.RoutedToCaregivers = append(alert.RoutedToCaregivers, additional...)
	return true, nil
}

func (s *fakeAlertStore) ListEscalatable(_ context.Context, severity models.Severity, cutoff time.Time) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Alert{}
	for _, alert := range s.alerts {
		if alert.Severity == severity && alert.Status == models.StatusSent &&
			alert.CreatedAt.Before(cutoff) && alert.EscalatedAt == nil {
			out = append(out, *alert)
		}
	}
	return out, nil
}

func (s *fakeAlertStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, alert := range s.alerts {
		if (alert.Status == models.StatusPending || alert.Status == models.StatusSent) &&
			alert.ExpiresAt.Before(now) {
			alert.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *fakeAlertStore) ListBySharers(_ context.Context, sharers []string, filters models.AlertFilters) ([]models.Alert, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Alert{}
	for _, alert := range s.alerts {
		for _, sharer := range sharers {
			if alert.SharerEmail != sharer {
				continue
			}
			if filters.Status != "" && alert.Status != filters.Status {
				continue
			}
			if filters.Severity != nil && alert.Severity != *filters.Severity {
				continue
			}
			out = append(out, *alert)
		}
	}
	return out, len(out), nil
}

func (s *fakeAlertStore) put(alert *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.ID] = alert
}

type fakeAccounts struct {
	accounts   map[string]*models.CaregiverAccount
	getErr     error
	lastLogins map[string]time.Time
}

func (a *fakeAccounts) GetByEmail(_ context.Context, email string) (*models.CaregiverAccount, error) {
	if a.getErr != nil {
		return nil, a.getErr
	}
	account, ok := a.accounts[email]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (a *fakeAccounts) UpdateLastLogin(_ context.Context, email string, at time.Time) error {
	if a.lastLogins == nil {
		a.lastLogins = map[string]time.Time{}
	}
	a.lastLogins[email] = at
	return nil
}

type fakeTokens struct {
	tokens map[string]string // caregiverEmail/channel -> token
}

func (t *fakeTokens) ActiveToken(_ context.Context, caregiverEmail, channel string) (string, error) {
	token, ok := t.tokens[caregiverEmail+"/"+channel]
	if !ok {
		return "", repository.ErrNoDeviceToken
	}
	return token, nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	recorded []models.NotificationAttempt
}

func (a *fakeAttempts) Record(_ context.Context, attempt *models.NotificationAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorded = append(a.recorded, *attempt)
	return nil
}

func (a *fakeAttempts) all() []models.NotificationAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.NotificationAttempt{}, a.recorded...)
}

type sentMessage struct {
	Token    string
	Title    string
	Body     string
	Priority models.Priority
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	errs map[string]error // token -> forced failure
}

func (t *fakeTransport) Send(_ context.Context, token, title, body string, _ map[string]string, priority models.Priority) error {
	if err := t.errs[token]; err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{Token: token, Title: title, Body: body, Priority: priority})
	return nil
}

func (t *fakeTransport) all() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage{}, t.sent...)
}

type notifyCall struct {
	Alert      *models.Alert
	Recipients []models.CaregiverRef
	Channels   []string
	Escalated  bool
}

type fakeDispatcher struct {
	calls []notifyCall
}

func (d *fakeDispatcher) Notify(_ context.Context, alert *models.Alert, recipients []models.CaregiverRef, channels []string, escalated bool) {
	d.calls = append(d.calls, notifyCall{Alert: alert, Recipients: recipients, Channels: channels, Escalated: escalated})
}

type fakeClinical struct {
	calls []string
	err   error
}

func (c *fakeClinical) NotifyClinical(_ context.Context, sharerEmail string, _ *models.Alert) error {
	c.calls = append(c.calls, sharerEmail)
	return c.err
}

type fakeClinicalStore struct {
	coords    []models.ClinicalCoordination
	listErr   error
	createErr map[uuid.UUID]error
	created   []models.ClinicalAlert
}

func (s *fakeClinicalStore) ListCoordinations(_ context.Context, _ string) ([]models.ClinicalCoordination, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.coords, nil
}

func (s *fakeClinicalStore) CreateClinicalAlert(_ context.Context, ca *models.ClinicalAlert) error {
	if err := s.createErr[ca.CoordinationID]; err != nil {
		return err
	}
	s.created = append(s.created, *ca)
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (b *fakeBroadcaster) SendAlertEvent(event *AlertEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *event)
}

func (b *fakeBroadcaster) all() []AlertEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]AlertEvent{}, b.events...)
}
