package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opsportal/notifier/internal/domain"
	"github.com/opsportal/notifier/internal/repository"
	"github.com/opsportal/notifier/internal/sender"
)

type memoryStore struct {
	mu            sync.Mutex
	notifications map[string]*domain.Notification
	transports    map[string]*domain.Transport
	attempts      []domain.DeliveryAttempt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		notifications: make(map[string]*domain.Notification),
		transports:    make(map[string]*domain.Transport),
	}
}

func (s *memoryStore) addTransport(t domain.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := t
	s.transports[t.ID] = &copied
}

func (s *memoryStore) addNotification(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := n
	s.notifications[n.ID] = &copied
}

func (s *memoryStore) notification(t *testing.T, id string) domain.Notification {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		t.Fatalf("notification %s not in store", id)
	}
	return *n
}

type fakeNotificationRepo struct {
	store   *memoryStore
	listErr error
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.store.addNotification(*n)
	return nil
}

func (r *fakeNotificationRepo) GetByID(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[id]
	if !ok || n.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *fakeNotificationRepo) List(ctx context.Context, tenantID string, params repository.ListParams) ([]domain.Notification, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.store.notifications {
		if n.TenantID == tenantID {
			out = append(out, *n)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeNotificationRepo) ListPendingWithTransport(ctx context.Context, tenantID string, limit int) ([]repository.PendingNotification, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var pending []repository.PendingNotification
	for _, n := range r.store.notifications {
		if n.TenantID != tenantID || n.Status != domain.StatusPending {
			continue
		}
		item := repository.PendingNotification{Notification: *n}
		if transport, ok := r.store.transports[n.TransportID]; ok {
			copied := *transport
			item.Transport = &copied
		}
		pending = append(pending, item)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *fakeNotificationRepo) ClaimForDispatch(ctx context.Context, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[id]
	if !ok || n.Status != domain.StatusPending {
		return false, nil
	}
	n.Status = domain.StatusSending
	return true, nil
}

func (r *fakeNotificationRepo) MarkSent(ctx context.Context, id string, remoteMessageID string, sentAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = domain.StatusSent
	n.SentAt = &sentAt
	n.ErrorMessage = nil
	n.AttemptCount++
	if remoteMessageID != "" {
		n.RemoteMessageID = &remoteMessageID
	}
	return nil
}

func (r *fakeNotificationRepo) MarkFailed(ctx context.Context, id string, message string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = domain.StatusFailed
	n.ErrorMessage = &message
	n.AttemptCount++
	return nil
}

func (r *fakeNotificationRepo) Requeue(ctx context.Context, tenantID string, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n, ok := r.store.notifications[id]
	if !ok || n.TenantID != tenantID {
		return domain.ErrNotFound
	}
	if n.Status != domain.StatusFailed {
		return domain.ErrConflict
	}
	n.Status = domain.StatusPending
	n.ErrorMessage = nil
	return nil
}

type fakeTransportRepo struct {
	store *memoryStore
}

func (r *fakeTransportRepo) GetByID(ctx context.Context, tenantID string, id string) (*domain.Transport, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	transport, ok := r.store.transports[id]
	if !ok || transport.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copied := *transport
	return &copied, nil
}

func (r *fakeTransportRepo) Create(ctx context.Context, t *domain.Transport) error {
	r.store.addTransport(*t)
	return nil
}

type fakeAttemptRepo struct {
	store *memoryStore
}

func (r *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.attempts = append(r.store.attempts, *a)
	return nil
}

func (r *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.store.attempts {
		if a.NotificationID == notificationID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeDeliverySender struct {
	mu      sync.Mutex
	calls   int
	outcome *sender.Outcome
	errFor  map[string]error
}

func (f *fakeDeliverySender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*sender.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errFor[notification.ID]; ok {
		return nil, err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &sender.Outcome{StatusCode: 200}, nil
}

func (f *fakeDeliverySender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return f.err
}

type dispatchFixture struct {
	store    *memoryStore
	delivery *fakeDeliverySender
	limiter  *fakeRateLimiter
	service  *DispatchService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	store := newMemoryStore()
	delivery := &fakeDeliverySender{errFor: make(map[string]error)}
	limiter := &fakeRateLimiter{}

	svc, err := NewDispatchService(
		&fakeTransportRepo{store: store},
		&fakeNotificationRepo{store: store},
		&fakeAttemptRepo{store: store},
		delivery,
		limiter,
		2,
		50,
		nil,
	)
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	return &dispatchFixture{store: store, delivery: delivery, limiter: limiter, service: svc}
}

func (f *dispatchFixture) seedTransport(tenantID string, active bool) domain.Transport {
	transport := domain.Transport{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Channel:  domain.ChannelSlack,
		Config:   map[string]any{"webhookUrl": "https://hooks.example/T1"},
		IsActive: active,
	}
	f.store.addTransport(transport)
	return transport
}

func (f *dispatchFixture) seedPending(tenantID string, transportID string) domain.Notification {
	notification := domain.Notification{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TransportID: transportID,
		EventType:   "incident.created",
		Payload:     map[string]any{"title": "disk full"},
		Status:      domain.StatusPending,
	}
	f.store.addNotification(notification)
	return notification
}

func TestRunPassDeliversPendingNotification(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)
	f.delivery.outcome = &sender.Outcome{StatusCode: 200, MessageID: "msg-1"}

	summary, err := f.service.RunPass(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	result := summary.Results[0]
	if !result.Success || result.MessageID != "msg-1" {
		t.Fatalf("result = %+v, want success with msg-1", result)
	}

	stored := f.store.notification(t, notification.ID)
	if stored.Status != domain.StatusSent {
		t.Fatalf("status = %s, want SENT", stored.Status)
	}
	if stored.SentAt == nil {
		t.Fatal("sent_at not set on delivered notification")
	}
	if stored.AttemptCount != 1 {
		t.Fatalf("attempt_count = %d, want 1", stored.AttemptCount)
	}
	if f.limiter.waits != 1 {
		t.Fatalf("rate limiter waits = %d, want 1", f.limiter.waits)
	}
}

func TestRunPassMarksFailureWithError(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)
	f.delivery.errFor[notification.ID] = &sender.SendError{
		Kind:       sender.KindTransient,
		StatusCode: 503,
		Message:    "slack webhook returned status 503",
	}

	summary, err := f.service.RunPass(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	result := summary.Results[0]
	if result.Success {
		t.Fatal("result should not be successful")
	}
	if result.Error == "" {
		t.Fatal("failed result must carry an error message")
	}

	stored := f.store.notification(t, notification.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage == "" {
		t.Fatal("error_message not recorded on failed notification")
	}

	attempts := f.store.attempts
	if len(attempts) != 1 {
		t.Fatalf("attempts recorded = %d, want 1", len(attempts))
	}
	if attempts[0].StatusCode == nil || *attempts[0].StatusCode != 503 {
		t.Fatalf("attempt status code = %v, want 503", attempts[0].StatusCode)
	}
	if attempts[0].ErrorKind == nil || *attempts[0].ErrorKind != "TRANSIENT" {
		t.Fatalf("attempt error kind = %v, want TRANSIENT", attempts[0].ErrorKind)
	}
}

func TestRunPassInactiveTransportFailsWithoutSend(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", false)
	notification := f.seedPending("tenant-1", transport.ID)

	summary, err := f.service.RunPass(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	if f.delivery.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0 for inactive transport", f.delivery.callCount())
	}
	if summary.Results[0].Success {
		t.Fatal("inactive transport delivery should fail")
	}

	stored := f.store.notification(t, notification.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if len(f.store.attempts) != 1 {
		t.Fatalf("attempts recorded = %d, want 1", len(f.store.attempts))
	}
}

func TestRunPassMissingTransportFailsWithoutSend(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	notification := f.seedPending("tenant-1", uuid.NewString())

	_, err := f.service.RunPass(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	if f.delivery.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0 for missing transport", f.delivery.callCount())
	}
	stored := f.store.notification(t, notification.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
}

func TestRunPassIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.seedPending("tenant-1", transport.ID).ID)
	}
	f.delivery.errFor[ids[2]] = &sender.SendError{Kind: sender.KindPermanent, Message: "rejected"}

	summary, err := f.service.RunPass(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}
	if summary.Processed != 5 {
		t.Fatalf("processed = %d, want 5", summary.Processed)
	}

	sent, failed := 0, 0
	for _, id := range ids {
		switch status := f.store.notification(t, id).Status; status {
		case domain.StatusSent:
			sent++
		case domain.StatusFailed:
			failed++
		default:
			t.Fatalf("notification %s left in %s after pass", id, status)
		}
	}
	if sent != 4 || failed != 1 {
		t.Fatalf("sent/failed = %d/%d, want 4/1", sent, failed)
	}
}

func TestRunPassSkipsRecordsClaimedElsewhere(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)

	// Simulate a concurrent pass winning the claim between scan and claim.
	f.store.mu.Lock()
	f.store.notifications[notification.ID].Status = domain.StatusSending
	f.store.mu.Unlock()

	pending := []repository.PendingNotification{{
		Notification: notification,
		Transport:    &transport,
	}}
	result := f.service.dispatchOne(context.Background(), pending[0])

	if result != nil {
		t.Fatalf("result = %+v, want nil when the claim is lost", result)
	}
	if f.delivery.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0 when the claim is lost", f.delivery.callCount())
	}
}

func TestConcurrentPassesSendAtMostOnce(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)

	var wg sync.WaitGroup
	summaries := make([]*PassSummary, 2)
	for i := range summaries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := f.service.RunPass(context.Background(), "tenant-1")
			if err != nil {
				t.Errorf("RunPass() unexpected error: %v", err)
				return
			}
			summaries[i] = summary
		}()
	}
	wg.Wait()

	if f.delivery.callCount() != 1 {
		t.Fatalf("sender calls = %d, want exactly 1 across concurrent passes", f.delivery.callCount())
	}

	processed := 0
	for _, summary := range summaries {
		if summary != nil {
			processed += summary.Processed
		}
	}
	if processed != 1 {
		t.Fatalf("total processed = %d, want 1", processed)
	}

	if f.store.notification(t, notification.ID).Status != domain.StatusSent {
		t.Fatal("notification should end SENT after the winning pass")
	}
}

func TestRunPassRateLimiterFailureDoesNotBlockSend(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	f.limiter.err = errors.New("redis unavailable")
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)

	if _, err := f.service.RunPass(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	if f.delivery.callCount() != 1 {
		t.Fatalf("sender calls = %d, want 1 despite limiter outage", f.delivery.callCount())
	}
	if f.store.notification(t, notification.ID).Status != domain.StatusSent {
		t.Fatal("notification should still be delivered when limiter is down")
	}
}

func TestRunPassScanErrorIsReturned(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc, err := NewDispatchService(
		&fakeTransportRepo{store: store},
		&fakeNotificationRepo{store: store, listErr: errors.New("connection reset")},
		&fakeAttemptRepo{store: store},
		&fakeDeliverySender{},
		nil,
		1,
		10,
		nil,
	)
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}

	if _, err := svc.RunPass(context.Background(), "tenant-1"); err == nil {
		t.Fatal("expected error when the pending scan fails")
	}
}

func TestRunPassRequiresTenant(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	if _, err := f.service.RunPass(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("RunPass() error = %v, want ErrValidation", err)
	}
}

func TestRetryRequeuesFailedNotification(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)

	f.store.mu.Lock()
	errMsg := "slack webhook returned status 503"
	stored := f.store.notifications[notification.ID]
	stored.Status = domain.StatusFailed
	stored.ErrorMessage = &errMsg
	stored.AttemptCount = 1
	f.store.mu.Unlock()

	summary, err := f.service.Retry(context.Background(), "tenant-1", notification.ID)
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}

	if summary.Processed != 1 || !summary.Results[0].Success {
		t.Fatalf("summary = %+v, want one successful redelivery", summary)
	}

	after := f.store.notification(t, notification.ID)
	if after.Status != domain.StatusSent {
		t.Fatalf("status = %s, want SENT after retry", after.Status)
	}
	if after.AttemptCount != 2 {
		t.Fatalf("attempt_count = %d, want 2", after.AttemptCount)
	}
}

func TestRetryRejectsNonFailedNotification(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	notification := f.seedPending("tenant-1", transport.ID)

	f.store.mu.Lock()
	f.store.notifications[notification.ID].Status = domain.StatusSent
	f.store.mu.Unlock()

	_, err := f.service.Retry(context.Background(), "tenant-1", notification.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Retry() error = %v, want ErrConflict", err)
	}
	if f.delivery.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0 for rejected retry", f.delivery.callCount())
	}
}

func TestRetryUnknownNotification(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	_, err := f.service.Retry(context.Background(), "tenant-1", uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Retry() error = %v, want ErrNotFound", err)
	}
}

func TestTestTransportDispatchesSyntheticNotification(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)
	f.delivery.outcome = &sender.Outcome{StatusCode: 200, MessageID: "msg-test"}

	summary, err := f.service.TestTransport(context.Background(), "tenant-1", transport.ID, nil)
	if err != nil {
		t.Fatalf("TestTransport() unexpected error: %v", err)
	}

	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	result := summary.Results[0]
	if !result.Success || result.MessageID != "msg-test" {
		t.Fatalf("result = %+v, want success with msg-test", result)
	}

	stored := f.store.notification(t, result.NotificationID)
	if stored.EventType != domain.EventTypeTest {
		t.Fatalf("event type = %s, want %s", stored.EventType, domain.EventTypeTest)
	}
	if stored.Status != domain.StatusSent {
		t.Fatalf("status = %s, want SENT", stored.Status)
	}
}

func TestTestTransportInactiveTransportFails(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", false)

	summary, err := f.service.TestTransport(context.Background(), "tenant-1", transport.ID, nil)
	if err != nil {
		t.Fatalf("TestTransport() unexpected error: %v", err)
	}

	if summary.Results[0].Success {
		t.Fatal("test against inactive transport should fail")
	}
	if f.delivery.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0 for inactive transport", f.delivery.callCount())
	}
}

func TestTestTransportUnknownTransport(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	_, err := f.service.TestTransport(context.Background(), "tenant-1", uuid.NewString(), nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("TestTransport() error = %v, want ErrNotFound", err)
	}
}

func TestTestTransportCustomPayload(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transport := f.seedTransport("tenant-1", true)

	payload := map[string]any{"title": "smoke check"}
	summary, err := f.service.TestTransport(context.Background(), "tenant-1", transport.ID, payload)
	if err != nil {
		t.Fatalf("TestTransport() unexpected error: %v", err)
	}

	stored := f.store.notification(t, summary.Results[0].NotificationID)
	if fmt.Sprint(stored.Payload["title"]) != "smoke check" {
		t.Fatalf("payload title = %v, want smoke check", stored.Payload["title"])
	}
}

func TestRunPassScopedToTenant(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	transportA := f.seedTransport("tenant-a", true)
	transportB := f.seedTransport("tenant-b", true)
	f.seedPending("tenant-a", transportA.ID)
	other := f.seedPending("tenant-b", transportB.ID)

	summary, err := f.service.RunPass(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("RunPass() unexpected error: %v", err)
	}

	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	if f.store.notification(t, other.ID).Status != domain.StatusPending {
		t.Fatal("other tenant's notification must stay PENDING")
	}
}
