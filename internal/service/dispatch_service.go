package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsportal/notifier/internal/domain"
	"github.com/opsportal/notifier/internal/observability"
	"github.com/opsportal/notifier/internal/ratelimit"
	"github.com/opsportal/notifier/internal/repository"
	"github.com/opsportal/notifier/internal/sender"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minDispatchConcurrency = 1
	defaultScanLimit       = 100
)

// DeliverySender is the outbound delivery port of the dispatcher. The
// sender registry satisfies it; tests substitute fakes.
type DeliverySender interface {
	Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*sender.Outcome, error)
}

// DispatchResult is the per-notification outcome of one pass.
type DispatchResult struct {
	NotificationID string
	Channel        domain.Channel
	Success        bool
	MessageID      string
	Error          string
}

// PassSummary reports one dispatch pass to the caller.
type PassSummary struct {
	Processed int
	Results   []DispatchResult
}

// DispatchService runs dispatch passes: scan pending notifications, claim
// each one, deliver through the sender registry, and persist the outcome.
type DispatchService struct {
	transports    repository.TransportRepository
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	sender        DeliverySender
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	scanLimit     int
	now           func() time.Time
}

func NewDispatchService(
	transports repository.TransportRepository,
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	deliverySender DeliverySender,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	scanLimit int,
	logger *zap.Logger,
) (*DispatchService, error) {
	if transports == nil {
		return nil, fmt.Errorf("transport repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if deliverySender == nil {
		return nil, fmt.Errorf("delivery sender is required")
	}
	if concurrency < minDispatchConcurrency {
		concurrency = minDispatchConcurrency
	}
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		transports:    transports,
		notifications: notifications,
		attempts:      attempts,
		sender:        deliverySender,
		rateLimiter:   rateLimiter,
		logger:        logger,
		concurrency:   concurrency,
		scanLimit:     scanLimit,
		now:           time.Now,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunPass processes every pending notification of a tenant once. Failures
// are isolated per notification; the only pass-level error is a store
// failure on the initial scan.
func (s *DispatchService) RunPass(ctx context.Context, tenantID string) (*PassSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}

	pending, err := s.notifications.ListPendingWithTransport(ctx, tenantID, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending notifications: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	passStart := s.now()
	results := make([]*DispatchResult, len(pending))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i := range pending {
		g.Go(func() error {
			results[i] = s.dispatchOne(ctx, pending[i])
			return nil
		})
	}
	// Workers never return errors; outcomes land in results.
	_ = g.Wait()

	summary := &PassSummary{Results: make([]DispatchResult, 0, len(results))}
	for _, result := range results {
		if result == nil {
			continue
		}
		summary.Results = append(summary.Results, *result)
	}
	summary.Processed = len(summary.Results)

	if s.metrics != nil {
		s.metrics.ObserveDispatchPass(s.now().Sub(passStart), summary.Processed)
	}
	logger.Info("dispatch pass completed",
		zap.String("tenantId", tenantID),
		zap.Int("pending", len(pending)),
		zap.Int("processed", summary.Processed),
	)

	return summary, nil
}

// Retry re-arms a failed notification and immediately runs a pass so the
// caller gets the redelivery outcome.
func (s *DispatchService) Retry(ctx context.Context, tenantID string, notificationID string) (*PassSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(notificationID) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	if err := s.notifications.Requeue(ctx, tenantID, notificationID); err != nil {
		return nil, err
	}

	return s.RunPass(ctx, tenantID)
}

// TestTransport synthesizes a notification against the given transport and
// dispatches it through the regular claim-and-send path, so a passing test
// proves the same code path real deliveries take.
func (s *DispatchService) TestTransport(ctx context.Context, tenantID string, transportID string, payload map[string]any) (*PassSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(transportID) == "" {
		return nil, fmt.Errorf("%w: transport id is required", domain.ErrValidation)
	}

	transport, err := s.transports.GetByID(ctx, tenantID, transportID)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = map[string]any{
			"title":       "Test notification",
			"description": fmt.Sprintf("Delivery test for transport %s", transport.ID),
		}
	}

	notification := domain.Notification{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TransportID: transport.ID,
		EventType:   domain.EventTypeTest,
		Payload:     payload,
		Status:      domain.StatusPending,
	}
	if err := s.notifications.Create(ctx, &notification); err != nil {
		return nil, fmt.Errorf("failed to create test notification: %w", err)
	}

	result := s.dispatchOne(ctx, repository.PendingNotification{
		Notification: notification,
		Transport:    transport,
	})
	if result == nil {
		// Lost the claim to a concurrent pass; report the stored outcome.
		stored, err := s.notifications.GetByID(ctx, tenantID, notification.ID)
		if err != nil {
			return nil, err
		}
		result = resultFromStored(stored, transport.Channel)
	}

	return &PassSummary{Processed: 1, Results: []DispatchResult{*result}}, nil
}

// dispatchOne claims and delivers a single notification. A nil result means
// this caller lost the claim and the record belongs to another pass.
func (s *DispatchService) dispatchOne(ctx context.Context, item repository.PendingNotification) *DispatchResult {
	notification := item.Notification
	logger := observability.WithContextLogger(s.logger, ctx)

	claimed, err := s.notifications.ClaimForDispatch(ctx, notification.ID)
	if err != nil {
		logger.Error("failed to claim notification",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
		return nil
	}
	if !claimed {
		if s.metrics != nil {
			s.metrics.IncClaimLost()
		}
		return nil
	}

	if item.Transport == nil {
		return s.failWithoutSend(ctx, notification, "transport not found")
	}
	if !item.Transport.IsActive {
		return s.failWithoutSend(ctx, notification, "transport is inactive")
	}

	transport := *item.Transport
	channelName := strings.ToLower(transport.Channel.String())

	if s.metrics != nil {
		s.metrics.IncSendInFlight(channelName)
		defer s.metrics.DecSendInFlight(channelName)
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
			// Pacing is best effort; a limiter outage must not fail delivery.
			logger.Warn("rate limiter unavailable, sending unpaced",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
		}
	}

	sendStart := s.now()
	outcome, sendErr := s.sender.Send(ctx, transport, notification)
	if s.metrics != nil {
		s.metrics.ObserveSendDuration(channelName, s.now().Sub(sendStart))
	}

	if err := s.recordAttempt(ctx, notification, outcome, sendErr); err != nil {
		logger.Error("failed to record delivery attempt",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}

	if sendErr == nil {
		messageID := ""
		if outcome != nil {
			messageID = strings.TrimSpace(outcome.MessageID)
		}
		if err := s.notifications.MarkSent(ctx, notification.ID, messageID, s.now().UTC()); err != nil {
			logger.Error("failed to mark notification sent",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
		}
		if s.metrics != nil {
			s.metrics.IncNotificationSent(channelName)
		}
		return &DispatchResult{
			NotificationID: notification.ID,
			Channel:        transport.Channel,
			Success:        true,
			MessageID:      messageID,
		}
	}

	kind := sender.KindOf(sendErr)
	if err := s.notifications.MarkFailed(ctx, notification.ID, sendErr.Error()); err != nil {
		logger.Error("failed to mark notification failed",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}
	if s.metrics != nil {
		s.metrics.IncNotificationFailed(channelName, kind.String())
	}
	logger.Warn("notification delivery failed",
		zap.String("notificationId", notification.ID),
		zap.String("channel", channelName),
		zap.String("kind", kind.String()),
		zap.Error(sendErr),
	)

	return &DispatchResult{
		NotificationID: notification.ID,
		Channel:        transport.Channel,
		Error:          sendErr.Error(),
	}
}

// failWithoutSend terminates a claimed notification that never reached a
// sender. No network call is made and no attempt duration is observed.
func (s *DispatchService) failWithoutSend(ctx context.Context, notification domain.Notification, reason string) *DispatchResult {
	logger := observability.WithContextLogger(s.logger, ctx)
	configErr := sender.ConfigErrorf("%s", reason)

	if err := s.recordAttempt(ctx, notification, nil, configErr); err != nil {
		logger.Error("failed to record delivery attempt",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}
	if err := s.notifications.MarkFailed(ctx, notification.ID, configErr.Error()); err != nil {
		logger.Error("failed to mark notification failed",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
	}
	if s.metrics != nil {
		s.metrics.IncNotificationFailed("none", sender.KindConfig.String())
	}

	return &DispatchResult{
		NotificationID: notification.ID,
		Error:          configErr.Error(),
	}
}

func (s *DispatchService) recordAttempt(
	ctx context.Context,
	notification domain.Notification,
	outcome *sender.Outcome,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string
	var errorKind *string

	if outcome != nil {
		if outcome.StatusCode > 0 {
			value := outcome.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(outcome.Body); body != "" {
			value := outcome.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		kind := sender.KindOf(sendErr).String()
		errorKind = &kind

		var sendErrTyped *sender.SendError
		if errors.As(sendErr, &sendErrTyped) && sendErrTyped.StatusCode > 0 && statusCode == nil {
			value := sendErrTyped.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notification.ID,
		AttemptNumber:  notification.AttemptCount + 1,
		StatusCode:     statusCode,
		ResponseBody:   responseBody,
		Error:          attemptErr,
		ErrorKind:      errorKind,
		CreatedAt:      s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}

func resultFromStored(n *domain.Notification, channel domain.Channel) *DispatchResult {
	result := &DispatchResult{
		NotificationID: n.ID,
		Channel:        channel,
		Success:        n.Status == domain.StatusSent,
	}
	if n.RemoteMessageID != nil {
		result.MessageID = *n.RemoteMessageID
	}
	if n.ErrorMessage != nil {
		result.Error = *n.ErrorMessage
	}
	return result
}
