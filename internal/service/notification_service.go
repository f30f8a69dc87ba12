package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/opsportal/notifier/internal/domain"
	"github.com/opsportal/notifier/internal/observability"
	"github.com/opsportal/notifier/internal/repository"
	"go.uber.org/zap"
)

// NotificationService is the producer-facing intake and read surface.
type NotificationService struct {
	notifications repository.NotificationRepository
	transports    repository.TransportRepository
	attempts      repository.AttemptRepository
	logger        *zap.Logger
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	transports repository.TransportRepository,
	attempts repository.AttemptRepository,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if transports == nil {
		return nil, fmt.Errorf("transport repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		transports:    transports,
		attempts:      attempts,
		logger:        logger,
	}, nil
}

// Create queues a notification. The referenced transport must exist within
// the same tenant; delivery eligibility (active flag, config completeness)
// is checked at dispatch time, not here.
func (s *NotificationService) Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := prepareNotificationForCreate(notification); err != nil {
		return nil, err
	}

	if _, err := s.transports.GetByID(ctx, notification.TenantID, notification.TransportID); err != nil {
		if err == domain.ErrNotFound {
			return nil, fmt.Errorf("%w: transport %s not found for tenant", domain.ErrValidation, notification.TransportID)
		}
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, err
	}

	observability.WithContextLogger(s.logger, ctx).Info("notification queued",
		zap.String("notificationId", notification.ID),
		zap.String("tenantId", notification.TenantID),
		zap.String("eventType", notification.EventType),
	)

	return notification, nil
}

func (s *NotificationService) GetByID(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, tenantID, strings.TrimSpace(id))
}

func (s *NotificationService) List(
	ctx context.Context,
	tenantID string,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	return s.notifications.List(ctx, tenantID, params)
}

// ListAttempts returns the audit trail of a notification's delivery
// attempts, oldest first.
func (s *NotificationService) ListAttempts(ctx context.Context, tenantID string, id string) ([]domain.DeliveryAttempt, error) {
	notification, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.attempts.GetByNotificationID(ctx, notification.ID)
}

func prepareNotificationForCreate(n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.TenantID = strings.TrimSpace(n.TenantID)
	n.TransportID = strings.TrimSpace(n.TransportID)
	n.EventType = strings.TrimSpace(n.EventType)

	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	n.Status = domain.StatusPending
	n.AttemptCount = 0
	n.RemoteMessageID = nil
	n.ErrorMessage = nil
	n.SentAt = nil

	return n.Validate()
}
