package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opsportal/notifier/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status    *domain.Status
	EventType string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// PendingNotification pairs a pending notification with its transport.
// Transport is nil when the referenced transport no longer exists.
type PendingNotification struct {
	Notification domain.Notification
	Transport    *domain.Transport
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, tenantID string, id string) (*domain.Notification, error)
	List(ctx context.Context, tenantID string, params ListParams) ([]domain.Notification, int64, error)
	ListPendingWithTransport(ctx context.Context, tenantID string, limit int) ([]PendingNotification, error)
	ClaimForDispatch(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, remoteMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, message string) error
	Requeue(ctx context.Context, tenantID string, id string) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, tenantID string, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("tenant_id = ?", tenantID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if eventType := strings.TrimSpace(params.EventType); eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

// ListPendingWithTransport returns pending notifications oldest first, each
// joined with its transport when one still exists.
func (r *GormNotificationRepo) ListPendingWithTransport(ctx context.Context, tenantID string, limit int) ([]PendingNotification, error) {
	if limit < 1 {
		limit = 100
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, domain.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	transportIDs := make([]string, 0, len(models))
	seen := make(map[string]struct{}, len(models))
	for i := range models {
		id := models[i].TransportID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		transportIDs = append(transportIDs, id)
	}

	transportsByID := make(map[string]*domain.Transport, len(transportIDs))
	if len(transportIDs) > 0 {
		var transportModels []TransportModel
		err := r.db.WithContext(ctx).
			Where("id IN ? AND tenant_id = ?", transportIDs, tenantID).
			Find(&transportModels).Error
		if err != nil {
			return nil, err
		}
		for i := range transportModels {
			transportsByID[transportModels[i].ID] = transportModelToDomain(&transportModels[i])
		}
	}

	pending := make([]PendingNotification, 0, len(models))
	for i := range models {
		pending = append(pending, PendingNotification{
			Notification: *notificationModelToDomain(&models[i]),
			Transport:    transportsByID[models[i].TransportID],
		})
	}

	return pending, nil
}

// ClaimForDispatch atomically moves a pending notification to SENDING.
// Exactly one of any number of concurrent callers observes true; the rest
// must skip the record.
func (r *GormNotificationRepo) ClaimForDispatch(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusSending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, remoteMessageID string, sentAt time.Time) error {
	updates := map[string]any{
		"status":        domain.StatusSent,
		"sent_at":       sentAt,
		"error_message": nil,
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}
	if strings.TrimSpace(remoteMessageID) != "" {
		updates["remote_message_id"] = remoteMessageID
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, message string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": message,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Requeue re-arms a failed notification for the next pass. Records in any
// other state are rejected with ErrConflict.
func (r *GormNotificationRepo) Requeue(ctx context.Context, tenantID string, id string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, domain.StatusFailed).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"error_message": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	return domain.ErrConflict
}
