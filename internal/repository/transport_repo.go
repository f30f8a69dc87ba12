package repository

import (
	"context"
	"errors"

	"github.com/opsportal/notifier/internal/domain"
	"gorm.io/gorm"
)

type TransportRepository interface {
	GetByID(ctx context.Context, tenantID string, id string) (*domain.Transport, error)
	Create(ctx context.Context, t *domain.Transport) error
}

type GormTransportRepo struct {
	db *gorm.DB
}

func NewGormTransportRepo(db *gorm.DB) *GormTransportRepo {
	return &GormTransportRepo{db: db}
}

func (r *GormTransportRepo) GetByID(ctx context.Context, tenantID string, id string) (*domain.Transport, error) {
	var model TransportModel
	err := r.db.WithContext(ctx).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return transportModelToDomain(&model), nil
}

// Create exists for the engine's own tests and seeding; transports are
// otherwise written by the configuration UI.
func (r *GormTransportRepo) Create(ctx context.Context, t *domain.Transport) error {
	model := transportModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *transportModelToDomain(model)
	}
	return nil
}
