package repository

import (
	"time"

	"github.com/opsportal/notifier/internal/domain"
	"gorm.io/datatypes"
)

// TransportModel is the persistence model for the transports table.
type TransportModel struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	TenantID  string            `gorm:"type:varchar(64);not null;index"`
	Channel   domain.Channel    `gorm:"type:varchar(20);not null"`
	Scope     string            `gorm:"type:varchar(64)"`
	Config    datatypes.JSONMap `gorm:"type:jsonb;not null"`
	IsActive  bool              `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TransportModel) TableName() string {
	return "transports"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID              string            `gorm:"type:uuid;primaryKey"`
	TenantID        string            `gorm:"type:varchar(64);not null"`
	TransportID     string            `gorm:"type:uuid;not null"`
	EventType       string            `gorm:"type:varchar(128);not null"`
	Payload         datatypes.JSONMap `gorm:"type:jsonb"`
	Status          domain.Status     `gorm:"type:varchar(20);not null"`
	RemoteMessageID *string           `gorm:"type:varchar(255)"`
	ErrorMessage    *string           `gorm:"type:text"`
	AttemptCount    int               `gorm:"not null;default:0"`
	SentAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	AttemptNumber  int     `gorm:"not null"`
	StatusCode     *int    `gorm:"type:int"`
	ResponseBody   *string `gorm:"type:text"`
	Error          *string `gorm:"type:text"`
	ErrorKind      *string `gorm:"type:varchar(20)"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func transportModelFromDomain(t *domain.Transport) *TransportModel {
	if t == nil {
		return nil
	}

	return &TransportModel{
		ID:        t.ID,
		TenantID:  t.TenantID,
		Channel:   t.Channel,
		Scope:     t.Scope,
		Config:    datatypes.JSONMap(t.Config),
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func transportModelToDomain(m *TransportModel) *domain.Transport {
	if m == nil {
		return nil
	}

	return &domain.Transport{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Channel:   m.Channel,
		Scope:     m.Scope,
		Config:    map[string]any(m.Config),
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:              n.ID,
		TenantID:        n.TenantID,
		TransportID:     n.TransportID,
		EventType:       n.EventType,
		Payload:         datatypes.JSONMap(n.Payload),
		Status:          n.Status,
		RemoteMessageID: n.RemoteMessageID,
		ErrorMessage:    n.ErrorMessage,
		AttemptCount:    n.AttemptCount,
		SentAt:          n.SentAt,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:              m.ID,
		TenantID:        m.TenantID,
		TransportID:     m.TransportID,
		EventType:       m.EventType,
		Payload:         map[string]any(m.Payload),
		Status:          m.Status,
		RemoteMessageID: m.RemoteMessageID,
		ErrorMessage:    m.ErrorMessage,
		AttemptCount:    m.AttemptCount,
		SentAt:          m.SentAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		Error:          a.Error,
		ErrorKind:      a.ErrorKind,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		AttemptNumber:  m.AttemptNumber,
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		ErrorKind:      m.ErrorKind,
		CreatedAt:      m.CreatedAt,
	}
}
