package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opsportal/notifier/internal/domain"
	"github.com/opsportal/notifier/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	headerTenantID = "X-Tenant-ID"
)

type NotificationService interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, tenantID string, id string) (*domain.Notification, error)
	List(ctx context.Context, tenantID string, params repository.ListParams) ([]domain.Notification, int64, error)
	ListAttempts(ctx context.Context, tenantID string, id string) ([]domain.DeliveryAttempt, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications/:id/attempts", h.ListAttempts)

	return nil
}

type createNotificationRequest struct {
	TransportID string         `json:"transportId"`
	EventType   string         `json:"eventType"`
	Payload     map[string]any `json:"payload"`
}

type notificationResponse struct {
	ID              string         `json:"id"`
	TransportID     string         `json:"transportId"`
	EventType       string         `json:"eventType"`
	Payload         map[string]any `json:"payload,omitempty"`
	Status          string         `json:"status"`
	RemoteMessageID *string        `json:"remoteMessageId,omitempty"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
	AttemptCount    int            `json:"attemptCount"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt,omitempty"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type attemptResponse struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	ErrorKind     *string   `json:"errorKind,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	tenantID, err := requestTenantID(c)
	if err != nil {
		return err
	}

	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification := domain.Notification{
		TenantID:    tenantID,
		TransportID: strings.TrimSpace(req.TransportID),
		EventType:   strings.TrimSpace(req.EventType),
		Payload:     req.Payload,
	}

	created, err := h.service.Create(c.UserContext(), &notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	tenantID, err := requestTenantID(c)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.UserContext(), tenantID, id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	tenantID, err := requestTenantID(c)
	if err != nil {
		return err
	}

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.List(c.UserContext(), tenantID, params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, toNotificationResponse(&notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ListAttempts(c *fiber.Ctx) error {
	tenantID, err := requestTenantID(c)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(c.Params("id"))
	attempts, err := h.service.ListAttempts(c.UserContext(), tenantID, id)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, attemptResponse{
			ID:            attempt.ID,
			AttemptNumber: attempt.AttemptNumber,
			StatusCode:    attempt.StatusCode,
			ResponseBody:  attempt.ResponseBody,
			Error:         attempt.Error,
			ErrorKind:     attempt.ErrorKind,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:      c.QueryInt("page", defaultPage),
		PageSize:  c.QueryInt("pageSize", defaultPageSize),
		EventType: strings.TrimSpace(c.Query("eventType")),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:              n.ID,
		TransportID:     n.TransportID,
		EventType:       n.EventType,
		Payload:         n.Payload,
		Status:          n.Status.String(),
		RemoteMessageID: n.RemoteMessageID,
		ErrorMessage:    n.ErrorMessage,
		AttemptCount:    n.AttemptCount,
		SentAt:          n.SentAt,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
}

// requestTenantID reads the tenant resolved by the upstream auth layer.
func requestTenantID(c *fiber.Ctx) (string, error) {
	tenantID := strings.TrimSpace(c.Get(headerTenantID))
	if tenantID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "tenant id header is required")
	}
	return tenantID, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
