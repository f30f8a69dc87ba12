package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/opsportal/notifier/internal/service"
)

// DispatchService is the trigger surface of the dispatch engine.
type DispatchService interface {
	RunPass(ctx context.Context, tenantID string) (*service.PassSummary, error)
	Retry(ctx context.Context, tenantID string, notificationID string) (*service.PassSummary, error)
	TestTransport(ctx context.Context, tenantID string, transportID string, payload map[string]any) (*service.PassSummary, error)
}

type DispatchHandler struct {
	service DispatchService
}

func NewDispatchHandler(service DispatchService) (*DispatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &DispatchHandler{service: service}, nil
}

func RegisterDispatchRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewDispatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/dispatch", h.Dispatch)

	return nil
}

// dispatchRequest is the optional trigger body. An empty body runs a full
// pass; test and retry select the narrow entry points.
type dispatchRequest struct {
	TransportID    string         `json:"transportId"`
	Test           bool           `json:"test"`
	Payload        map[string]any `json:"payload"`
	NotificationID string         `json:"notificationId"`
	Retry          bool           `json:"retry"`
}

type dispatchResultItem struct {
	NotificationID  string `json:"notificationId"`
	Channel         string `json:"channel,omitempty"`
	Success         bool   `json:"success"`
	RemoteMessageID string `json:"remoteMessageId,omitempty"`
	Error           string `json:"error,omitempty"`
}

type dispatchResponse struct {
	Processed int                  `json:"processed"`
	Results   []dispatchResultItem `json:"results"`
}

func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	tenantID, err := requestTenantID(c)
	if err != nil {
		return err
	}

	var req dispatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	var summary *service.PassSummary
	switch {
	case req.Test:
		summary, err = h.service.TestTransport(c.UserContext(), tenantID, req.TransportID, req.Payload)
	case req.Retry:
		summary, err = h.service.Retry(c.UserContext(), tenantID, req.NotificationID)
	default:
		summary, err = h.service.RunPass(c.UserContext(), tenantID)
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDispatchResponse(summary))
}

func toDispatchResponse(summary *service.PassSummary) dispatchResponse {
	if summary == nil {
		return dispatchResponse{Results: []dispatchResultItem{}}
	}

	items := make([]dispatchResultItem, 0, len(summary.Results))
	for _, result := range summary.Results {
		items = append(items, dispatchResultItem{
			NotificationID:  result.NotificationID,
			Channel:         strings.ToLower(result.Channel.String()),
			Success:         result.Success,
			RemoteMessageID: result.MessageID,
			Error:           result.Error,
		})
	}

	return dispatchResponse{
		Processed: summary.Processed,
		Results:   items,
	}
}
