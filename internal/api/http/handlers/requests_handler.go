package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-tracker/internal/api/dto"
	"github.com/spec-kit/request-tracker/internal/auth"
	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/service"
	apperrors "github.com/spec-kit/request-tracker/pkg/util"
)

// RequestsHandler manages request lifecycle endpoints.
type RequestsHandler struct {
	requests *service.RequestService
	activity *service.ActivityService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, activity *service.ActivityService) *RequestsHandler {
	return &RequestsHandler{requests: requests, activity: activity}
}

// CreateRequest POST /requests.
func (h *RequestsHandler) CreateRequest(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Profile == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.RequestCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
	}
	request, err := h.requests.Create(c.Context(), principal.Profile.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": requestSummary(request)})
}

// ListRequests GET /requests.
func (h *RequestsHandler) ListRequests(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Profile == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := service.RequestListFilter{}
	if statusStr := strings.TrimSpace(c.Query("status")); statusStr != "" && statusStr != "all" {
		status := domain.RequestStatus(statusStr)
		if !status.Valid() {
			return apperrors.NewValidationError("unknown status filter", map[string]any{"status": statusStr})
		}
		filter.Status = &status
	}
	if c.QueryBool("mine") {
		ownerID := principal.Profile.ID
		filter.CreatedBy = &ownerID
	}

	requests, err := h.requests.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.RequestSummary, 0, len(requests))
	for i := range requests {
		items = append(items, requestSummary(&requests[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetRequest GET /requests/:id.
func (h *RequestsHandler) GetRequest(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	request, err := h.requests.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	activity, err := h.activity.ListForRequest(c.Context(), request.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(request, activity)})
}

// UpdateStatus POST /requests/:id/status.
//
// Closed requests are steered to the reopen endpoint here, at the surface
// layer; the lifecycle core itself only rejects out-of-vocabulary statuses.
func (h *RequestsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Profile == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	current, err := h.requests.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if current.Status == domain.RequestStatusClosed {
		return apperrors.NewDomainError("REQUEST_CLOSED",
			"closed requests can only be reopened", http.StatusConflict, nil)
	}

	request, err := h.requests.Transition(c.Context(), current.ID, req.Status, principal.Profile.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(request)})
}

// Reopen POST /requests/:id/reopen.
func (h *RequestsHandler) Reopen(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Profile == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	request, err := h.requests.Reopen(c.Context(), c.Params("id"), principal.Profile.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(request)})
}

func requestSummary(request *domain.Request) dto.RequestSummary {
	return dto.RequestSummary{
		ID:         request.ID,
		PublicID:   request.PublicID,
		Title:      request.Title,
		Type:       request.Type,
		Priority:   request.Priority,
		Status:     request.Status,
		CreatedBy:  request.CreatedBy,
		AssignedTo: request.AssignedTo,
		CreatedAt:  request.CreatedAt,
		UpdatedAt:  request.UpdatedAt,
	}
}

func requestDetail(request *domain.Request, activity []service.ActivityEntry) dto.RequestDetailResponse {
	entries := make([]dto.ActivityEntryResponse, 0, len(activity))
	for _, entry := range activity {
		entries = append(entries, dto.ActivityEntryResponse{
			ID:        entry.Log.ID,
			Event:     entry.Log.Event,
			Details:   entry.Log.Details,
			ActorName: entry.ActorName,
			CreatedAt: entry.Log.CreatedAt,
		})
	}
	return dto.RequestDetailResponse{
		RequestSummary: requestSummary(request),
		Description:    request.Description,
		Activity:       entries,
	}
}
