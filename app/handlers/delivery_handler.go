// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Hachiko/app/dto"
	businessflow "github.com/amirphl/Hachiko/business_flow"
	"github.com/amirphl/Hachiko/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// SweepRunner is the minimal scheduler surface the handler needs to trigger
// an ad-hoc sweep. This keeps the handler independent and easy to test.
type SweepRunner interface {
	RunSweep(ctx context.Context, executionContext string) (due, dispatched int)
}

// DeliveryHandlerInterface defines the contract for internal delivery handlers
type DeliveryHandlerInterface interface {
	RunSweep(c fiber.Ctx) error
	TriggerDelivery(c fiber.Ctx) error
	TriggerInvite(c fiber.Ctx) error
}

// DeliveryHandler handles internal delivery trigger requests
type DeliveryHandler struct {
	deliveryFlow businessflow.DeliveryFlow
	sweepRunner  SweepRunner
	taskTimeout  time.Duration
	validator    *validator.Validate
}

// NewDeliveryHandler creates a new internal delivery handler
func NewDeliveryHandler(deliveryFlow businessflow.DeliveryFlow, sweepRunner SweepRunner, taskTimeout time.Duration) *DeliveryHandler {
	if taskTimeout <= 0 {
		taskTimeout = utils.DefaultTaskTimeout
	}
	return &DeliveryHandler{
		deliveryFlow: deliveryFlow,
		sweepRunner:  sweepRunner,
		taskTimeout:  taskTimeout,
		validator:    validator.New(),
	}
}

func (h *DeliveryHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DeliveryHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RunSweep triggers one sweep over due subscriptions immediately instead of
// waiting for the next scheduler tick
func (h *DeliveryHandler) RunSweep(c fiber.Ctx) error {
	due, dispatched := h.sweepRunner.RunSweep(context.Background(), businessflow.ExecutionContextManual)
	return h.SuccessResponse(c, fiber.StatusOK, "Sweep completed", dto.SweepResponse{
		Message:    "Sweep completed",
		Due:        due,
		Dispatched: dispatched,
	})
}

// TriggerDelivery runs one immediate delivery cycle for a subscription
func (h *DeliveryHandler) TriggerDelivery(c fiber.Ctx) error {
	subscriptionUUID := c.Params("uuid")
	if subscriptionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Subscription UUID is required", "MISSING_UUID", nil)
	}

	sweepCtx := businessflow.NewSweepContext(businessflow.ExecutionContextManual, nil, utils.UTCNow())
	logEntry, err := h.deliveryFlow.DeliverByUUID(h.createRequestContext(c, "/api/v1/internal/deliveries/"+subscriptionUUID), sweepCtx, subscriptionUUID, businessflow.DeliverOptions{})
	if err != nil {
		if businessflow.IsSubscriptionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND", nil)
		}
		log.Println("Manual delivery failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Delivery failed", "DELIVERY_FAILED", nil)
	}

	resp := dto.TriggerDeliveryResponse{Message: "Delivery completed"}
	if logEntry != nil {
		resp.Outcome = string(logEntry.Outcome)
		resp.ResolvedCount = logEntry.ResolvedCount
		resp.RenderedCount = logEntry.RenderedCount
		resp.SentCount = logEntry.SentCount
		resp.FailedCount = logEntry.FailedCount
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Delivery completed", resp)
}

// TriggerInvite sends an invite delivery to recipients added since the given
// previous recipient list
func (h *DeliveryHandler) TriggerInvite(c fiber.Ctx) error {
	subscriptionUUID := c.Params("uuid")
	if subscriptionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Subscription UUID is required", "MISSING_UUID", nil)
	}

	var req dto.TriggerInviteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.SubscriptionUUID = subscriptionUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	opts := businessflow.DeliverOptions{
		Invite:             true,
		PreviousRecipients: req.PreviousRecipients,
	}
	if req.Note != nil {
		opts.InviteNote = *req.Note
	}

	sweepCtx := businessflow.NewSweepContext(businessflow.ExecutionContextInvite, nil, utils.UTCNow())
	logEntry, err := h.deliveryFlow.DeliverByUUID(h.createRequestContext(c, "/api/v1/internal/deliveries/"+subscriptionUUID+"/invite"), sweepCtx, subscriptionUUID, opts)
	if err != nil {
		if businessflow.IsSubscriptionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND", nil)
		}
		log.Println("Invite delivery failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Invite delivery failed", "INVITE_FAILED", nil)
	}

	resp := dto.TriggerDeliveryResponse{Message: "Invite delivery completed"}
	if logEntry == nil {
		resp.Message = "No new recipients to invite"
	} else {
		resp.Outcome = string(logEntry.Outcome)
		resp.ResolvedCount = logEntry.ResolvedCount
		resp.RenderedCount = logEntry.RenderedCount
		resp.SentCount = logEntry.SentCount
		resp.FailedCount = logEntry.FailedCount
	}
	return h.SuccessResponse(c, fiber.StatusOK, resp.Message, resp)
}

func (h *DeliveryHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, h.taskTimeout)
}

func (h *DeliveryHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
