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

// SubscriptionHandlerInterface defines the contract for subscription handlers
type SubscriptionHandlerInterface interface {
	CreateSubscription(c fiber.Ctx) error
	UpdateSubscription(c fiber.Ctx) error
	Unsubscribe(c fiber.Ctx) error
}

// SubscriptionHandler handles subscription-related HTTP requests
type SubscriptionHandler struct {
	subscriptionFlow businessflow.SubscriptionFlow
	unsubscribeFlow  businessflow.UnsubscribeFlow
	validator        *validator.Validate
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptionFlow businessflow.SubscriptionFlow, unsubscribeFlow businessflow.UnsubscribeFlow) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionFlow: subscriptionFlow,
		unsubscribeFlow:  unsubscribeFlow,
		validator:        validator.New(),
	}
}

func (h *SubscriptionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SubscriptionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateSubscription handles the subscription creation process
func (h *SubscriptionHandler) CreateSubscription(c fiber.Ctx) error {
	var req dto.CreateSubscriptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	if userID, ok := c.Locals("user_id").(uint); ok {
		req.CreatedBy = userID
	}

	result, err := h.subscriptionFlow.Create(h.createRequestContext(c, "/api/v1/subscriptions"), &req)
	if err != nil {
		if be, ok := err.(*businessflow.BusinessError); ok {
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		}
		log.Println("Subscription creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Subscription creation failed", "SUBSCRIPTION_CREATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Subscription created successfully", result)
}

// UpdateSubscription handles subscription edits, including recipient changes
// that trigger invite deliveries
func (h *SubscriptionHandler) UpdateSubscription(c fiber.Ctx) error {
	subscriptionUUID := c.Params("uuid")
	if subscriptionUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Subscription UUID is required", "MISSING_UUID", nil)
	}

	var req dto.UpdateSubscriptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = subscriptionUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.subscriptionFlow.Update(h.createRequestContext(c, "/api/v1/subscriptions/"+subscriptionUUID), &req)
	if err != nil {
		if businessflow.IsSubscriptionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND", nil)
		}
		if be, ok := err.(*businessflow.BusinessError); ok {
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
		}
		log.Println("Subscription update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Subscription update failed", "SUBSCRIPTION_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Subscription updated successfully", result)
}

// Unsubscribe handles signed unsubscribe links. The operation is idempotent,
// so repeated submissions of the same token answer success.
func (h *SubscriptionHandler) Unsubscribe(c fiber.Ctx) error {
	var req dto.UnsubscribeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.unsubscribeFlow.Unsubscribe(h.createRequestContext(c, "/api/v1/subscriptions/unsubscribe"), &req)
	if err != nil {
		if businessflow.IsUnsubscribeTokenExpired(err) {
			return h.ErrorResponse(c, fiber.StatusGone, "Unsubscribe link has expired", "TOKEN_EXPIRED", nil)
		}
		if businessflow.IsUnsubscribeTokenInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Unsubscribe link is invalid", "TOKEN_INVALID", nil)
		}
		if businessflow.IsSubscriptionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND", nil)
		}
		log.Println("Unsubscribe failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Unsubscribe failed", "UNSUBSCRIBE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Unsubscribed successfully", result)
}

func (h *SubscriptionHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *SubscriptionHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
