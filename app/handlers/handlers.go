// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/middleware"
	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers shared by every handler
type baseHandler struct {
	validator *validator.Validate
	cipher    services.PayloadCipher
}

func newBaseHandler(cipher services.PayloadCipher) baseHandler {
	return baseHandler{
		validator: validator.New(),
		cipher:    cipher,
	}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// EncryptedResponse returns data sealed with the payload key
func (h *baseHandler) EncryptedResponse(c fiber.Ctx, message string, data any) error {
	envelope, err := h.cipher.EncryptJSON(data)
	if err != nil {
		log.Printf("handlers: failed to encrypt response: %v", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to encode response", businessflow.KindInternal, nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, dto.EncryptedPayload{Payload: envelope})
}

// FlowError maps a business flow error to its kind and status
func (h *baseHandler) FlowError(c fiber.Ctx, err error) error {
	status := businessflow.StatusForError(err)
	kind := businessflow.ErrorKind(err)

	message := "An internal error occurred"
	var be *businessflow.BusinessError
	if errors.As(err, &be) && status != fiber.StatusInternalServerError {
		message = be.Message
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("handlers: %s %s failed: %v", c.Method(), c.Path(), err)
	}

	var details any
	if be != nil && be.Err != nil && status < fiber.StatusInternalServerError {
		details = be.Err.Error()
	}
	return h.ErrorResponse(c, status, message, kind, details)
}

// bindAndValidate parses the JSON body and runs struct validation. When ok is false the
// 400 response has been written and err is the result of writing it.
func (h *baseHandler) bindAndValidate(c fiber.Ctx, req any) (ok bool, err error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.KindBadRequest, err.Error())
	}
	return h.validate(c, req)
}

func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	err := h.validator.Struct(req)
	if err == nil {
		return true, nil
	}

	var validationErrors []string
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			validationErrors = append(validationErrors, getValidationErrorMessage(fe))
		}
	}
	return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.KindBadRequest, validationErrors)
}

// page reads limit and offset query parameters
func (h *baseHandler) page(c fiber.Ctx) (businessflow.Page, bool, error) {
	var req dto.PaginationRequest
	if err := c.Bind().Query(&req); err != nil {
		return businessflow.Page{}, false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination", businessflow.KindBadRequest, err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return businessflow.Page{}, false, err
	}
	return businessflow.Page{Limit: req.Limit, Offset: req.Offset}, true, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultRequestTimeout)
}

func localUint(c fiber.Ctx, key string) (uint, bool) {
	v, ok := c.Locals(key).(uint)
	return v, ok && v != 0
}

func affiliateIdentity(c fiber.Ctx) (userID, adminID uint, ok bool) {
	userID, okUser := localUint(c, middleware.LocalUserID)
	adminID, okAdmin := localUint(c, middleware.LocalAdminID)
	return userID, adminID, okUser && okAdmin
}

func paramUint(c fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func queryUint(c fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
