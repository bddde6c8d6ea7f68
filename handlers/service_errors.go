package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/policy-portal/services"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := errorMessage(err)

	var writeErr error
	switch {
	case services.IsUnauthenticatedError(err):
		writeErr = utils.WriteError(w, http.StatusUnauthorized, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteError(w, http.StatusForbidden, message, details)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsExternalError(err):
		// Backend failures are mapped to 502 Bad Gateway
		logger.Warn("backend error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, message, details)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.FieldsDetails(utils.GetValidationFields(err))); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// errorMessage returns the domain message without wrapped causes.
func errorMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
