package httpserver

import (
	"errors"
	"net/http"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string, details map[string]string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message, Details: details})
}

// writeError maps a service error to its HTTP status and error body
func writeError(c *gin.Context, err error) {
	var validation *store.ValidationError
	var insufficient *store.InsufficientBalanceError

	switch {
	case errors.As(err, &validation):
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", validation.Message, validation.Fields)
	case errors.As(err, &insufficient):
		abortWithError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "insufficient balance", map[string]string{
			"available": insufficient.Available.String(),
			"requested": insufficient.Requested.String(),
		})
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	case errors.Is(err, store.ErrInvalidState):
		abortWithError(c, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateTransaction):
		abortWithError(c, http.StatusConflict, "DUPLICATE", "duplicate request", nil)
	case nowpayments.IsAuthenticity(err):
		abortWithError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", err.Error(), nil)
	case errors.Is(err, api.ErrProviderUnavailable):
		abortWithError(c, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", err.Error(), nil)
	default:
		if pe, ok := nowpayments.AsProviderError(err); ok {
			if pe.Timeout {
				abortWithError(c, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT", "payment provider timed out", nil)
				return
			}
			abortWithError(c, http.StatusBadGateway, "PROVIDER_ERROR", pe.Error(), providerDetails(pe))
			return
		}
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIdFromContext(c)),
			zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

func providerDetails(pe *nowpayments.ProviderError) map[string]string {
	if pe.Code == "" {
		return nil
	}
	return map[string]string{"providerCode": pe.Code}
}
