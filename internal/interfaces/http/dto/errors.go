package dto

import "net/http"

// Transport-level error codes for failures that never reach the domain
const (
	ErrCodeInternal   = "INTERNAL"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeValidation = "VALIDATION_ERROR"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,

	"NOT_FOUND":      http.StatusNotFound,
	"ALREADY_EXISTS": http.StatusConflict,
	"INVALID_INPUT":  http.StatusBadRequest,
	"INVALID_EVENT":  http.StatusBadRequest,

	// Business rule violations
	"INVALID_STATE":         http.StatusUnprocessableEntity,
	"INVALID_PERIOD":        http.StatusUnprocessableEntity,
	"PROMO_INVALID":         http.StatusUnprocessableEntity,
	"LIMIT_EXCEEDED":        http.StatusUnprocessableEntity,
	"SUBSCRIPTION_TERMINAL": http.StatusUnprocessableEntity,
	"PLAN_IMMUTABLE":        http.StatusConflict,

	// Concurrency and infrastructure
	"STORAGE_CONFLICT":    http.StatusConflict,
	"SIGNATURE_INVALID":   http.StatusBadRequest,
	"ADAPTER_UNAVAILABLE": http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
