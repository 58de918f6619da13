package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInvalidPeriod        = NewDomainError("INVALID_PERIOD", "Period end must be after period start")
	ErrPromoInvalid         = NewDomainError("PROMO_INVALID", "Promo code is not applicable")
	ErrSignatureInvalid     = NewDomainError("SIGNATURE_INVALID", "Webhook signature verification failed")
	ErrStorageConflict      = NewDomainError("STORAGE_CONFLICT", "Resource was modified by a concurrent writer")
	ErrAdapterUnavailable   = NewDomainError("ADAPTER_UNAVAILABLE", "External adapter call failed")
	ErrLimitExceeded        = NewDomainError("LIMIT_EXCEEDED", "Usage limit exceeded")
	ErrPlanImmutable        = NewDomainError("PLAN_IMMUTABLE", "Plan is referenced by a live subscription and cannot be changed in place")
	ErrSubscriptionTerminal = NewDomainError("SUBSCRIPTION_TERMINAL", "Canceled subscriptions cannot transition; create a new subscription instead")
)
