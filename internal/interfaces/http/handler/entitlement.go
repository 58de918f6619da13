package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
)

// EntitlementEvaluator answers entitlement and usage-limit questions
type EntitlementEvaluator interface {
	HasEntitlement(ctx context.Context, customerID uuid.UUID, key string) (bool, error)
	CheckLimit(ctx context.Context, customerID uuid.UUID, limitKey string, requestedAmount int64) (entitlement.LimitCheckResult, error)
	RecordUsage(ctx context.Context, customerID uuid.UUID, limitKey string, amount int64) error
}

// EntitlementHandler handles entitlement and usage-limit endpoints
type EntitlementHandler struct {
	BaseHandler
	evaluator EntitlementEvaluator
}

// NewEntitlementHandler creates a new EntitlementHandler
func NewEntitlementHandler(evaluator EntitlementEvaluator) *EntitlementHandler {
	return &EntitlementHandler{evaluator: evaluator}
}

// RegisterRoutes registers entitlement routes
func (h *EntitlementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	customers := rg.Group("/customers/:id")
	{
		customers.GET("/entitlements/:key", h.CheckEntitlement)
		customers.GET("/limits/:key", h.CheckLimit)
		customers.POST("/limits/:key/usage", h.RecordUsage)
	}
}

// EntitlementResponse answers an entitlement check
type EntitlementResponse struct {
	Key      string `json:"key"`
	Entitled bool   `json:"entitled"`
}

// LimitCheckResponse answers a usage-limit check. Cap and Remaining are -1
// when any stacked grant is unlimited.
type LimitCheckResponse struct {
	LimitKey  string `json:"limit_key"`
	Allowed   bool   `json:"allowed"`
	Consumed  int64  `json:"consumed"`
	Cap       int64  `json:"cap"`
	Remaining int64  `json:"remaining"`
}

// RecordUsageRequest represents a usage increment
type RecordUsageRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

// CheckEntitlement reports whether the customer holds an active grant for
// the key. Pure read; never calls the payment provider.
func (h *EntitlementHandler) CheckEntitlement(c *gin.Context) {
	customerID, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}
	key := c.Param("key")

	entitled, err := h.evaluator.HasEntitlement(c.Request.Context(), customerID, key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, EntitlementResponse{Key: key, Entitled: entitled})
}

// CheckLimit reports whether the requested amount fits under the customer's
// stacked caps for the limit key. The amount query parameter defaults to 1.
func (h *EntitlementHandler) CheckLimit(c *gin.Context) {
	customerID, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	amount := int64(1)
	if raw, ok := c.GetQuery("amount"); ok {
		amount, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || amount < 1 {
			h.BadRequest(c, "Invalid amount")
			return
		}
	}

	result, err := h.evaluator.CheckLimit(c.Request.Context(), customerID, c.Param("key"), amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, LimitCheckResponse{
		LimitKey:  result.LimitKey,
		Allowed:   result.Allowed,
		Consumed:  result.Consumed,
		Cap:       result.Cap,
		Remaining: result.Remaining,
	})
}

// RecordUsage atomically increments consumption for the limit key
func (h *EntitlementHandler) RecordUsage(c *gin.Context) {
	customerID, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.evaluator.RecordUsage(c.Request.Context(), customerID, c.Param("key"), req.Amount); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
