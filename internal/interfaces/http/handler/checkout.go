package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/openbilling/backend/internal/application/billing"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
)

// CheckoutService prices and executes checkouts
type CheckoutService interface {
	Preview(ctx context.Context, req appbilling.CheckoutRequest) (*appbilling.Quote, error)
	Execute(ctx context.Context, req appbilling.CheckoutRequest) (*appbilling.Quote, string, error)
}

// CheckoutHandler handles checkout preview and execution endpoints
type CheckoutHandler struct {
	BaseHandler
	checkout CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkout CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// RegisterRoutes registers checkout routes
func (h *CheckoutHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/checkout/preview", h.Preview)
	rg.POST("/checkout", h.Execute)
}

// CheckoutRequest represents a request to price or execute a checkout
type CheckoutRequest struct {
	CustomerID     string     `json:"customer_id" binding:"required,uuid"`
	PlanCode       string     `json:"plan_code" binding:"required,min=1,max=100"`
	PlanVersion    int        `json:"plan_version" binding:"omitempty,min=1"`
	Quantity       int64      `json:"quantity" binding:"omitempty,min=1"`
	PromoCode      string     `json:"promo_code" binding:"omitempty,max=50"`
	SubscriptionID string     `json:"subscription_id" binding:"omitempty,uuid"`
	ChangeAt       *time.Time `json:"change_at"`
	Behavior       string     `json:"proration_behavior" binding:"omitempty,oneof=create_prorations none always_invoice"`
}

// ExecuteResponse wraps the quote with the provider-side subscription id
type ExecuteResponse struct {
	Quote                  *appbilling.Quote `json:"quote"`
	ProviderSubscriptionID string            `json:"provider_subscription_id,omitempty"`
}

// Preview prices a checkout without touching the payment provider
func (h *CheckoutHandler) Preview(c *gin.Context) {
	appReq, ok := h.bind(c)
	if !ok {
		return
	}

	quote, err := h.checkout.Preview(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quote)
}

// Execute prices a checkout and submits it to the payment provider. Local
// state changes land later through webhook reconciliation.
func (h *CheckoutHandler) Execute(c *gin.Context) {
	appReq, ok := h.bind(c)
	if !ok {
		return
	}

	quote, providerSubID, err := h.checkout.Execute(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ExecuteResponse{
		Quote:                  quote,
		ProviderSubscriptionID: providerSubID,
	})
}

func (h *CheckoutHandler) bind(c *gin.Context) (appbilling.CheckoutRequest, bool) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return appbilling.CheckoutRequest{}, false
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return appbilling.CheckoutRequest{}, false
	}

	appReq := appbilling.CheckoutRequest{
		CustomerID:  customerID,
		PlanCode:    req.PlanCode,
		PlanVersion: req.PlanVersion,
		Quantity:    req.Quantity,
		PromoCode:   req.PromoCode,
		Behavior:    appbilling.ProrationBehavior(req.Behavior),
	}
	if req.SubscriptionID != "" {
		subID, err := uuid.Parse(req.SubscriptionID)
		if err != nil {
			h.BadRequest(c, "Invalid subscription id")
			return appbilling.CheckoutRequest{}, false
		}
		appReq.SubscriptionID = &subID
	}
	if req.ChangeAt != nil {
		appReq.ChangeAt = *req.ChangeAt
	}
	return appReq, true
}
