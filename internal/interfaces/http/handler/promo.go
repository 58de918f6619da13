package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	promoapp "github.com/openbilling/backend/internal/application/promo"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
)

// PromoResolver validates promo codes against a cart
type PromoResolver interface {
	Resolve(ctx context.Context, code string, customerID uuid.UUID, cart promoapp.CartContext) (*promoapp.Resolution, error)
}

// PromoHandler handles promo code resolution endpoints
type PromoHandler struct {
	BaseHandler
	resolver PromoResolver
}

// NewPromoHandler creates a new PromoHandler
func NewPromoHandler(resolver PromoResolver) *PromoHandler {
	return &PromoHandler{resolver: resolver}
}

// RegisterRoutes registers promo routes
func (h *PromoHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/promo/resolve", h.Resolve)
}

// ResolvePromoRequest represents a promo resolution request
type ResolvePromoRequest struct {
	Code       string   `json:"code" binding:"required,min=1,max=50"`
	CustomerID string   `json:"customer_id" binding:"required,uuid"`
	Cart       CartBody `json:"cart" binding:"required"`
}

// CartBody describes the cart the promo code is applied to
type CartBody struct {
	AmountMinor  int64    `json:"amount_minor" binding:"required,min=0"`
	Quantity     int      `json:"quantity" binding:"omitempty,min=1"`
	PlanCode     string   `json:"plan_code" binding:"omitempty,max=100"`
	ProductCodes []string `json:"product_codes" binding:"omitempty,dive,min=1,max=100"`
}

// Resolve validates the code against all its conditions and returns the
// resulting discount. A failing condition is a 422, never a zero discount.
func (h *PromoHandler) Resolve(c *gin.Context) {
	var req ResolvePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), req.Code, customerID, promoapp.CartContext{
		AmountMinor:  req.Cart.AmountMinor,
		Quantity:     req.Cart.Quantity,
		PlanCode:     req.Cart.PlanCode,
		ProductCodes: req.Cart.ProductCodes,
		Now:          time.Now(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resolution)
}
