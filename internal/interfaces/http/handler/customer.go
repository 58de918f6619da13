package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	accountapp "github.com/openbilling/backend/internal/application/account"
	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/interfaces/http/dto"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
)

// CustomerHandler handles customer API endpoints
type CustomerHandler struct {
	BaseHandler
	customerService *accountapp.CustomerService
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customerService *accountapp.CustomerService) *CustomerHandler {
	return &CustomerHandler{customerService: customerService}
}

// RegisterRoutes registers customer routes
func (h *CustomerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	customers := rg.Group("/customers")
	{
		customers.POST("", h.Create)
		customers.GET("", h.List)
		customers.GET("/:id", h.Get)
		customers.PATCH("/:id", h.Update)
		customers.DELETE("/:id", h.Delete)
		customers.PUT("/:id/providers/:provider", h.LinkProvider)
	}
}

// CreateCustomerRequest represents a request to register a customer
type CreateCustomerRequest struct {
	ExternalID string            `json:"external_id" binding:"required,min=1,max=100"`
	Email      string            `json:"email" binding:"required,email,max=200"`
	Name       string            `json:"name" binding:"required,min=1,max=200"`
	Phone      string            `json:"phone" binding:"omitempty,max=50"`
	Livemode   bool              `json:"livemode"`
	Tags       []string          `json:"tags" binding:"omitempty,dive,min=1,max=50"`
	Metadata   map[string]string `json:"metadata"`
}

// UpdateCustomerRequest represents a partial customer update
type UpdateCustomerRequest struct {
	Email *string `json:"email" binding:"omitempty,email,max=200"`
	Name  *string `json:"name" binding:"omitempty,min=1,max=200"`
	Phone *string `json:"phone" binding:"omitempty,max=50"`
}

// LinkProviderRequest represents a request to attach a provider-side id
type LinkProviderRequest struct {
	ProviderCustomerID string `json:"provider_customer_id" binding:"required,min=1,max=100"`
}

// CustomerResponse represents a customer in API responses
type CustomerResponse struct {
	ID          string            `json:"id"`
	ExternalID  string            `json:"external_id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone,omitempty"`
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Livemode    bool              `json:"livemode"`
	Deleted     bool              `json:"deleted"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toCustomerResponse(c *account.Customer) CustomerResponse {
	return CustomerResponse{
		ID:          c.ID.String(),
		ExternalID:  c.ExternalID,
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		ProviderIDs: c.ProviderIDs,
		Tags:        c.Tags,
		Metadata:    c.Metadata,
		Livemode:    c.Livemode,
		Deleted:     c.IsDeleted(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Create registers a new customer
func (h *CustomerHandler) Create(c *gin.Context) {
	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	customer, err := h.customerService.Create(c.Request.Context(), accountapp.CreateCustomerRequest{
		ExternalID: req.ExternalID,
		Email:      req.Email,
		Name:       req.Name,
		Phone:      req.Phone,
		Livemode:   req.Livemode,
		Tags:       req.Tags,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toCustomerResponse(customer))
}

// Get returns a customer by id
func (h *CustomerHandler) Get(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	customer, err := h.customerService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCustomerResponse(customer))
}

// List returns customers with pagination
func (h *CustomerHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.Normalize()

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
		Filters:  map[string]interface{}{},
	}
	if livemode, ok := c.GetQuery("livemode"); ok {
		filter.Filters["livemode"] = livemode == "true"
	}

	page, err := h.customerService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]CustomerResponse, len(page.Items))
	for i := range page.Items {
		responses[i] = toCustomerResponse(&page.Items[i])
	}
	h.SuccessWithMeta(c, responses, page.Total, page.Page, page.PageSize)
}

// Update applies partial changes to a customer
func (h *CustomerHandler) Update(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	var req UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	customer, err := h.customerService.Update(c.Request.Context(), id, accountapp.UpdateCustomerRequest{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCustomerResponse(customer))
}

// Delete soft-deletes a customer
func (h *CustomerHandler) Delete(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	if err := h.customerService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// LinkProvider attaches a provider-side customer id
func (h *CustomerHandler) LinkProvider(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid customer id")
		return
	}

	var req LinkProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	customer, err := h.customerService.LinkProvider(c.Request.Context(), id, c.Param("provider"), req.ProviderCustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCustomerResponse(customer))
}
