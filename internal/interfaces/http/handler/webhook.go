package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/openbilling/backend/internal/application/billing"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
)

// signatureHeader is the header Stripe signs webhook deliveries with
const signatureHeader = "Stripe-Signature"

// applyAttempts bounds retries when a concurrent reconciler wins the
// conditional write. The provider retries the delivery anyway, so giving up
// here only delays convergence.
const applyAttempts = 3

// WebhookVerifier validates a raw webhook delivery and translates it into a
// provider-agnostic event
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error)
}

// EventApplier reconciles a provider event into local state
type EventApplier interface {
	Apply(ctx context.Context, event *billing.ProviderEvent) (*appbilling.ReconcileResult, error)
}

// WebhookHandler receives provider webhook deliveries
type WebhookHandler struct {
	BaseHandler
	verifier   WebhookVerifier
	reconciler EventApplier
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(verifier WebhookVerifier, reconciler EventApplier, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.Receive)
}

// Receive verifies and reconciles one webhook delivery. The provider treats
// any non-2xx as a failed delivery and redelivers, so transient errors get a
// 5xx and permanent ones a 4xx.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, c.GetHeader(signatureHeader))
	if err != nil {
		if errors.Is(err, shared.ErrSignatureInvalid) {
			h.HandleError(c, err)
			return
		}
		h.BadRequest(c, "Malformed webhook payload")
		return
	}
	if event == nil {
		// Unhandled event type; acknowledge so the provider stops retrying.
		h.Success(c, gin.H{"ignored": true})
		return
	}

	result, err := h.apply(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("Webhook reconciliation failed",
			zap.String("event_id", event.ProviderEventID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// apply retries when a concurrent reconciler for the same target wins the
// conditional write; the ledger makes the retry safe.
func (h *WebhookHandler) apply(ctx context.Context, event *billing.ProviderEvent) (*appbilling.ReconcileResult, error) {
	var lastErr error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		result, err := h.reconciler.Apply(ctx, event)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, shared.ErrStorageConflict) {
			return nil, err
		}
		lastErr = err
		h.logger.Warn("Conditional write lost, retrying reconcile",
			zap.String("event_id", event.ProviderEventID),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}
