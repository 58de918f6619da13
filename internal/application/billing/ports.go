package billing

import (
	"context"

	"github.com/openbilling/backend/internal/domain/billing"
)

// EmailSender sends templated notification mail. Implementations are
// fire-and-forget from the engine's point of view: the reconciler logs
// failures and never rolls back state because of them.
type EmailSender interface {
	Send(ctx context.Context, templateKey, recipient string, vars map[string]string) error
}

// ChargeRequest describes a one-time charge executed through the payment
// provider.
type ChargeRequest struct {
	ProviderCustomerID string
	AmountMinor        int64
	Currency           string
	Description        string
	IdempotencyKey     string
}

// SubscriptionRequest describes a provider-side subscription create or update.
type SubscriptionRequest struct {
	ProviderCustomerID     string
	ProviderSubscriptionID string // empty = create
	PlanCode               string
	PlanVersion            int
	Quantity               int64
	TrialDays              int
	PromoCode              string
	IdempotencyKey         string
}

// PaymentProvider executes charges and subscription changes against the
// billing provider and verifies inbound webhooks. Verification failures
// surface as ErrSignatureInvalid before anything reaches the reconciler.
type PaymentProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (providerChargeID string, err error)
	CreateOrUpdateSubscription(ctx context.Context, req SubscriptionRequest) (providerSubscriptionID string, err error)
	VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error)
}
