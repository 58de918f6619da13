package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/subscription"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	appbilling "github.com/openbilling/backend/internal/application/billing"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
	"github.com/openbilling/backend/internal/infrastructure/config"
)

// ProviderName identifies Stripe in ledger entries and provider id columns.
const ProviderName = "stripe"

// StripeAdapter implements the payment provider port against the Stripe API.
// Raw webhook payloads never cross this boundary: VerifyWebhook validates the
// signature and translates the event into one of the closed payload variants
// before the reconciler sees it.
type StripeAdapter struct {
	cfg    config.StripeConfig
	logger *zap.Logger
}

var _ appbilling.PaymentProvider = (*StripeAdapter)(nil)

// NewStripeAdapter creates a Stripe adapter and installs the API key on the
// stripe client.
func NewStripeAdapter(cfg config.StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("stripe: api key is required")
	}
	if cfg.Livemode && !strings.HasPrefix(cfg.APIKey, "sk_live") {
		return nil, fmt.Errorf("stripe: livemode enabled but api key is not a live key")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stripe.Key = cfg.APIKey

	return &StripeAdapter{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// CreateCharge executes a one-time charge against a saved payment method.
func (a *StripeAdapter) CreateCharge(ctx context.Context, req appbilling.ChargeRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(req.AmountMinor),
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		Customer:   stripe.String(req.ProviderCustomerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe payment intent",
			zap.String("customer_id", req.ProviderCustomerID),
			zap.Int64("amount_minor", req.AmountMinor),
			zap.Error(err))
		return "", shared.ErrAdapterUnavailable
	}

	a.logger.Info("Created Stripe payment intent",
		zap.String("payment_intent_id", pi.ID),
		zap.String("customer_id", req.ProviderCustomerID))

	return pi.ID, nil
}

// CreateOrUpdateSubscription creates a provider subscription, or swaps the
// price on an existing one when ProviderSubscriptionID is set.
func (a *StripeAdapter) CreateOrUpdateSubscription(ctx context.Context, req appbilling.SubscriptionRequest) (string, error) {
	priceID, err := a.priceID(req.PlanCode, req.PlanVersion)
	if err != nil {
		return "", err
	}

	if req.ProviderSubscriptionID == "" {
		return a.createSubscription(ctx, req, priceID)
	}
	return a.updateSubscription(ctx, req, priceID)
}

func (a *StripeAdapter) createSubscription(ctx context.Context, req appbilling.SubscriptionRequest, priceID string) (string, error) {
	item := &stripe.SubscriptionItemsParams{
		Price: stripe.String(priceID),
	}
	if req.Quantity > 1 {
		item.Quantity = stripe.Int64(req.Quantity)
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.ProviderCustomerID),
		Items:    []*stripe.SubscriptionItemsParams{item},
	}
	params.Context = ctx
	params.PaymentBehavior = stripe.String("default_incomplete")
	if req.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	if req.PromoCode != "" {
		params.Discounts = []*stripe.SubscriptionDiscountParams{
			{PromotionCode: stripe.String(req.PromoCode)},
		}
	}
	// The webhook translation reads the plan identity and promo code back
	// from the subscription metadata Stripe copies onto invoice events.
	params.Metadata = subscriptionMetadata(req)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sub, err := subscription.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe subscription",
			zap.String("customer_id", req.ProviderCustomerID),
			zap.String("plan_code", req.PlanCode),
			zap.Error(err))
		return "", shared.ErrAdapterUnavailable
	}

	a.logger.Info("Created Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("plan_code", req.PlanCode),
		zap.String("status", string(sub.Status)))

	return sub.ID, nil
}

func (a *StripeAdapter) updateSubscription(ctx context.Context, req appbilling.SubscriptionRequest, priceID string) (string, error) {
	current, err := subscription.Get(req.ProviderSubscriptionID, nil)
	if err != nil {
		a.logger.Error("Failed to get Stripe subscription",
			zap.String("subscription_id", req.ProviderSubscriptionID),
			zap.Error(err))
		return "", shared.ErrAdapterUnavailable
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return "", fmt.Errorf("stripe: subscription %s has no items", req.ProviderSubscriptionID)
	}

	item := &stripe.SubscriptionItemsParams{
		ID:    stripe.String(current.Items.Data[0].ID),
		Price: stripe.String(priceID),
	}
	if req.Quantity > 1 {
		item.Quantity = stripe.Int64(req.Quantity)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{item},
	}
	params.Context = ctx
	params.ProrationBehavior = stripe.String("create_prorations")
	params.Metadata = subscriptionMetadata(req)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sub, err := subscription.Update(req.ProviderSubscriptionID, params)
	if err != nil {
		a.logger.Error("Failed to update Stripe subscription",
			zap.String("subscription_id", req.ProviderSubscriptionID),
			zap.String("new_plan_code", req.PlanCode),
			zap.Error(err))
		return "", shared.ErrAdapterUnavailable
	}

	a.logger.Info("Updated Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("plan_code", req.PlanCode))

	return sub.ID, nil
}

// VerifyWebhook checks the Stripe-Signature header and translates the event
// into a provider-agnostic one. Unhandled event types return (nil, nil) so
// the transport can acknowledge them without involving the reconciler.
func (a *StripeAdapter) VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, a.cfg.WebhookSecret)
	if err != nil {
		a.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, shared.ErrSignatureInvalid
	}
	return a.translateEvent(event)
}

// translateEvent maps a verified Stripe event onto the closed payload set.
// Stripe does not expose a per-object version counter, so the event's created
// timestamp serves as the ordering sequence; the strictly-greater gate treats
// same-second deliveries as replays of one another.
func (a *StripeAdapter) translateEvent(event stripe.Event) (*billing.ProviderEvent, error) {
	var payload billing.EventPayload

	switch event.Type {
	case "customer.subscription.created":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			return nil, err
		}
		payload = billing.SubscriptionCreatedPayload{
			ProviderSubscriptionID: sub.ID,
			ProviderCustomerID:     customerID(sub.Customer),
			PlanCode:               sub.Metadata["plan_code"],
			PlanVersion:            parsePlanVersion(sub.Metadata["plan_version"]),
			PeriodStart:            time.Unix(sub.CurrentPeriodStart, 0).UTC(),
			PeriodEnd:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			TrialEnd:               unixPtr(sub.TrialEnd),
			CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		}

	case "customer.subscription.updated":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			return nil, err
		}
		cancelAtPeriodEnd := sub.CancelAtPeriodEnd
		payload = billing.SubscriptionUpdatedPayload{
			ProviderSubscriptionID: sub.ID,
			CancelAtPeriodEnd:      &cancelAtPeriodEnd,
			PeriodStart:            unixPtr(sub.CurrentPeriodStart),
			PeriodEnd:              unixPtr(sub.CurrentPeriodEnd),
		}

	case "customer.subscription.deleted":
		sub, err := unmarshalSubscription(event)
		if err != nil {
			return nil, err
		}
		canceledAt := sub.CanceledAt
		if canceledAt == 0 {
			canceledAt = event.Created
		}
		payload = billing.SubscriptionCanceledPayload{
			ProviderSubscriptionID: sub.ID,
			CanceledAt:             time.Unix(canceledAt, 0).UTC(),
		}

	case "invoice.paid":
		inv, err := unmarshalInvoice(event)
		if err != nil {
			return nil, err
		}
		paidAt := event.Created
		if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
			paidAt = inv.StatusTransitions.PaidAt
		}
		payload = billing.InvoicePaidPayload{
			ProviderInvoiceID:      inv.ID,
			ProviderSubscriptionID: subscriptionID(inv.Subscription),
			AmountMinor:            inv.AmountPaid,
			Currency:               valueobject.Currency(strings.ToUpper(string(inv.Currency))),
			PaidAt:                 time.Unix(paidAt, 0).UTC(),
			PeriodStart:            time.Unix(inv.PeriodStart, 0).UTC(),
			PeriodEnd:              time.Unix(inv.PeriodEnd, 0).UTC(),
			PromoCode:              invoicePromoCode(inv),
		}

	case "invoice.payment_failed":
		inv, err := unmarshalInvoice(event)
		if err != nil {
			return nil, err
		}
		// Stripe signals a spent retry schedule by clearing the next attempt.
		if inv.NextPaymentAttempt == 0 {
			payload = billing.RetriesExhaustedPayload{
				ProviderInvoiceID:      inv.ID,
				ProviderSubscriptionID: subscriptionID(inv.Subscription),
			}
			break
		}
		payload = billing.InvoicePaymentFailedPayload{
			ProviderInvoiceID:      inv.ID,
			ProviderSubscriptionID: subscriptionID(inv.Subscription),
			AttemptCount:           int(inv.AttemptCount),
			NextRetryAt:            unixPtr(inv.NextPaymentAttempt),
		}

	case "invoice.marked_uncollectible":
		inv, err := unmarshalInvoice(event)
		if err != nil {
			return nil, err
		}
		payload = billing.RetriesExhaustedPayload{
			ProviderInvoiceID:      inv.ID,
			ProviderSubscriptionID: subscriptionID(inv.Subscription),
		}

	default:
		a.logger.Debug("Unhandled webhook event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return nil, nil
	}

	return billing.NewProviderEvent(
		event.ID,
		ProviderName,
		event.Created,
		time.Unix(event.Created, 0).UTC(),
		event.Livemode,
		payload,
	)
}

func subscriptionMetadata(req appbilling.SubscriptionRequest) map[string]string {
	md := map[string]string{
		"plan_code":    req.PlanCode,
		"plan_version": strconv.Itoa(req.PlanVersion),
	}
	if req.PromoCode != "" {
		md["promo_code"] = req.PromoCode
	}
	return md
}

// invoicePromoCode recovers the promo code from the subscription metadata
// Stripe mirrors into subscription_details on invoice events. Invoice-level
// metadata is checked as a fallback for manually annotated invoices.
func invoicePromoCode(inv *stripe.Invoice) string {
	if inv.SubscriptionDetails != nil {
		if code, ok := inv.SubscriptionDetails.Metadata["promo_code"]; ok {
			return code
		}
	}
	return inv.Metadata["promo_code"]
}

func (a *StripeAdapter) priceID(planCode string, planVersion int) (string, error) {
	key := fmt.Sprintf("%s_v%d", planCode, planVersion)
	priceID, ok := a.cfg.PriceIDs[key]
	if !ok || priceID == "" {
		return "", fmt.Errorf("stripe: no price configured for plan %s", key)
	}
	return priceID, nil
}

func unmarshalSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("stripe: failed to unmarshal subscription from %s: %w", event.ID, err)
	}
	return &sub, nil
}

func unmarshalInvoice(event stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("stripe: failed to unmarshal invoice from %s: %w", event.ID, err)
	}
	return &inv, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// parsePlanVersion returns 0 when the metadata is absent or malformed, which
// the reconciler resolves to the latest plan version.
func parsePlanVersion(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0
	}
	return v
}
