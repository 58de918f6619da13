package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
)

// ReconcileResult is the outcome of applying one provider event
type ReconcileResult struct {
	EventID   string                   `json:"event_id"`
	EventType string                   `json:"event_type"`
	Outcome   billing.ReconcileOutcome `json:"outcome"`
	StateHash string                   `json:"state_hash,omitempty"`
}

// Reconciler applies provider events to local billing state under
// idempotency and ordering guarantees. The processed-event ledger insert and
// the state mutation commit as one transaction; an event id seen before is
// answered from the ledger without reapplying, and an event whose sequence
// does not exceed the target's last applied sequence is discarded as a stale
// replay.
type Reconciler struct {
	subscriptions billing.SubscriptionRepository
	invoices      billing.InvoiceRepository
	ledger        billing.ProcessedEventRepository
	customers     account.CustomerRepository
	plans         catalog.PlanRepository
	promos        catalog.PromoCodeRepository
	grants        entitlement.GrantRepository
	limits        entitlement.UsageLimitRepository
	tx            shared.TxManager
	idempotency   shared.IdempotencyStore
	idemConfig    shared.IdempotencyConfig
	email         EmailSender
	eventBus      shared.EventPublisher
	logger        *zap.Logger
}

// ReconcilerConfig contains the collaborators of a Reconciler. Idempotency,
// Email, and EventBus are optional; everything else is required.
type ReconcilerConfig struct {
	Subscriptions     billing.SubscriptionRepository
	Invoices          billing.InvoiceRepository
	Ledger            billing.ProcessedEventRepository
	Customers         account.CustomerRepository
	Plans             catalog.PlanRepository
	Promos            catalog.PromoCodeRepository
	Grants            entitlement.GrantRepository
	Limits            entitlement.UsageLimitRepository
	TxManager         shared.TxManager
	Idempotency       shared.IdempotencyStore
	IdempotencyConfig shared.IdempotencyConfig
	Email             EmailSender
	EventBus          shared.EventPublisher
	Logger            *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idemCfg := cfg.IdempotencyConfig
	if idemCfg.TTL == 0 {
		idemCfg = shared.DefaultIdempotencyConfig()
	}
	return &Reconciler{
		subscriptions: cfg.Subscriptions,
		invoices:      cfg.Invoices,
		ledger:        cfg.Ledger,
		customers:     cfg.Customers,
		plans:         cfg.Plans,
		promos:        cfg.Promos,
		grants:        cfg.Grants,
		limits:        cfg.Limits,
		tx:            cfg.TxManager,
		idempotency:   cfg.Idempotency,
		idemConfig:    idemCfg,
		email:         cfg.Email,
		eventBus:      cfg.EventBus,
		logger:        logger,
	}
}

// Apply reconciles one provider event. Safe to call any number of times with
// the same event: replays return the originally recorded result with outcome
// already_processed. ErrStorageConflict means a concurrent apply for the same
// target won the conditional write; the caller retries the whole call.
func (r *Reconciler) Apply(ctx context.Context, event *billing.ProviderEvent) (*ReconcileResult, error) {
	if event == nil {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider event cannot be nil")
	}

	if prior, err := r.findPrior(ctx, event); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	r.logger.Info("Reconciling provider event",
		zap.String("event_id", event.ProviderEventID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("sequence", event.Sequence))

	var (
		result     *ReconcileResult
		postCommit func()
		domEvents  []shared.DomainEvent
	)
	err := r.tx.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		result, postCommit, domEvents, err = r.applyInTx(txCtx, event)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// lost the ledger-insert race to a concurrent apply of the same
			// event id; answer from the winner's entry
			if prior, ferr := r.findPrior(ctx, event); ferr == nil && prior != nil {
				return prior, nil
			}
			return nil, shared.ErrStorageConflict
		}
		return nil, err
	}

	r.markCached(ctx, result)
	if postCommit != nil {
		postCommit()
	}
	r.publish(ctx, domEvents)

	return result, nil
}

// findPrior answers replays from the cache fast-path first and falls back to
// the ledger. A cache hit skips the ledger read entirely; a cache miss or
// error is not authoritative, the ledger always decides.
func (r *Reconciler) findPrior(ctx context.Context, event *billing.ProviderEvent) (*ReconcileResult, error) {
	if cached := r.findCached(ctx, event.ProviderEventID); cached != nil {
		return cached, nil
	}

	entry, err := r.ledger.Find(ctx, event.ProviderEventID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	return &ReconcileResult{
		EventID:   entry.ProviderEventID,
		EventType: string(entry.EventType),
		Outcome:   billing.OutcomeAlreadyProcessed,
		StateHash: entry.StateHash,
	}, nil
}

// applyInTx performs the sequence gate, the typed state transition, and the
// ledger insert inside one transaction.
func (r *Reconciler) applyInTx(ctx context.Context, event *billing.ProviderEvent) (*ReconcileResult, func(), []shared.DomainEvent, error) {
	var (
		sub        *billing.Subscription
		postCommit func()
		err        error
	)

	switch payload := event.Payload.(type) {
	case billing.SubscriptionCreatedPayload:
		sub, err = r.handleSubscriptionCreated(ctx, event, payload)
	case billing.SubscriptionUpdatedPayload:
		sub, err = r.handleSubscriptionUpdated(ctx, event, payload)
	case billing.SubscriptionCanceledPayload:
		sub, postCommit, err = r.handleSubscriptionCanceled(ctx, event, payload)
	case billing.InvoicePaidPayload:
		sub, err = r.handleInvoicePaid(ctx, event, payload)
	case billing.InvoicePaymentFailedPayload:
		sub, postCommit, err = r.handleInvoicePaymentFailed(ctx, event, payload)
	case billing.RetriesExhaustedPayload:
		sub, postCommit, err = r.handleRetriesExhausted(ctx, event, payload)
	default:
		err = shared.NewDomainError("INVALID_EVENT", "Unknown provider event payload")
	}
	if err != nil {
		if errors.Is(err, errStaleSequence) {
			return r.recordStale(ctx, event, sub)
		}
		return nil, nil, nil, err
	}

	hash := billing.SubscriptionStateHash(sub)
	entry, err := billing.NewProcessedEvent(event, billing.OutcomeApplied, hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.ledger.Insert(ctx, entry); err != nil {
		return nil, nil, nil, err
	}

	var domEvents []shared.DomainEvent
	if sub != nil {
		domEvents = append(domEvents, sub.GetDomainEvents()...)
		sub.ClearDomainEvents()
	}
	return &ReconcileResult{
		EventID:   event.ProviderEventID,
		EventType: string(event.Type),
		Outcome:   billing.OutcomeApplied,
		StateHash: hash,
	}, postCommit, domEvents, nil
}

// errStaleSequence flags a sequence-gate rejection internally; it never
// leaves the reconciler.
var errStaleSequence = errors.New("stale sequence")

func (r *Reconciler) recordStale(ctx context.Context, event *billing.ProviderEvent, sub *billing.Subscription) (*ReconcileResult, func(), []shared.DomainEvent, error) {
	r.logger.Info("Discarding stale provider event",
		zap.String("event_id", event.ProviderEventID),
		zap.Int64("sequence", event.Sequence))

	entry, err := billing.NewProcessedEvent(event, billing.OutcomeStaleReplay, billing.SubscriptionStateHash(sub))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.ledger.Insert(ctx, entry); err != nil {
		return nil, nil, nil, err
	}
	return &ReconcileResult{
		EventID:   event.ProviderEventID,
		EventType: string(event.Type),
		Outcome:   billing.OutcomeStaleReplay,
		StateHash: entry.StateHash,
	}, nil, nil, nil
}

func (r *Reconciler) handleSubscriptionCreated(ctx context.Context, event *billing.ProviderEvent, payload billing.SubscriptionCreatedPayload) (*billing.Subscription, error) {
	existing, err := r.subscriptions.FindByProviderSubscriptionID(ctx, event.Provider, payload.ProviderSubscriptionID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	if existing != nil {
		// redelivered create with a new event id; gate and treat as update
		if existing.IsStaleSequence(event.Sequence) {
			return existing, errStaleSequence
		}
		if err := existing.AdvanceSequence(event.Sequence); err != nil {
			return existing, errStaleSequence
		}
		if err := r.subscriptions.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to save subscription: %w", err)
		}
		return existing, nil
	}

	customer, err := r.customers.FindByProviderID(ctx, event.Provider, payload.ProviderCustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find customer %q: %w", payload.ProviderCustomerID, err)
	}

	plan, err := r.findPlan(ctx, payload.PlanCode, payload.PlanVersion)
	if err != nil {
		return nil, err
	}

	sub, err := billing.NewSubscription(customer.ID, plan.ID, payload.PeriodStart, payload.PeriodEnd, payload.TrialEnd, event.Livemode)
	if err != nil {
		return nil, err
	}
	sub.SetProviderSubscriptionID(event.Provider, payload.ProviderSubscriptionID)
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	if err := sub.AdvanceSequence(event.Sequence); err != nil {
		return sub, errStaleSequence
	}

	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	r.logger.Info("Subscription created from provider event",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("provider_subscription_id", payload.ProviderSubscriptionID),
		zap.String("status", string(sub.Status)))
	return sub, nil
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event *billing.ProviderEvent, payload billing.SubscriptionUpdatedPayload) (*billing.Subscription, error) {
	sub, err := r.loadGatedSubscription(ctx, event, payload.ProviderSubscriptionID)
	if err != nil {
		return sub, err
	}

	if payload.CancelAtPeriodEnd != nil {
		if *payload.CancelAtPeriodEnd {
			if err := sub.RequestCancelAtPeriodEnd(); err != nil {
				return nil, err
			}
		} else {
			sub.CancelAtPeriodEnd = false
		}
	}
	if payload.PeriodStart != nil && payload.PeriodEnd != nil {
		if err := sub.RenewPeriod(*payload.PeriodStart, *payload.PeriodEnd); err != nil {
			return nil, err
		}
	}

	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return sub, nil
}

func (r *Reconciler) handleSubscriptionCanceled(ctx context.Context, event *billing.ProviderEvent, payload billing.SubscriptionCanceledPayload) (*billing.Subscription, func(), error) {
	sub, err := r.loadGatedSubscription(ctx, event, payload.ProviderSubscriptionID)
	if err != nil {
		return sub, nil, err
	}

	if err := sub.Cancel(payload.CanceledAt); err != nil {
		return nil, nil, err
	}
	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	sourceID := sub.ID.String()
	if err := r.grants.DeleteBySource(ctx, entitlement.GrantSourceSubscription, sourceID); err != nil {
		return nil, nil, fmt.Errorf("failed to revoke grants: %w", err)
	}
	if err := r.limits.DeleteBySource(ctx, sourceID); err != nil {
		return nil, nil, fmt.Errorf("failed to remove usage limits: %w", err)
	}

	r.logger.Info("Subscription canceled, entitlements revoked",
		zap.String("subscription_id", sourceID))

	postCommit := r.notificationMail(ctx, sub, "subscription_canceled")
	return sub, postCommit, nil
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event *billing.ProviderEvent, payload billing.InvoicePaidPayload) (*billing.Subscription, error) {
	sub, err := r.loadGatedSubscription(ctx, event, payload.ProviderSubscriptionID)
	if err != nil {
		return sub, err
	}

	if err := sub.Activate(); err != nil {
		return nil, err
	}
	if payload.PeriodEnd.After(sub.CurrentPeriodEnd) {
		if err := sub.RenewPeriod(payload.PeriodStart, payload.PeriodEnd); err != nil {
			return nil, err
		}
	}
	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	if err := r.upsertPaidInvoice(ctx, event, sub, payload); err != nil {
		return nil, err
	}
	if err := r.provisionEntitlements(ctx, sub); err != nil {
		return nil, err
	}
	if payload.PromoCode != "" {
		if err := r.confirmRedemption(ctx, payload.PromoCode); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Invoice paid, subscription active",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("provider_invoice_id", payload.ProviderInvoiceID))
	return sub, nil
}

func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, event *billing.ProviderEvent, payload billing.InvoicePaymentFailedPayload) (*billing.Subscription, func(), error) {
	sub, err := r.loadGatedSubscription(ctx, event, payload.ProviderSubscriptionID)
	if err != nil {
		return sub, nil, err
	}

	var postCommit func()
	if sub.CanTransitionTo(billing.SubscriptionPastDue) {
		if err := sub.MarkPastDue(); err != nil {
			return nil, nil, err
		}
		postCommit = r.notificationMail(ctx, sub, "payment_failed")
	} else {
		r.logger.Warn("Payment failed outside active state, sequence advanced without transition",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("status", string(sub.Status)),
			zap.Int("attempt", payload.AttemptCount))
	}
	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return sub, postCommit, nil
}

func (r *Reconciler) handleRetriesExhausted(ctx context.Context, event *billing.ProviderEvent, payload billing.RetriesExhaustedPayload) (*billing.Subscription, func(), error) {
	sub, err := r.loadGatedSubscription(ctx, event, payload.ProviderSubscriptionID)
	if err != nil {
		return sub, nil, err
	}

	var postCommit func()
	if sub.CanTransitionTo(billing.SubscriptionUnpaid) {
		if err := sub.MarkUnpaid(); err != nil {
			return nil, nil, err
		}
		postCommit = r.notificationMail(ctx, sub, "retries_exhausted")
	}
	if err := r.subscriptions.Save(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	if payload.ProviderInvoiceID != "" {
		inv, err := r.invoices.FindByProviderInvoiceID(ctx, event.Provider, payload.ProviderInvoiceID)
		if err == nil {
			if err := inv.MarkUncollectible(); err == nil {
				if err := r.invoices.Save(ctx, inv); err != nil {
					return nil, nil, fmt.Errorf("failed to save invoice: %w", err)
				}
			}
		} else if !errors.Is(err, shared.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to find invoice: %w", err)
		}
	}
	return sub, postCommit, nil
}

// loadGatedSubscription loads the event's target subscription and applies the
// sequence gate. Returns errStaleSequence when the event would regress state.
func (r *Reconciler) loadGatedSubscription(ctx context.Context, event *billing.ProviderEvent, providerSubID string) (*billing.Subscription, error) {
	sub, err := r.subscriptions.FindByProviderSubscriptionID(ctx, event.Provider, providerSubID)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription %q: %w", providerSubID, err)
	}
	if sub.IsStaleSequence(event.Sequence) {
		return sub, errStaleSequence
	}
	if err := sub.AdvanceSequence(event.Sequence); err != nil {
		return sub, errStaleSequence
	}
	return sub, nil
}

func (r *Reconciler) upsertPaidInvoice(ctx context.Context, event *billing.ProviderEvent, sub *billing.Subscription, payload billing.InvoicePaidPayload) error {
	inv, err := r.invoices.FindByProviderInvoiceID(ctx, event.Provider, payload.ProviderInvoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		subID := sub.ID
		inv, err = billing.NewInvoice(sub.CustomerID, &subID, payload.Currency, payload.PeriodStart, payload.PeriodEnd, event.Livemode)
		if err != nil {
			return err
		}
		inv.SetProviderInvoiceID(event.Provider, payload.ProviderInvoiceID)
		if err := inv.AddLine("Subscription period", 1, payload.AmountMinor); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("failed to find invoice: %w", err)
	}

	if inv.Status == billing.InvoicePaid {
		return nil
	}
	if err := inv.MarkPaid(payload.PaidAt); err != nil {
		return err
	}
	if err := r.invoices.Save(ctx, inv); err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

// provisionEntitlements creates or renews the grants and usage limits the
// subscription's plan defines, expiring at the current period end.
func (r *Reconciler) provisionEntitlements(ctx context.Context, sub *billing.Subscription) error {
	plan, err := r.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("failed to find plan: %w", err)
	}
	sourceID := sub.ID.String()

	existing, err := r.grants.FindBySource(ctx, entitlement.GrantSourceSubscription, sourceID)
	if err != nil {
		return fmt.Errorf("failed to load grants: %w", err)
	}
	byKey := make(map[string]*entitlement.Grant, len(existing))
	for i := range existing {
		byKey[existing[i].Key] = &existing[i]
	}

	for _, key := range plan.EntitlementKeys {
		if grant, ok := byKey[key]; ok {
			grant.Renew(sub.CurrentPeriodEnd)
			if err := r.grants.Save(ctx, grant); err != nil {
				return fmt.Errorf("failed to renew grant: %w", err)
			}
			continue
		}
		grant, err := entitlement.NewGrant(sub.CustomerID, key, entitlement.GrantSourceSubscription, sourceID)
		if err != nil {
			return err
		}
		grant.WithExpiry(sub.CurrentPeriodEnd)
		if err := r.grants.Save(ctx, grant); err != nil {
			return fmt.Errorf("failed to save grant: %w", err)
		}
	}

	for _, def := range plan.LimitDefs {
		records, err := r.limits.FindByCustomerAndKey(ctx, sub.CustomerID, def.Key)
		if err != nil {
			return fmt.Errorf("failed to load usage limits: %w", err)
		}
		provisioned := false
		for _, rec := range records {
			if rec.SourceID == sourceID {
				provisioned = true
				break
			}
		}
		if provisioned {
			continue
		}
		limit, err := entitlement.NewUsageLimit(sub.CustomerID, def.Key, def.Cap, def.ResetPeriod, sub.CurrentPeriodStart, sourceID)
		if err != nil {
			return err
		}
		if err := r.limits.Save(ctx, limit); err != nil {
			return fmt.Errorf("failed to save usage limit: %w", err)
		}
	}
	return nil
}

// confirmRedemption bumps the promo redemption counter. Running inside the
// same transaction as the ledger insert makes the increment idempotent
// against duplicate payment confirmations.
func (r *Reconciler) confirmRedemption(ctx context.Context, code string) error {
	promo, err := r.promos.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("Paid invoice references unknown promo code",
				zap.String("promo_code", code))
			return nil
		}
		return fmt.Errorf("failed to find promo code: %w", err)
	}
	if err := r.promos.IncrementRedemptions(ctx, promo.ID); err != nil {
		return fmt.Errorf("failed to record redemption: %w", err)
	}
	return nil
}

// notificationMail builds the fire-and-forget notification closure run after
// commit. Mail failures are logged, never propagated.
func (r *Reconciler) notificationMail(ctx context.Context, sub *billing.Subscription, templateKey string) func() {
	if r.email == nil {
		return nil
	}
	customer, err := r.customers.FindByID(ctx, sub.CustomerID)
	if err != nil {
		r.logger.Warn("Customer lookup for notification mail failed",
			zap.String("customer_id", sub.CustomerID.String()),
			zap.Error(err))
		return nil
	}
	recipient := customer.Email
	subID := sub.ID.String()
	return func() {
		vars := map[string]string{
			"subscription_id": subID,
			"customer_name":   customer.Name,
		}
		if err := r.email.Send(context.WithoutCancel(ctx), templateKey, recipient, vars); err != nil {
			r.logger.Error("Failed to send notification mail",
				zap.String("template", templateKey),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}
}

// findCached answers a replay from the idempotency cache. A hit reports
// already_processed regardless of the originally recorded outcome, matching
// what a ledger replay reports.
func (r *Reconciler) findCached(ctx context.Context, eventID string) *ReconcileResult {
	if r.idempotency == nil || !r.idemConfig.Enabled {
		return nil
	}
	data, err := r.idempotency.FindResult(ctx, eventID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("Idempotency cache lookup failed, falling back to ledger",
				zap.String("event_id", eventID),
				zap.Error(err))
		}
		return nil
	}
	var result ReconcileResult
	if err := json.Unmarshal(data, &result); err != nil {
		r.logger.Warn("Discarding unreadable cached result",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil
	}
	r.logger.Debug("Idempotency cache hit",
		zap.String("event_id", eventID))
	result.Outcome = billing.OutcomeAlreadyProcessed
	return &result
}

func (r *Reconciler) markCached(ctx context.Context, result *ReconcileResult) {
	if r.idempotency == nil || !r.idemConfig.Enabled {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn("Failed to serialize result for idempotency cache",
			zap.String("event_id", result.EventID),
			zap.Error(err))
		return
	}
	if _, err := r.idempotency.MarkProcessed(ctx, result.EventID, data, r.idemConfig.TTL); err != nil {
		r.logger.Warn("Failed to mark event in idempotency cache",
			zap.String("event_id", result.EventID),
			zap.Error(err))
	}
}

func (r *Reconciler) publish(ctx context.Context, events []shared.DomainEvent) {
	if r.eventBus == nil || len(events) == 0 {
		return
	}
	if err := r.eventBus.Publish(ctx, events...); err != nil {
		r.logger.Error("Failed to publish domain events", zap.Error(err))
	}
}

// findPlan resolves a plan reference from a provider payload. Version 0 means
// the payload did not carry one; the latest version wins.
func (r *Reconciler) findPlan(ctx context.Context, code string, version int) (*catalog.Plan, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider event carries no plan code")
	}
	var (
		plan *catalog.Plan
		err  error
	)
	if version > 0 {
		plan, err = r.plans.FindByCodeAndVersion(ctx, code, version)
	} else {
		plan, err = r.plans.FindLatestByCode(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan %q: %w", code, err)
	}
	return plan, nil
}

// ExpireDueCancellations cancels subscriptions flagged cancel-at-period-end
// whose period has elapsed. Invoked by a host-owned scheduled job; the engine
// has no scheduler of its own.
func (r *Reconciler) ExpireDueCancellations(ctx context.Context, sub *billing.Subscription, now time.Time) (bool, error) {
	var expired bool
	err := r.tx.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		expired, err = sub.MaybeExpire(now)
		if err != nil || !expired {
			return err
		}
		if err := r.subscriptions.Save(txCtx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		sourceID := sub.ID.String()
		if err := r.grants.DeleteBySource(txCtx, entitlement.GrantSourceSubscription, sourceID); err != nil {
			return fmt.Errorf("failed to revoke grants: %w", err)
		}
		if err := r.limits.DeleteBySource(txCtx, sourceID); err != nil {
			return fmt.Errorf("failed to remove usage limits: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		r.publish(ctx, sub.GetDomainEvents())
		sub.ClearDomainEvents()
		if post := r.notificationMail(ctx, sub, "subscription_canceled"); post != nil {
			post()
		}
	}
	return expired, nil
}
