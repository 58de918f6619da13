package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
)

// In-memory fakes backing the reconciler and checkout scenarios. They mirror
// real storage semantics where the reconciler depends on them: ErrNotFound on
// misses, ErrAlreadyExists on duplicate ledger inserts.

type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*billing.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uuid.UUID]*billing.Subscription)}
}

func (f *fakeSubscriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		clone := *sub
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSubscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, provider, providerSubscriptionID string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID {
			clone := *sub
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSubscriptionRepo) FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Subscription
	for _, sub := range f.subs {
		if sub.CustomerID == customerID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) FindDueCancellations(ctx context.Context, now time.Time, limit int) ([]billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Subscription
	for _, sub := range f.subs {
		if sub.CancelAtPeriodEnd && !sub.Status.IsTerminal() && !sub.CurrentPeriodEnd.After(now) {
			out = append(out, *sub)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) Save(ctx context.Context, sub *billing.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *sub
	f.subs[sub.ID] = &clone
	return nil
}

func (f *fakeSubscriptionRepo) ExistsByPlan(ctx context.Context, planID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.PlanID == planID {
			return true, nil
		}
	}
	return false, nil
}

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*billing.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[uuid.UUID]*billing.Invoice)}
}

func (f *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[id]; ok {
		clone := *inv
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeInvoiceRepo) FindByProviderInvoiceID(ctx context.Context, provider, providerInvoiceID string) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.ProviderInvoiceID == providerInvoiceID {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeInvoiceRepo) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range f.invoices {
		if inv.SubscriptionID != nil && *inv.SubscriptionID == subscriptionID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) Save(ctx context.Context, inv *billing.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *inv
	f.invoices[inv.ID] = &clone
	return nil
}

func (f *fakeInvoiceRepo) CountPaidByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, inv := range f.invoices {
		if inv.CustomerID == customerID && inv.Status == billing.InvoicePaid {
			n++
		}
	}
	return n, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*billing.ProcessedEvent
	finds   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*billing.ProcessedEvent)}
}

func (f *fakeLedger) Find(ctx context.Context, providerEventID string) (*billing.ProcessedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if entry, ok := f.entries[providerEventID]; ok {
		clone := *entry
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeLedger) findCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

func (f *fakeLedger) Insert(ctx context.Context, entry *billing.ProcessedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[entry.ProviderEventID]; ok {
		return shared.ErrAlreadyExists
	}
	clone := *entry
	f.entries[entry.ProviderEventID] = &clone
	return nil
}

type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*account.Customer
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[uuid.UUID]*account.Customer)}
}

func (f *fakeCustomerRepo) FindByID(ctx context.Context, id uuid.UUID) (*account.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeCustomerRepo) FindByExternalID(ctx context.Context, externalID string, livemode bool) (*account.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.ExternalID == externalID && c.Livemode == livemode {
			clone := *c
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeCustomerRepo) FindByProviderID(ctx context.Context, provider, providerCustomerID string) (*account.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if id, ok := c.ProviderID(provider); ok && id == providerCustomerID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeCustomerRepo) FindAll(ctx context.Context, filter shared.Filter) ([]account.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []account.Customer
	for _, c := range f.customers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCustomerRepo) Save(ctx context.Context, customer *account.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *customer
	f.customers[customer.ID] = &clone
	return nil
}

func (f *fakeCustomerRepo) ExistsByExternalID(ctx context.Context, externalID string, livemode bool) (bool, error) {
	_, err := f.FindByExternalID(ctx, externalID, livemode)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (f *fakeCustomerRepo) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.customers)), nil
}

type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*catalog.Plan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[uuid.UUID]*catalog.Plan)}
}

func (f *fakePlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.plans[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakePlanRepo) FindByCodeAndVersion(ctx context.Context, code string, version int) (*catalog.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans {
		if p.Code == code && p.PlanVersion == version {
			clone := *p
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakePlanRepo) FindLatestByCode(ctx context.Context, code string) (*catalog.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *catalog.Plan
	for _, p := range f.plans {
		if p.Code == code && (latest == nil || p.PlanVersion > latest.PlanVersion) {
			latest = p
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakePlanRepo) FindActive(ctx context.Context, filter shared.Filter) ([]catalog.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Plan
	for _, p := range f.plans {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePlanRepo) Save(ctx context.Context, plan *catalog.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *plan
	f.plans[plan.ID] = &clone
	return nil
}

func (f *fakePlanRepo) HasSubscriptions(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

type fakePromoRepo struct {
	mu     sync.Mutex
	promos map[uuid.UUID]*catalog.PromoCode
}

func newFakePromoRepo() *fakePromoRepo {
	return &fakePromoRepo{promos: make(map[uuid.UUID]*catalog.PromoCode)}
}

func (f *fakePromoRepo) FindByID(ctx context.Context, id uuid.UUID) (*catalog.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.promos[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakePromoRepo) FindByCode(ctx context.Context, code string) (*catalog.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.promos {
		if p.Code == code {
			clone := *p
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakePromoRepo) Save(ctx context.Context, promo *catalog.PromoCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *promo
	f.promos[promo.ID] = &clone
	return nil
}

func (f *fakePromoRepo) IncrementRedemptions(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[id]
	if !ok {
		return shared.ErrNotFound
	}
	if p.MaxRedemptions > 0 && p.TimesRedeemed >= p.MaxRedemptions {
		return shared.ErrPromoInvalid
	}
	p.TimesRedeemed++
	return nil
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[uuid.UUID]*entitlement.Grant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[uuid.UUID]*entitlement.Grant)}
}

func (f *fakeGrantRepo) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grants[id]; ok {
		clone := *g
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeGrantRepo) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]entitlement.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entitlement.Grant
	for _, g := range f.grants {
		if g.CustomerID == customerID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGrantRepo) FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, key string) ([]entitlement.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entitlement.Grant
	for _, g := range f.grants {
		if g.CustomerID == customerID && g.Key == key {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGrantRepo) FindBySource(ctx context.Context, source entitlement.GrantSource, sourceID string) ([]entitlement.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entitlement.Grant
	for _, g := range f.grants {
		if g.Source == source && g.SourceID == sourceID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGrantRepo) Save(ctx context.Context, grant *entitlement.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *grant
	f.grants[grant.ID] = &clone
	return nil
}

func (f *fakeGrantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants, id)
	return nil
}

func (f *fakeGrantRepo) DeleteBySource(ctx context.Context, source entitlement.GrantSource, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, g := range f.grants {
		if g.Source == source && g.SourceID == sourceID {
			delete(f.grants, id)
		}
	}
	return nil
}

type fakeLimitRepo struct {
	mu     sync.Mutex
	limits map[uuid.UUID]*entitlement.UsageLimit
}

func newFakeLimitRepo() *fakeLimitRepo {
	return &fakeLimitRepo{limits: make(map[uuid.UUID]*entitlement.UsageLimit)}
}

func (f *fakeLimitRepo) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.UsageLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limits[id]; ok {
		clone := *l
		return &clone, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeLimitRepo) FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, limitKey string) ([]entitlement.UsageLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entitlement.UsageLimit
	for _, l := range f.limits {
		if l.CustomerID == customerID && l.LimitKey == limitKey {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeLimitRepo) Save(ctx context.Context, limit *entitlement.UsageLimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *limit
	f.limits[limit.ID] = &clone
	return nil
}

func (f *fakeLimitRepo) IncrementConsumed(ctx context.Context, id uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[id]
	if !ok {
		return shared.ErrNotFound
	}
	l.Consumed += amount
	return nil
}

func (f *fakeLimitRepo) DeleteBySource(ctx context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, l := range f.limits {
		if l.SourceID == sourceID {
			delete(f.limits, id)
		}
	}
	return nil
}

type fakeEmailSender struct {
	mu    sync.Mutex
	sent  []sentMail
	fail  bool
	calls int
}

type sentMail struct {
	template  string
	recipient string
	vars      map[string]string
}

func (f *fakeEmailSender) Send(ctx context.Context, templateKey, recipient string, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return shared.ErrAdapterUnavailable
	}
	f.sent = append(f.sent, sentMail{template: templateKey, recipient: recipient, vars: vars})
	return nil
}

type fakePaymentProvider struct {
	mu          sync.Mutex
	charges     []ChargeRequest
	subRequests []SubscriptionRequest
	nextSubID   string
	fail        bool
}

func (f *fakePaymentProvider) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", shared.ErrAdapterUnavailable
	}
	f.charges = append(f.charges, req)
	return "ch_" + uuid.NewString()[:8], nil
}

func (f *fakePaymentProvider) CreateOrUpdateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", shared.ErrAdapterUnavailable
	}
	f.subRequests = append(f.subRequests, req)
	if f.nextSubID != "" {
		return f.nextSubID, nil
	}
	return "sub_" + uuid.NewString()[:8], nil
}

func (f *fakePaymentProvider) VerifyWebhook(payload []byte, signatureHeader string) (*billing.ProviderEvent, error) {
	return nil, shared.ErrSignatureInvalid
}

type fakeIdempotencyStore struct {
	mu      sync.Mutex
	results map[string][]byte
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{results: make(map[string][]byte)}
}

func (s *fakeIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, result []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[eventID]; ok {
		return false, nil
	}
	s.results[eventID] = append([]byte(nil), result...)
	return true, nil
}

func (s *fakeIdempotencyStore) FindResult(ctx context.Context, eventID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.results[eventID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }
