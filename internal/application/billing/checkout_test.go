package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	promoapp "github.com/openbilling/backend/internal/application/promo"
	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

type checkoutFixture struct {
	service   *CheckoutService
	customers *fakeCustomerRepo
	plans     *fakePlanRepo
	subs      *fakeSubscriptionRepo
	promos    *fakePromoRepo
	invoices  *fakeInvoiceRepo
	payments  *fakePaymentProvider

	customer *account.Customer
	plan     *catalog.Plan
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		customers: newFakeCustomerRepo(),
		plans:     newFakePlanRepo(),
		subs:      newFakeSubscriptionRepo(),
		promos:    newFakePromoRepo(),
		invoices:  newFakeInvoiceRepo(),
		payments:  &fakePaymentProvider{},
	}

	customer, err := account.NewCustomer("cust-1", "jamie@example.com", "Jamie", true)
	require.NoError(t, err)
	customer.SetProviderID("stripe", "cus_1")
	require.NoError(t, f.customers.Save(context.Background(), customer))
	f.customer = customer

	plan, err := catalog.NewPlan("pro", "Pro", 2900, valueobject.USD, catalog.IntervalMonth)
	require.NoError(t, err)
	require.NoError(t, f.plans.Save(context.Background(), plan))
	f.plan = plan

	resolver := promoapp.NewResolver(promoapp.ResolverConfig{
		Promos:    f.promos,
		Customers: f.customers,
		Invoices:  f.invoices,
		Logger:    zap.NewNop(),
	})
	f.service = NewCheckoutService(CheckoutServiceConfig{
		Customers:     f.customers,
		Plans:         f.plans,
		Subscriptions: f.subs,
		Resolver:      resolver,
		Payments:      f.payments,
		Provider:      "stripe",
		Logger:        zap.NewNop(),
	})
	return f
}

func TestCheckoutPreview(t *testing.T) {
	ctx := context.Background()

	t.Run("prices a plain subscription", func(t *testing.T) {
		f := newCheckoutFixture(t)

		quote, err := f.service.Preview(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
			Quantity:   2,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(5800), quote.SubtotalMinor)
		assert.Equal(t, int64(5800), quote.TotalMinor)
		assert.Equal(t, int64(2), quote.Quantity)
		assert.Equal(t, 1, quote.PlanVersion)
	})

	t.Run("applies a resolved promo", func(t *testing.T) {
		f := newCheckoutFixture(t)
		promo, err := catalog.NewPercentPromoCode("launch20", 20)
		require.NoError(t, err)
		require.NoError(t, f.promos.Save(ctx, promo))

		quote, err := f.service.Preview(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
			PromoCode:  "LAUNCH20",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(2900), quote.SubtotalMinor)
		assert.Equal(t, int64(580), quote.DiscountMinor)
		assert.Equal(t, int64(2320), quote.TotalMinor)
	})

	t.Run("promo failure propagates, never silently drops", func(t *testing.T) {
		f := newCheckoutFixture(t)

		_, err := f.service.Preview(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
			PromoCode:  "NOPE",
		})

		assert.ErrorIs(t, err, shared.ErrPromoInvalid)
	})

	t.Run("rejects inactive and unknown plans", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.plan.Deactivate()
		require.NoError(t, f.plans.Save(ctx, f.plan))

		_, err := f.service.Preview(ctx, CheckoutRequest{CustomerID: f.customer.ID, PlanCode: "pro"})
		assert.Error(t, err)

		_, err = f.service.Preview(ctx, CheckoutRequest{CustomerID: f.customer.ID, PlanCode: "ghost"})
		assert.Error(t, err)
	})

	t.Run("prorates a plan change", func(t *testing.T) {
		f := newCheckoutFixture(t)

		basic, err := catalog.NewPlan("basic", "Basic", 1000, valueobject.USD, catalog.IntervalMonth)
		require.NoError(t, err)
		require.NoError(t, f.plans.Save(ctx, basic))

		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 30)
		sub, err := billing.NewSubscription(f.customer.ID, basic.ID, start, end, nil, true)
		require.NoError(t, err)
		sub.SetProviderSubscriptionID("stripe", "sub_1")
		require.NoError(t, f.subs.Save(ctx, sub))

		quote, err := f.service.Preview(ctx, CheckoutRequest{
			CustomerID:     f.customer.ID,
			PlanCode:       "pro",
			SubscriptionID: &sub.ID,
			ChangeAt:       start.AddDate(0, 0, 15),
		})

		require.NoError(t, err)
		assert.True(t, quote.ExistingPlanCut)
		assert.Equal(t, int64(500), quote.Proration.CreditMinor)
		assert.Equal(t, int64(1450), quote.Proration.ChargeMinor)
		assert.Equal(t, int64(950), quote.TotalMinor)
	})

	t.Run("refuses a plan change on someone else's subscription", func(t *testing.T) {
		f := newCheckoutFixture(t)
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		sub, err := billing.NewSubscription(f.customer.ID, f.plan.ID, start, start.AddDate(0, 1, 0), nil, true)
		require.NoError(t, err)
		require.NoError(t, f.subs.Save(ctx, sub))

		other, err := account.NewCustomer("cust-2", "sam@example.com", "Sam", true)
		require.NoError(t, err)
		require.NoError(t, f.customers.Save(ctx, other))

		_, err = f.service.Preview(ctx, CheckoutRequest{
			CustomerID:     other.ID,
			PlanCode:       "pro",
			SubscriptionID: &sub.ID,
			ChangeAt:       start.AddDate(0, 0, 15),
		})
		assert.Error(t, err)
	})
}

func TestCheckoutExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the subscription to the provider with an idempotency key", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.payments.nextSubID = "sub_new"

		quote, providerSubID, err := f.service.Execute(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
		})

		require.NoError(t, err)
		assert.Equal(t, "sub_new", providerSubID)
		assert.Equal(t, int64(2900), quote.TotalMinor)

		require.Len(t, f.payments.subRequests, 1)
		req := f.payments.subRequests[0]
		assert.Equal(t, "cus_1", req.ProviderCustomerID)
		assert.Equal(t, "pro", req.PlanCode)
		assert.NotEmpty(t, req.IdempotencyKey)

		// a retried Execute reuses the same key
		_, _, err = f.service.Execute(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
		})
		require.NoError(t, err)
		assert.Equal(t, req.IdempotencyKey, f.payments.subRequests[1].IdempotencyKey)
	})

	t.Run("provider failure maps to AdapterUnavailable", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.payments.fail = true

		_, _, err := f.service.Execute(ctx, CheckoutRequest{
			CustomerID: f.customer.ID,
			PlanCode:   "pro",
		})
		assert.ErrorIs(t, err, shared.ErrAdapterUnavailable)
	})

	t.Run("requires a provider-linked customer", func(t *testing.T) {
		f := newCheckoutFixture(t)
		unlinked, err := account.NewCustomer("cust-3", "kit@example.com", "Kit", true)
		require.NoError(t, err)
		require.NoError(t, f.customers.Save(ctx, unlinked))

		_, _, err = f.service.Execute(ctx, CheckoutRequest{
			CustomerID: unlinked.ID,
			PlanCode:   "pro",
		})
		assert.Error(t, err)
	})
}
