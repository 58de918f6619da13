package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbilling "github.com/openbilling/backend/internal/application/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/interfaces/http/middleware"
)

type fakeCheckout struct {
	previewQuote *appbilling.Quote
	previewErr   error
	executeQuote *appbilling.Quote
	executeSubID string
	executeErr   error
	lastRequest  appbilling.CheckoutRequest
}

func (f *fakeCheckout) Preview(_ context.Context, req appbilling.CheckoutRequest) (*appbilling.Quote, error) {
	f.lastRequest = req
	return f.previewQuote, f.previewErr
}

func (f *fakeCheckout) Execute(_ context.Context, req appbilling.CheckoutRequest) (*appbilling.Quote, string, error) {
	f.lastRequest = req
	return f.executeQuote, f.executeSubID, f.executeErr
}

func newCheckoutRouter(svc CheckoutService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
	router := gin.New()
	h := NewCheckoutHandler(svc)
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCheckoutPreviewEndpoint(t *testing.T) {
	quote := &appbilling.Quote{
		PlanCode:      "pro",
		PlanVersion:   2,
		Quantity:      1,
		SubtotalMinor: 2900,
		TotalMinor:    2900,
		CurrencyCode:  "USD",
	}
	svc := &fakeCheckout{previewQuote: quote}
	router := newCheckoutRouter(svc)

	t.Run("prices a checkout", func(t *testing.T) {
		w := postJSON(router, "/api/v1/checkout/preview",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61", "plan_code": "pro", "plan_version": 2}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total_minor":2900`)
		assert.Equal(t, "pro", svc.lastRequest.PlanCode)
		assert.Equal(t, 2, svc.lastRequest.PlanVersion)
	})

	t.Run("rejects a missing plan code", func(t *testing.T) {
		w := postJSON(router, "/api/v1/checkout/preview",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "plan_code")
	})

	t.Run("maps a promo failure to 422", func(t *testing.T) {
		failing := &fakeCheckout{previewErr: shared.ErrPromoInvalid}
		w := postJSON(newCheckoutRouter(failing), "/api/v1/checkout/preview",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61", "plan_code": "pro"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "PROMO_INVALID")
	})
}

func TestCheckoutExecuteEndpoint(t *testing.T) {
	quote := &appbilling.Quote{PlanCode: "pro", PlanVersion: 1, TotalMinor: 2900, CurrencyCode: "USD"}

	t.Run("returns the provider subscription id", func(t *testing.T) {
		svc := &fakeCheckout{executeQuote: quote, executeSubID: "sub_123"}
		w := postJSON(newCheckoutRouter(svc), "/api/v1/checkout",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61", "plan_code": "pro"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"provider_subscription_id":"sub_123"`)
	})

	t.Run("maps a provider outage to 502", func(t *testing.T) {
		svc := &fakeCheckout{executeErr: shared.ErrAdapterUnavailable}
		w := postJSON(newCheckoutRouter(svc), "/api/v1/checkout",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61", "plan_code": "pro"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), "ADAPTER_UNAVAILABLE")
	})

	t.Run("rejects a malformed subscription id", func(t *testing.T) {
		svc := &fakeCheckout{executeQuote: quote}
		w := postJSON(newCheckoutRouter(svc), "/api/v1/checkout",
			`{"customer_id": "7d3f9a14-9a2b-4a6e-b1c2-0f4a8c2d5e61", "plan_code": "pro", "subscription_id": "not-a-uuid"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
