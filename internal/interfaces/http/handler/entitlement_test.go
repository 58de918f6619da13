package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
)

type fakeEvaluator struct {
	entitled    bool
	checkResult entitlement.LimitCheckResult
	recordErr   error
	recorded    int64
}

func (f *fakeEvaluator) HasEntitlement(ctx context.Context, customerID uuid.UUID, key string) (bool, error) {
	return f.entitled, nil
}

func (f *fakeEvaluator) CheckLimit(ctx context.Context, customerID uuid.UUID, limitKey string, requestedAmount int64) (entitlement.LimitCheckResult, error) {
	return f.checkResult, nil
}

func (f *fakeEvaluator) RecordUsage(ctx context.Context, customerID uuid.UUID, limitKey string, amount int64) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded += amount
	return nil
}

func entitlementEngine(evaluator EntitlementEvaluator) *gin.Engine {
	engine := gin.New()
	NewEntitlementHandler(evaluator).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestCheckEntitlement(t *testing.T) {
	engine := entitlementEngine(&fakeEvaluator{entitled: true})
	customerID := uuid.New()

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/customers/%s/entitlements/api_access", customerID), nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entitled":true`)
}

func TestCheckEntitlement_InvalidCustomerID(t *testing.T) {
	engine := entitlementEngine(&fakeEvaluator{})

	req := httptest.NewRequest("GET", "/api/v1/customers/not-a-uuid/entitlements/api_access", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckLimit(t *testing.T) {
	engine := entitlementEngine(&fakeEvaluator{checkResult: entitlement.LimitCheckResult{
		Allowed:   true,
		LimitKey:  "api_calls",
		Consumed:  40,
		Cap:       150,
		Remaining: 110,
	}})
	customerID := uuid.New()

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/customers/%s/limits/api_calls?amount=10", customerID), nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)
	assert.Contains(t, w.Body.String(), `"remaining":110`)
}

func TestRecordUsage(t *testing.T) {
	evaluator := &fakeEvaluator{}
	engine := entitlementEngine(evaluator)
	customerID := uuid.New()

	req := httptest.NewRequest("POST",
		fmt.Sprintf("/api/v1/customers/%s/limits/api_calls/usage", customerID),
		strings.NewReader(`{"amount": 5}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(5), evaluator.recorded)
}

func TestRecordUsage_LimitExceeded(t *testing.T) {
	engine := entitlementEngine(&fakeEvaluator{recordErr: shared.ErrLimitExceeded})
	customerID := uuid.New()

	req := httptest.NewRequest("POST",
		fmt.Sprintf("/api/v1/customers/%s/limits/api_calls/usage", customerID),
		strings.NewReader(`{"amount": 500}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "LIMIT_EXCEEDED")
}
