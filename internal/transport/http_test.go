package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/checkout-service/internal/auth"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	"github.com/vasiliy-maslov/checkout-service/internal/checkout"
	"github.com/vasiliy-maslov/checkout-service/internal/metrics"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// countOnly отвечает на Count; остальное паникует через nil-встраивание.
type countOnly struct {
	cart.Service
	count int
}

func (c countOnly) Count(context.Context, int64) (int, error) { return c.count, nil }

type noCheckout struct{}

func (noCheckout) CreateOrder(context.Context, checkout.Request) (*order.Order, error) {
	return nil, errors.New("not wired")
}

func newTestRouter(t *testing.T, ping error) (http.Handler, *auth.JWTVerifier) {
	t.Helper()
	verifier := auth.NewJWTVerifier("transport-test-secret")
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Carts:    countOnly{count: 3},
		Checkout: noCheckout{},
		Verifier: verifier,
		DB:       pingerFunc(func(context.Context) error { return ping }),
		Metrics:  metrics.NewServerMetrics(reg, "checkout-test"),
		Gatherer: reg,
	}), verifier
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		wantStatus int
	}{
		{name: "database_up", wantStatus: http.StatusOK},
		{name: "database_down", ping: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.ping)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRouter_APIRequiresToken(t *testing.T) {
	router, verifier := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cart/count", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":401`)

	token, err := verifier.Issue(5, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/cart/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"code":200,"message":"success","data":{"count":3}}`, rr.Body.String())
}

func TestRouter_MetricsByRoutePattern(t *testing.T) {
	router, verifier := newTestRouter(t, nil)
	token, err := verifier.Issue(5, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/cart/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `handler="/api/cart/count"`), "requests are labelled by route pattern")
}
