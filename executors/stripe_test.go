package executors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/surajsub/deployassist/models"
)

type stripeCall struct {
	path           string
	idempotencyKey string
	form           map[string][]string
}

func testStripeExecutor(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*StripeExecutor, *[]stripeCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []stripeCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		calls = append(calls, stripeCall{path: r.URL.Path, idempotencyKey: r.Header.Get("Idempotency-Key"), form: r.PostForm})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		HTTPClient:        server.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	e, err := NewStripeExecutor(models.ProviderCredentials{APIKey: "sk_test_123"}, quietLogger(), &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	require.NoError(t, err)
	return e, &calls
}

func TestStripeCreatesProductsAndPrices(t *testing.T) {
	e, calls := testStripeExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/products"):
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "prod_" + r.PostForm.Get("name"), "object": "product"})
		case strings.HasSuffix(r.URL.Path, "/prices"):
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "price_" + r.PostForm.Get("product"), "object": "price"})
		}
	})

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation:      CreateProducts,
		Params:         map[string]any{"product_names": []any{"Basic", "Pro"}, "price_type": "recurring"},
		IdempotencyKey: "cfg-1:create_products",
	})

	require.True(t, res.Success, res.Error)
	products := res.Fields["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "prod_Basic", first["product_id"])
	assert.Equal(t, "price_prod_Basic", first["price_id"])

	require.Len(t, *calls, 4)
	assert.Equal(t, "cfg-1:create_products:product:0", (*calls)[0].idempotencyKey)
	assert.Equal(t, "month", (*calls)[1].form["recurring[interval]"][0])
	assert.Equal(t, "999", (*calls)[1].form["unit_amount"][0])
}

func TestStripeOneTimePriceHasNoInterval(t *testing.T) {
	e, calls := testStripeExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "obj_1"})
	})

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateProducts,
		Params:    map[string]any{"product_names": "Lifetime", "price_type": "one_time"},
	})
	require.True(t, res.Success, res.Error)
	require.Len(t, *calls, 2)
	assert.NotContains(t, (*calls)[1].form, "recurring[interval]")
}

func TestStripeWebhookSecretGoesToSecrets(t *testing.T) {
	e, calls := testStripeExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "we_1234567890abcd",
			"object": "webhook_endpoint",
			"secret": "whsec_supersecret",
		})
	})

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateWebhookEndpoint,
		Params:    map[string]any{"webhook_url": "https://shop.test/webhooks/stripe"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "we_1234567890abcd", res.Fields["webhook_endpoint_id"])
	assert.Equal(t, DefaultWebhookEvents, res.Fields["events"])
	require.Len(t, res.Secrets, 1)
	assert.Equal(t, "whsec_supersecret", res.Secrets[0].Value)
	for _, v := range res.Payload() {
		assert.NotEqual(t, "whsec_supersecret", v)
	}
	assert.Len(t, (*calls)[0].form["enabled_events[]"], len(DefaultWebhookEvents))
}

func TestStripeErrorIsNormalized(t *testing.T) {
	e, _ := testStripeExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "code": "api_key_expired", "message": "Expired API Key provided"},
		})
	})

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateProducts,
		Params:    map[string]any{"product_names": []any{"Basic"}},
	})
	assert.False(t, res.Success)
	assert.Equal(t, "api_key_expired", res.ErrorCode)
	assert.Contains(t, res.Error, "Expired API Key")
}

func TestStripeRequiresKey(t *testing.T) {
	_, err := NewStripeExecutor(models.ProviderCredentials{}, quietLogger(), nil)
	assert.Error(t, err)
}
