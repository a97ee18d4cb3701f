package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/surajsub/deployassist/models"
)

const defaultPriceCents = 999

var DefaultWebhookEvents = []string{
	"payment_intent.succeeded",
	"payment_intent.payment_failed",
	"customer.subscription.created",
	"customer.subscription.updated",
	"customer.subscription.deleted",
	"invoice.payment_succeeded",
	"invoice.payment_failed",
	"checkout.session.completed",
}

// StripeExecutor creates catalog products and the webhook endpoint.
type StripeExecutor struct {
	*ExecutorBase
	api *client.API
}

// NewStripeExecutor builds an executor for the given secret key. A nil
// backends value uses Stripe's default API backends.
func NewStripeExecutor(creds models.ProviderCredentials, logger *logrus.Logger, backends *stripe.Backends) (*StripeExecutor, error) {
	if creds.APIKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	api := &client.API{}
	api.Init(creds.APIKey, backends)
	return &StripeExecutor{
		ExecutorBase: NewExecutorBase(STRIPE, creds, []string{CreateProducts, CreateWebhookEndpoint}, logger),
		api:          api,
	}, nil
}

func (e *StripeExecutor) Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	if err := e.ValidateOperation(req.Operation); err != nil {
		return models.Failed(err.Error(), "unsupported_operation")
	}
	switch req.Operation {
	case CreateWebhookEndpoint:
		return e.createWebhookEndpoint(ctx, req)
	default:
		return e.createProducts(ctx, req)
	}
}

func idempotencyKey(base string, parts ...string) *string {
	if base == "" {
		return nil
	}
	return stripe.String(strings.Join(append([]string{base}, parts...), ":"))
}

func (e *StripeExecutor) createProducts(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	names := stringSliceParam(req.Params, "product_names")
	if len(names) == 0 {
		return models.Failed("no product names provided", "missing_parameter")
	}
	currency := strings.ToLower(stringParam(req.Params, "currency", "usd"))
	oneTime := stringParam(req.Params, "price_type", "recurring") == "one_time"

	products := make([]any, 0, len(names))
	for i, name := range names {
		productParams := &stripe.ProductParams{Name: stripe.String(name)}
		productParams.Context = ctx
		productParams.IdempotencyKey = idempotencyKey(req.IdempotencyKey, "product", fmt.Sprint(i))
		product, err := e.api.Products.New(productParams)
		if err != nil {
			return stripeFailure(fmt.Sprintf("create product %q", name), err)
		}

		priceParams := &stripe.PriceParams{
			Product:    stripe.String(product.ID),
			UnitAmount: stripe.Int64(defaultPriceCents),
			Currency:   stripe.String(currency),
		}
		if !oneTime {
			priceParams.Recurring = &stripe.PriceRecurringParams{Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth))}
		}
		priceParams.Context = ctx
		priceParams.IdempotencyKey = idempotencyKey(req.IdempotencyKey, "price", fmt.Sprint(i))
		price, err := e.api.Prices.New(priceParams)
		if err != nil {
			return stripeFailure(fmt.Sprintf("create price for %q", name), err)
		}

		products = append(products, map[string]any{
			"name":       name,
			"product_id": product.ID,
			"price_id":   price.ID,
			"amount":     defaultPriceCents,
			"currency":   currency,
			"recurring":  !oneTime,
		})
	}

	e.log(req).WithField("count", len(products)).Info("Created Stripe products")
	return models.Succeeded(map[string]any{"products": products})
}

func (e *StripeExecutor) createWebhookEndpoint(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	url := stringParam(req.Params, "webhook_url", "")
	if url == "" {
		return models.Failed("a webhook url is required", "missing_parameter")
	}
	events := stringSliceParam(req.Params, "events")
	if len(events) == 0 {
		events = DefaultWebhookEvents
	}

	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(url),
		EnabledEvents: stripe.StringSlice(events),
	}
	params.Context = ctx
	params.IdempotencyKey = idempotencyKey(req.IdempotencyKey, "webhook")
	endpoint, err := e.api.WebhookEndpoints.New(params)
	if err != nil {
		return stripeFailure("create webhook endpoint", err)
	}

	e.log(req).WithField("webhook_endpoint", endpoint.ID).Info("Created Stripe webhook endpoint")
	return models.Succeeded(
		map[string]any{
			"webhook_endpoint_id": endpoint.ID,
			"url":                 url,
			"events":              events,
		},
		models.SecretOutput{
			Service:        models.ServiceStripe,
			CredentialType: models.CredentialWebhookSecret,
			Value:          endpoint.Secret,
			Identifier:     endpoint.ID,
		},
	)
}

func stripeFailure(action string, err error) models.ProviderResult {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return models.Failed(fmt.Sprintf("%s: %s", action, stripeErr.Msg), code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Failed(action+": timed out", "timeout")
	}
	return models.Failed(fmt.Sprintf("%s: %v", action, err), "")
}
