package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

const testWebhookSecret = "whsec_test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) Config {
	return Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		PriceAnnual:   "price_annual",
		PriceWeekly:   "price_weekly",
		TrialDays:     7,
		BaseURL:       baseURL,
	}
}

func TestPriceMapping(t *testing.T) {
	s := New(testConfig(""), nil, discardLogger())

	price, err := s.PriceFor(domain.PlanWeekly)
	require.NoError(t, err)
	assert.Equal(t, "price_weekly", price)

	_, err = s.PriceFor("monthly")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	plan, ok := s.PlanForPrice("price_annual")
	assert.True(t, ok)
	assert.Equal(t, domain.PlanAnnual, plan)

	_, ok = s.PlanForPrice("price_other")
	assert.False(t, ok)

	cfg := testConfig("")
	cfg.PriceWeekly = ""
	_, err = New(cfg, nil, discardLogger()).PriceFor(domain.PlanWeekly)
	assert.ErrorIs(t, err, ErrPriceNotConfigured)
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_annual", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "42", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "7", r.PostForm.Get("subscription_data[trial_period_days]"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "annual", r.PostForm.Get("metadata[plan]"))
		assert.Equal(t, "alreadydone://subscription/success", r.PostForm.Get("success_url"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), srv.Client(), discardLogger())
	session, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{
		UserID:     42,
		Plan:       domain.PlanAnnual,
		SuccessURL: "alreadydone://subscription/success",
		CancelURL:  "alreadydone://subscription/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
}

func TestGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"object": "subscription",
			"status": "trialing",
			"customer": "cus_9",
			"trial_end": 1735689600,
			"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item", "price": {"id": "price_weekly", "object": "price"}}]}
		}`))
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), srv.Client(), discardLogger())
	sub, err := s.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrialing, sub.Status)
	assert.Equal(t, "cus_9", sub.CustomerID)
	assert.Equal(t, "price_weekly", sub.PriceID)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *sub.TrialEnd)
}

func TestNotConfigured(t *testing.T) {
	s := New(Config{}, nil, discardLogger())
	assert.False(t, s.Configured())

	_, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{UserID: 1, Plan: domain.PlanAnnual})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = s.ParseEvent([]byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}

// signed builds a payload and Stripe-Signature header the way Stripe does.
func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestParseEvent(t *testing.T) {
	s := New(testConfig(""), nil, discardLogger())

	t.Run("checkout completed", func(t *testing.T) {
		payload, sig := signed(t, `{
			"id": "evt_1", "object": "event", "type": "checkout.session.completed",
			"data": {"object": {"id": "cs_1", "object": "checkout.session", "client_reference_id": "42", "customer": "cus_9", "subscription": "sub_1"}}
		}`)
		event, err := s.ParseEvent(payload, sig)
		require.NoError(t, err)
		assert.Equal(t, EventCheckoutCompleted, event.Type)
		require.NotNil(t, event.Checkout)
		assert.Equal(t, "42", event.Checkout.ClientReferenceID)
		assert.Equal(t, "cus_9", event.Checkout.CustomerID)
		assert.Equal(t, "sub_1", event.Checkout.SubscriptionID)
	})

	t.Run("subscription deleted", func(t *testing.T) {
		payload, sig := signed(t, `{
			"id": "evt_2", "object": "event", "type": "customer.subscription.deleted",
			"data": {"object": {"id": "sub_1", "object": "subscription", "status": "canceled"}}
		}`)
		event, err := s.ParseEvent(payload, sig)
		require.NoError(t, err)
		require.NotNil(t, event.Subscription)
		assert.Equal(t, "sub_1", event.Subscription.ID)
		assert.Equal(t, domain.StatusCanceled, event.Subscription.Status)
	})

	t.Run("unhandled type carries no payload", func(t *testing.T) {
		payload, sig := signed(t, `{"id": "evt_3", "object": "event", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`)
		event, err := s.ParseEvent(payload, sig)
		require.NoError(t, err)
		assert.Nil(t, event.Checkout)
		assert.Nil(t, event.Subscription)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload, _ := signed(t, `{"id": "evt_4", "object": "event", "type": "invoice.paid"}`)
		_, err := s.ParseEvent(payload, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}
