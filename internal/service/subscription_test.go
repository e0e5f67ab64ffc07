package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

type mockGateway struct {
	mock.Mock
	configured bool
}

func (m *mockGateway) Configured() bool { return m.configured }

func (m *mockGateway) PlanForPrice(priceID string) (domain.Plan, bool) {
	switch priceID {
	case "price_annual":
		return domain.PlanAnnual, true
	case "price_weekly":
		return domain.PlanWeekly, true
	}
	return "", false
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, p)
	session, _ := args.Get(0).(*billing.CheckoutSession)
	return session, args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*billing.Subscription)
	return sub, args.Error(1)
}

func (m *mockGateway) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	event, _ := args.Get(0).(*billing.Event)
	return event, args.Error(1)
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		UserID:     42,
		Plan:       "annual",
		SuccessURL: "alreadydone://subscription/success",
		CancelURL:  "alreadydone://subscription/cancel",
	}
}

func TestSubscriptionService_IsActive(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, &domain.User{ID: 1})
	createUser(t, s, &domain.User{ID: 2, Subscription: domain.Subscription{Status: domain.StatusTrialing}})
	createUser(t, s, &domain.User{ID: 3, Subscription: domain.Subscription{Status: domain.StatusCanceled}})
	svc := NewSubscriptionService(s, &mockGateway{}, discardLogger())
	ctx := context.Background()

	for id, want := range map[int64]bool{1: false, 2: true, 3: false} {
		got, err := svc.IsActive(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "user %d", id)
	}

	got, err := svc.IsActive(ctx, 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, got)
}

func TestSubscriptionService_CreateCheckout(t *testing.T) {
	t.Run("unknown plan is rejected before Stripe", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())

		req := checkoutRequest()
		req.Plan = "monthly"
		_, err := svc.CreateCheckout(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("not configured", func(t *testing.T) {
		svc := NewSubscriptionService(newTestStore(t), &mockGateway{}, discardLogger())
		_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, apperr.ErrNotConfigured)
	})

	t.Run("missing price", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, billing.ErrPriceNotConfigured)
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())

		_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, apperr.ErrNotConfigured)
	})

	t.Run("prefills stored email", func(t *testing.T) {
		s := newTestStore(t)
		createUser(t, s, &domain.User{ID: 42, Email: "jordan@example.com"})

		gw := &mockGateway{configured: true}
		gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
			return p.UserID == 42 && p.Plan == domain.PlanAnnual && p.CustomerEmail == "jordan@example.com"
		})).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil)
		svc := NewSubscriptionService(s, gw, discardLogger())

		session, err := svc.CreateCheckout(context.Background(), checkoutRequest())
		require.NoError(t, err)
		assert.Equal(t, "cs_1", session.ID)
		gw.AssertExpectations(t)
	})

	t.Run("stripe failure is upstream", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, errors.New("card_declined"))
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())

		_, err := svc.CreateCheckout(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	})
}

func TestSubscriptionService_Status(t *testing.T) {
	s := newTestStore(t)
	trialEnd := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createUser(t, s, &domain.User{ID: 7, Subscription: domain.Subscription{
		Status: domain.StatusTrialing, Plan: domain.PlanWeekly, TrialEnd: &trialEnd,
	}})
	svc := NewSubscriptionService(s, &mockGateway{}, discardLogger())

	status, err := svc.Status(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "trialing", status.Status)
	assert.Equal(t, "weekly", status.Plan)
	require.NotNil(t, status.TrialEnd)
	assert.True(t, trialEnd.Equal(*status.TrialEnd))

	missing, err := svc.Status(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, missing.Active)
	assert.Equal(t, "free", missing.Status)
}

func TestSubscriptionService_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	trialEnd := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)

	t.Run("checkout completed stores the subscription", func(t *testing.T) {
		s := newTestStore(t)
		createUser(t, s, &domain.User{ID: 42})

		gw := &mockGateway{configured: true}
		gw.On("ParseEvent", []byte("payload"), "sig").Return(&billing.Event{
			ID: "evt_1", Type: billing.EventCheckoutCompleted,
			Checkout: &billing.CheckoutCompleted{ClientReferenceID: "42", CustomerID: "cus_1", SubscriptionID: "sub_1"},
		}, nil)
		gw.On("GetSubscription", mock.Anything, "sub_1").Return(&billing.Subscription{
			ID: "sub_1", Status: domain.StatusTrialing, PriceID: "price_annual", TrialEnd: &trialEnd,
		}, nil)
		svc := NewSubscriptionService(s, gw, discardLogger())

		require.NoError(t, svc.HandleWebhook(ctx, []byte("payload"), "sig"))

		u, err := s.GetUser(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTrialing, u.Subscription.Status)
		assert.Equal(t, domain.PlanAnnual, u.Subscription.Plan)
		assert.Equal(t, "cus_1", u.Subscription.StripeCustomerID)
		assert.Equal(t, "sub_1", u.Subscription.StripeSubscriptionID)
		require.NotNil(t, u.Subscription.TrialEnd)
		assert.True(t, trialEnd.Equal(*u.Subscription.TrialEnd))
	})

	t.Run("update and delete by subscription id", func(t *testing.T) {
		s := newTestStore(t)
		createUser(t, s, &domain.User{ID: 5, Subscription: domain.Subscription{
			Status: domain.StatusTrialing, Plan: domain.PlanWeekly, StripeSubscriptionID: "sub_5",
		}})

		gw := &mockGateway{configured: true}
		gw.On("ParseEvent", []byte("upd"), "sig").Return(&billing.Event{
			Type:         billing.EventSubscriptionUpdated,
			Subscription: &billing.Subscription{ID: "sub_5", Status: domain.StatusActive, PriceID: "price_annual"},
		}, nil)
		gw.On("ParseEvent", []byte("del"), "sig").Return(&billing.Event{
			Type:         billing.EventSubscriptionDeleted,
			Subscription: &billing.Subscription{ID: "sub_5", Status: domain.StatusCanceled},
		}, nil)
		svc := NewSubscriptionService(s, gw, discardLogger())

		require.NoError(t, svc.HandleWebhook(ctx, []byte("upd"), "sig"))
		u, err := s.GetUser(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, u.Subscription.Status)
		assert.Equal(t, domain.PlanAnnual, u.Subscription.Plan)

		require.NoError(t, svc.HandleWebhook(ctx, []byte("del"), "sig"))
		u, err = s.GetUser(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCanceled, u.Subscription.Status)
		assert.Equal(t, domain.PlanAnnual, u.Subscription.Plan)
	})

	t.Run("bad signature", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		gw.On("ParseEvent", mock.Anything, mock.Anything).Return(nil, billing.ErrInvalidSignature)
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())

		err := svc.HandleWebhook(ctx, []byte("x"), "bad")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unusable reference is acknowledged", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		gw.On("ParseEvent", mock.Anything, mock.Anything).Return(&billing.Event{
			Type:     billing.EventCheckoutCompleted,
			Checkout: &billing.CheckoutCompleted{ClientReferenceID: "not-a-number", SubscriptionID: "sub_1", CustomerID: "cus_1"},
		}, nil)
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())

		require.NoError(t, svc.HandleWebhook(ctx, []byte("x"), "sig"))
		gw.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		gw := &mockGateway{configured: true}
		gw.On("ParseEvent", mock.Anything, mock.Anything).Return(&billing.Event{Type: "invoice.paid"}, nil)
		svc := NewSubscriptionService(newTestStore(t), gw, discardLogger())
		assert.NoError(t, svc.HandleWebhook(ctx, []byte("x"), "sig"))
	})
}
