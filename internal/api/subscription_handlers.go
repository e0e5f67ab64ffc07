package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/service"
)

func (s *Server) registerSubscriptionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createCheckout",
		Method:      http.MethodPost,
		Path:        "/api/subscription/checkout",
		Summary:     "Create checkout session",
		Description: "Creates a Stripe Checkout session for the annual or weekly plan",
		Tags:        []string{"Subscription"},
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, s.handleCreateCheckout)

	huma.Register(s.api, huma.Operation{
		OperationID: "subscriptionStatus",
		Method:      http.MethodGet,
		Path:        "/api/subscription/status",
		Summary:     "Subscription status",
		Description: "Returns whether the user has an active or trialing subscription",
		Tags:        []string{"Subscription"},
	}, s.handleSubscriptionStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "stripeWebhook",
		Method:      http.MethodPost,
		Path:        "/api/subscription/webhook",
		Summary:     "Stripe webhook",
		Description: "Receives signed Stripe events. The raw body is verified against the Stripe-Signature header.",
		Tags:        []string{"Subscription"},
	}, s.handleStripeWebhook)
}

// CheckoutInput wraps the checkout request for Huma.
type CheckoutInput struct {
	Body service.CheckoutRequest
}

// CheckoutOutput wraps the created session for Huma.
type CheckoutOutput struct {
	Body *billing.CheckoutSession
}

// SubscriptionStatusInput selects the user.
type SubscriptionStatusInput struct {
	UserID int64 `query:"user_id" required:"true" doc:"User ID"`
}

// SubscriptionStatusOutput wraps the status for Huma.
type SubscriptionStatusOutput struct {
	Body *service.SubscriptionStatus
}

// WebhookInput keeps the body unparsed so the signature can be checked.
type WebhookInput struct {
	Signature string `header:"Stripe-Signature" doc:"Stripe webhook signature"`
	RawBody   []byte
}

// WebhookOutput acknowledges an event.
type WebhookOutput struct {
	Body struct {
		Received bool `json:"received"`
	}
}

func (s *Server) handleCreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutOutput, error) {
	session, err := s.services.Subscription.CreateCheckout(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &CheckoutOutput{Body: session}, nil
}

func (s *Server) handleSubscriptionStatus(ctx context.Context, input *SubscriptionStatusInput) (*SubscriptionStatusOutput, error) {
	status, err := s.services.Subscription.Status(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionStatusOutput{Body: status}, nil
}

func (s *Server) handleStripeWebhook(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
	if err := s.services.Subscription.HandleWebhook(ctx, input.RawBody, input.Signature); err != nil {
		return nil, err
	}
	out := &WebhookOutput{}
	out.Body.Received = true
	return out, nil
}
