package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
	"github.com/alreadydone/alreadydone-server/internal/validation"
)

// BillingGateway is the part of the Stripe client the subscription flow uses.
type BillingGateway interface {
	Configured() bool
	PlanForPrice(priceID string) (domain.Plan, bool)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
	ParseEvent(payload []byte, signature string) (*billing.Event, error)
}

// CheckoutRequest starts a subscription purchase.
type CheckoutRequest struct {
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
	Plan          string `json:"plan" validate:"required,oneof=annual weekly"`
	SuccessURL    string `json:"success_url" validate:"required,url"`
	CancelURL     string `json:"cancel_url" validate:"required,url"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
}

// SubscriptionStatus is what the app shows on the paywall and uses for
// Restore Purchase.
type SubscriptionStatus struct {
	Active   bool       `json:"active"`
	Status   string     `json:"status"`
	Plan     string     `json:"plan,omitempty"`
	TrialEnd *time.Time `json:"trial_end,omitempty"`
}

// SubscriptionService owns the billing fields on users.
type SubscriptionService struct {
	store     store.Store
	gateway   BillingGateway
	validator *validation.Validator
	logger    *slog.Logger
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(s store.Store, gateway BillingGateway, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:     s,
		gateway:   gateway,
		validator: validation.New(),
		logger:    logger,
	}
}

// Configured reports whether checkout can reach Stripe.
func (s *SubscriptionService) Configured() bool {
	return s.gateway.Configured()
}

// IsActive reports whether userID currently has an entitling subscription.
// An unknown user is a NOT_FOUND error, not an unsubscribed one.
func (s *SubscriptionService) IsActive(ctx context.Context, userID int64) (bool, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, apperr.NotFoundf("user %d not found", userID)
	}
	if err != nil {
		return false, err
	}
	return u.Subscription.Active(), nil
}

// CreateCheckout creates a hosted checkout page for req.
func (s *SubscriptionService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*billing.CheckoutSession, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !s.gateway.Configured() {
		return nil, apperr.NotConfigured("Stripe is not configured")
	}

	email := req.CustomerEmail
	if email == "" {
		u, err := s.store.GetUser(ctx, req.UserID)
		switch {
		case err == nil:
			email = u.Email
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperr.Storage(err, "failed to load user")
		}
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:        req.UserID,
		Plan:          domain.Plan(req.Plan),
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CustomerEmail: email,
	})
	switch {
	case errors.Is(err, billing.ErrUnknownPlan):
		return nil, apperr.Validationf("plan must be %q or %q", domain.PlanAnnual, domain.PlanWeekly)
	case errors.Is(err, billing.ErrPriceNotConfigured), errors.Is(err, billing.ErrNotConfigured):
		return nil, apperr.NotConfigured("Stripe price not configured for plan " + req.Plan).WithCause(err)
	case err != nil:
		return nil, apperr.Upstream("checkout failed").WithCause(err)
	}
	return session, nil
}

// Status returns the stored subscription state for userID.
func (s *SubscriptionService) Status(ctx context.Context, userID int64) (*SubscriptionStatus, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &SubscriptionStatus{Status: string(domain.StatusFree)}, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "failed to load subscription")
	}

	sub := u.Subscription
	status := sub.Status
	if status == "" {
		status = domain.StatusFree
	}
	return &SubscriptionStatus{
		Active:   sub.Active(),
		Status:   string(status),
		Plan:     string(sub.Plan),
		TrialEnd: sub.TrialEnd,
	}, nil
}

// HandleWebhook verifies and applies one Stripe event. Events that cannot
// be tied to a user are logged and acknowledged so Stripe stops resending.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseEvent(payload, signature)
	switch {
	case errors.Is(err, billing.ErrWebhookNotConfigured):
		return apperr.NotConfigured("webhook secret not configured")
	case errors.Is(err, billing.ErrInvalidSignature):
		return apperr.Validation("invalid webhook signature")
	case err != nil:
		return apperr.Validation("invalid webhook payload").WithCause(err)
	}

	log := s.logger.With("event_id", event.ID, "event_type", event.Type)

	switch {
	case event.Type == billing.EventCheckoutCompleted && event.Checkout != nil:
		return s.applyCheckout(ctx, log, event.Checkout)
	case event.Type == billing.EventSubscriptionUpdated && event.Subscription != nil:
		return s.applyUpdate(ctx, log, event.Subscription, false)
	case event.Type == billing.EventSubscriptionDeleted && event.Subscription != nil:
		return s.applyUpdate(ctx, log, event.Subscription, true)
	default:
		log.Debug("ignoring stripe event")
		return nil
	}
}

func (s *SubscriptionService) applyCheckout(ctx context.Context, log *slog.Logger, c *billing.CheckoutCompleted) error {
	userID, err := strconv.ParseInt(c.ClientReferenceID, 10, 64)
	if err != nil || userID <= 0 {
		log.Warn("checkout completed without a usable client_reference_id", "client_reference_id", c.ClientReferenceID)
		return nil
	}
	if c.SubscriptionID == "" || c.CustomerID == "" {
		log.Warn("checkout completed without subscription or customer", "user_id", userID)
		return nil
	}

	sub, err := s.gateway.GetSubscription(ctx, c.SubscriptionID)
	if err != nil {
		return apperr.Upstream("failed to load subscription from Stripe").WithCause(err)
	}

	status := sub.Status
	if status == "" {
		status = domain.StatusActive
	}
	plan, _ := s.gateway.PlanForPrice(sub.PriceID)

	err = s.store.SaveSubscription(ctx, userID, domain.Subscription{
		Status:               status,
		Plan:                 plan,
		TrialEnd:             sub.TrialEnd,
		StripeCustomerID:     c.CustomerID,
		StripeSubscriptionID: c.SubscriptionID,
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("checkout completed for unknown user", "user_id", userID)
		return nil
	}
	if err != nil {
		return apperr.Storage(err, "failed to save subscription")
	}

	log.Info("subscription started", "user_id", userID, "status", status, "plan", plan)
	return nil
}

func (s *SubscriptionService) applyUpdate(ctx context.Context, log *slog.Logger, sub *billing.Subscription, deleted bool) error {
	upd := store.SubscriptionUpdate{Status: sub.Status, TrialEnd: sub.TrialEnd}
	if deleted {
		upd = store.SubscriptionUpdate{Status: domain.StatusCanceled}
	} else {
		if upd.Status == "" {
			upd.Status = domain.StatusActive
		}
		if plan, ok := s.gateway.PlanForPrice(sub.PriceID); ok {
			upd.Plan = &plan
		}
	}

	n, err := s.store.UpdateSubscriptionByStripeID(ctx, sub.ID, upd)
	if err != nil {
		return apperr.Storage(err, "failed to update subscription")
	}
	if n == 0 {
		log.Warn("no user owns stripe subscription", "subscription_id", sub.ID)
		return nil
	}

	log.Info("subscription updated", "subscription_id", sub.ID, "status", upd.Status)
	return nil
}
