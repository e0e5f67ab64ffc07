// Package billing wraps the Stripe API calls the subscription flow needs:
// checkout sessions, subscription lookups and webhook verification.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

// Errors reported before any call reaches Stripe.
var (
	ErrNotConfigured        = errors.New("billing: stripe secret key not configured")
	ErrWebhookNotConfigured = errors.New("billing: stripe webhook secret not configured")
	ErrPriceNotConfigured   = errors.New("billing: no stripe price configured for plan")
	ErrUnknownPlan          = errors.New("billing: unknown plan")
	ErrInvalidSignature     = errors.New("billing: invalid webhook signature")
)

// Event types the subscription flow reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Config configures the Stripe client.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceAnnual   string
	PriceWeekly   string
	TrialDays     int64
	// BaseURL overrides the API host. Empty means api.stripe.com.
	BaseURL string
}

// CheckoutParams describes a subscription checkout for one user.
type CheckoutParams struct {
	UserID        int64
	Plan          domain.Plan
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// CheckoutSession is the hosted page the app opens.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Subscription is the part of a Stripe subscription stored on a user.
type Subscription struct {
	ID         string
	CustomerID string
	Status     domain.SubscriptionStatus
	PriceID    string
	TrialEnd   *time.Time
}

// CheckoutCompleted is the payload of checkout.session.completed.
type CheckoutCompleted struct {
	SessionID         string
	ClientReferenceID string
	CustomerID        string
	SubscriptionID    string
}

// Event is a verified webhook event. Exactly one of the payload fields is
// set for the handled types; both are nil for anything else.
type Event struct {
	ID           string
	Type         string
	Checkout     *CheckoutCompleted
	Subscription *Subscription
}

// Stripe is the production billing gateway.
type Stripe struct {
	cfg    Config
	api    *client.API
	logger *slog.Logger
}

// New creates a gateway. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Stripe {
	s := &Stripe{cfg: cfg, logger: logger}
	if cfg.SecretKey == "" {
		return s
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	s.api = &client.API{}
	s.api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return s
}

// Configured reports whether a secret key is set.
func (s *Stripe) Configured() bool {
	return s.api != nil
}

// PriceFor maps a plan to its configured price id.
func (s *Stripe) PriceFor(plan domain.Plan) (string, error) {
	var price string
	switch plan {
	case domain.PlanAnnual:
		price = s.cfg.PriceAnnual
	case domain.PlanWeekly:
		price = s.cfg.PriceWeekly
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	if price == "" {
		return "", fmt.Errorf("%w: %s", ErrPriceNotConfigured, plan)
	}
	return price, nil
}

// PlanForPrice maps a price id back to a plan.
func (s *Stripe) PlanForPrice(priceID string) (domain.Plan, bool) {
	switch {
	case priceID == "":
		return "", false
	case priceID == s.cfg.PriceAnnual:
		return domain.PlanAnnual, true
	case priceID == s.cfg.PriceWeekly:
		return domain.PlanWeekly, true
	default:
		return "", false
	}
}

// CreateCheckoutSession starts a subscription checkout for p.UserID.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	price, err := s.PriceFor(p.Plan)
	if err != nil {
		return nil, err
	}

	userRef := strconv.FormatInt(p.UserID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(userRef),
	}
	if s.cfg.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(s.cfg.TrialDays),
		}
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userRef)
	params.AddMetadata("plan", string(p.Plan))
	params.SetIdempotencyKey(uuid.NewString())

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.logger.Info("checkout session created", "user_id", p.UserID, "plan", p.Plan, "session_id", session.ID)
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// GetSubscription loads a subscription by id.
func (s *Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return toSubscription(sub), nil
}

// ParseEvent verifies signature against the webhook secret and decodes the
// handled event payloads.
func (s *Stripe) ParseEvent(payload []byte, signature string) (*Event, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil {
		return event, nil
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		completed := &CheckoutCompleted{SessionID: cs.ID, ClientReferenceID: cs.ClientReferenceID}
		if cs.Customer != nil {
			completed.CustomerID = cs.Customer.ID
		}
		if cs.Subscription != nil {
			completed.SubscriptionID = cs.Subscription.ID
		}
		event.Checkout = completed

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		event.Subscription = toSubscription(&sub)
	}
	return event, nil
}

func toSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:     sub.ID,
		Status: domain.SubscriptionStatus(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	return out
}
