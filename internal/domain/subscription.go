package domain

import "time"

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

// Subscription states stored on a user.
const (
	StatusFree     SubscriptionStatus = "free"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Entitled reports whether the status grants unlimited generation.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Plan is a purchasable subscription plan.
type Plan string

// Plans sold in the app.
const (
	PlanAnnual Plan = "annual"
	PlanWeekly Plan = "weekly"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanAnnual || p == PlanWeekly
}

// Subscription is the billing state kept on a user row.
type Subscription struct {
	Status               SubscriptionStatus `json:"status"`
	Plan                 Plan               `json:"plan,omitempty"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	StripeCustomerID     string             `json:"-"`
	StripeSubscriptionID string             `json:"-"`
}

// Active reports whether the subscription currently grants entitlement.
func (s Subscription) Active() bool {
	return s.Status.Entitled()
}
