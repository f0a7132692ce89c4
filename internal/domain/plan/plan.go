// Package plan provides subscription plans and the playlist quota policy.
package plan

import (
	"fmt"
	"time"
)

// Plan represents a subscription plan.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Status represents the subscription lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusCanceled   Status = "canceled"
	StatusPastDue    Status = "past_due"
	StatusUnpaid     Status = "unpaid"
	StatusIncomplete Status = "incomplete"
)

// Unlimited is the limit sentinel for plans without a playlist ceiling.
const Unlimited = -1

// Subscription represents a user's subscription.
type Subscription struct {
	UserID    string    // Owning user ID
	Plan      Plan      // Current plan
	Status    Status    // Lifecycle state
	ExpiresAt time.Time // Expiry instant
}

// IsActive reports whether the subscription grants access at the given instant.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

// Limit returns the playlist ceiling for the plan, or Unlimited.
func Limit(p Plan) int {
	switch p {
	case PlanBasic:
		return 5
	case PlanPro:
		return Unlimited
	default:
		return 1
	}
}

// DenyCause explains why playlist creation was denied.
type DenyCause string

const (
	DenySubscriptionInactive DenyCause = "subscription_inactive"
	DenyPlanLimit            DenyCause = "plan_limit"
)

// QuotaDeniedError is returned when playlist creation would exceed the quota.
// Callers branch on Cause to offer an upgrade path distinct from generic failure.
type QuotaDeniedError struct {
	Plan  Plan
	Cause DenyCause
	Limit int
}

func (e *QuotaDeniedError) Error() string {
	if e.Cause == DenySubscriptionInactive {
		return fmt.Sprintf("playlist quota denied: subscription not active (plan %s)", e.Plan)
	}
	return fmt.Sprintf("playlist quota denied: plan %s allows %d playlists", e.Plan, e.Limit)
}

// CanCreatePlaylist applies the quota policy. It must run, and a denial must
// short-circuit creation, before any store write; there is no compensating
// rollback. Returns nil when creation is allowed.
func CanCreatePlaylist(sub *Subscription, now time.Time, currentCount int) error {
	if sub == nil || !sub.IsActive(now) {
		p := PlanFree
		if sub != nil {
			p = sub.Plan
		}
		return &QuotaDeniedError{Plan: p, Cause: DenySubscriptionInactive}
	}

	limit := Limit(sub.Plan)
	if limit == Unlimited {
		return nil
	}
	if currentCount >= limit {
		return &QuotaDeniedError{Plan: sub.Plan, Cause: DenyPlanLimit, Limit: limit}
	}
	return nil
}
