package domain

import (
	"errors"
	"time"
)

// Org represents an organization/tenant. Its existence is independent of the memberships pointing at it.
type Org struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	OwnerSubjectID string       `json:"owner_subject_id"`
	Subscription   Subscription `json:"subscription"`
	Limits         Limits       `json:"limits"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Subscription is the paid plan state of an organization.
type Subscription struct {
	Plan              Plan               `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	PeriodStart       time.Time          `json:"period_start"`
	PeriodEnd         time.Time          `json:"period_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}

// Limits caps what the owner may do under the plan.
type Limits struct {
	// MaxOrganizations is how many organizations the owner may found under this plan, this one included.
	MaxOrganizations int `json:"max_organizations"`
}

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// DefaultLimits returns the limits granted by plan. Unknown plans get the free limits.
func DefaultLimits(plan Plan) Limits {
	switch plan {
	case PlanPro:
		return Limits{MaxOrganizations: 3}
	case PlanBusiness:
		return Limits{MaxOrganizations: 10}
	}
	return Limits{MaxOrganizations: 1}
}

// NewFreeSubscription returns an active free subscription starting at now.
func NewFreeSubscription(now time.Time) Subscription {
	return Subscription{Plan: PlanFree, Status: SubscriptionActive, PeriodStart: now}
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	if o.ID == "" {
		return errors.New("id is required")
	}
	if o.Name == "" {
		return errors.New("name is required")
	}
	if o.OwnerSubjectID == "" {
		return errors.New("owner_subject_id is required")
	}
	if o.Subscription.Plan == "" {
		o.Subscription.Plan = PlanFree
	}
	if o.Subscription.Status == "" {
		o.Subscription.Status = SubscriptionActive
	}
	if o.Limits.MaxOrganizations <= 0 {
		o.Limits = DefaultLimits(o.Subscription.Plan)
	}
	return nil
}

// IsOwner reports whether subjectID founded the organization.
func (o *Org) IsOwner(subjectID string) bool {
	return o != nil && subjectID != "" && o.OwnerSubjectID == subjectID
}
