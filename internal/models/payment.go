package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PlanType identifies a subscription plan.
type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanAnnual  PlanType = "annual"
)

// Plan describes a subscription offer. Prices are in euros.
type Plan struct {
	Type         PlanType
	Name         string
	MonthlyPrice decimal.Decimal
	BilledAmount decimal.Decimal
	BillingCycle string
}

// Plans lists the available subscription plans.
var Plans = []Plan{
	{
		Type:         PlanMonthly,
		Name:         "Monthly",
		MonthlyPrice: decimal.NewFromInt(49),
		BilledAmount: decimal.NewFromInt(49),
		BillingCycle: "month",
	},
	{
		Type:         PlanAnnual,
		Name:         "Annual",
		MonthlyPrice: decimal.NewFromInt(29),
		BilledAmount: decimal.NewFromInt(348),
		BillingCycle: "year",
	},
}

// PlanByType looks up a plan.
func PlanByType(t PlanType) (Plan, error) {
	for _, p := range Plans {
		if p.Type == t {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("unknown plan type %q", t)
}

// AnnualSavings returns how much the plan saves over twelve monthly payments.
func (p Plan) AnnualSavings() decimal.Decimal {
	monthly, _ := PlanByType(PlanMonthly)
	yearly := monthly.MonthlyPrice.Mul(decimal.NewFromInt(12))
	own := p.MonthlyPrice.Mul(decimal.NewFromInt(12))
	return yearly.Sub(own)
}

// CheckoutRequest is the body of /payments/create-checkout.
type CheckoutRequest struct {
	PlanType   PlanType `json:"plan_type"`
	SuccessURL string   `json:"success_url"`
	CancelURL  string   `json:"cancel_url"`
}

// CheckoutSession is returned when a checkout is created server-side.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutStatus is the status of a checkout session.
type CheckoutStatus struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// IsPaid reports whether the payment has been captured.
func (s CheckoutStatus) IsPaid() bool {
	return s.PaymentStatus == "paid"
}

// IsExpired reports whether the checkout session can no longer be paid.
func (s CheckoutStatus) IsExpired() bool {
	return s.Status == "expired"
}
