package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// CheckoutAPI reads the status of a checkout session.
type CheckoutAPI interface {
	CheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error)
}

// PaymentOutcome is the result of checking a checkout session.
type PaymentOutcome string

const (
	PaymentPaid PaymentOutcome = "paid"
	// PaymentExpired means the checkout session can no longer be paid.
	PaymentExpired PaymentOutcome = "expired"
	// PaymentPending means the payment was not confirmed within the budget; the user is
	// told to watch for the confirmation email.
	PaymentPending PaymentOutcome = "pending"
)

// Message returns the user-facing text of an outcome.
func (o PaymentOutcome) Message() string {
	switch o {
	case PaymentPaid:
		return "Payment processed. Welcome to the premium plan."
	case PaymentExpired:
		return "The payment session has expired. Please try again."
	default:
		return "Still verifying the payment. Check your email for the confirmation."
	}
}

// PaymentChecker polls a checkout session with the same bounded loop as the feedback
// awaiter. Remote failures are terminal and not retried.
type PaymentChecker struct {
	api         CheckoutAPI
	timer       Timer
	interval    time.Duration
	maxAttempts int
}

// NewPaymentChecker creates a PaymentChecker. Non-positive values use the defaults.
func NewPaymentChecker(api CheckoutAPI, timer Timer, interval time.Duration, maxAttempts int) *PaymentChecker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPaymentAttempts
	}
	return &PaymentChecker{api: api, timer: timer, interval: interval, maxAttempts: maxAttempts}
}

// Start begins checking and reports the result through onDone, which receives either an
// outcome or an error.
func (p *PaymentChecker) Start(ctx context.Context, sessionID string, onDone func(PaymentOutcome, error)) (*BoundedPoller, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("payment session id is required")
	}
	outcome := PaymentPending
	poller := NewBoundedPoller("payment-"+sessionID, p.timer, p.interval, p.maxAttempts)

	attempt := func(ctx context.Context, n int) (bool, error) {
		status, err := p.api.CheckoutStatus(ctx, sessionID)
		if err != nil {
			slog.Error("PaymentChecker: status request failed", "session_id", sessionID, "attempt", n, "error", err)
			return false, fmt.Errorf("failed to check payment status: %w", err)
		}
		switch {
		case status.IsPaid():
			outcome = PaymentPaid
			return true, nil
		case status.IsExpired():
			outcome = PaymentExpired
			return true, nil
		}
		slog.Debug("PaymentChecker: payment pending", "session_id", sessionID, "attempt", n, "status", status.Status, "payment_status", status.PaymentStatus)
		return false, nil
	}

	finish := func(res PollResult) {
		switch res.Outcome {
		case PollFailed, PollCancelled:
			onDone("", res.Err)
		case PollExhausted:
			slog.Warn("PaymentChecker: payment still pending", "session_id", sessionID, "attempts", res.Attempts)
			onDone(PaymentPending, nil)
		default:
			slog.Info("PaymentChecker: payment settled", "session_id", sessionID, "outcome", outcome)
			onDone(outcome, nil)
		}
	}

	if err := poller.Start(ctx, attempt, finish); err != nil {
		return nil, err
	}
	return poller, nil
}

// Check blocks until the payment outcome is known or ctx is done.
func (p *PaymentChecker) Check(ctx context.Context, sessionID string) (PaymentOutcome, error) {
	type result struct {
		outcome PaymentOutcome
		err     error
	}
	ch := make(chan result, 1)
	poller, err := p.Start(ctx, sessionID, func(o PaymentOutcome, err error) {
		ch <- result{o, err}
	})
	if err != nil {
		return "", err
	}
	defer poller.Stop()

	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
