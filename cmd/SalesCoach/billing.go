package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/SalesCoach/internal/api"
	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
)

// newDashboardCmd creates the dashboard command
func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "dashboard",
		Short:       "Show your practice statistics",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats *models.DashboardStats
			var sectors []models.Sector

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				stats, err = a.client.DashboardStats(ctx)
				return err
			})
			g.Go(func() error {
				var err error
				if sectors, err = a.client.ListSectors(ctx); err != nil {
					slog.Warn("Dashboard: failed to load sectors", "error", err)
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return a.remoteError(fmt.Errorf("failed to load dashboard: %w", err))
			}

			user, _ := a.session.User()
			fmt.Fprint(a.stdout, a.printer.Dashboard(user, stats))
			if len(sectors) > 0 {
				fmt.Fprintf(a.stdout, "\n%d sectors available for new simulations, see `salescoach sectors`\n", len(sectors))
			}
			return nil
		},
	}
}

// newPayCmd creates the pay command
func newPayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "pay <monthly|annual>",
		Short:       "Subscribe to a premium plan",
		Long:        "Open the checkout for a premium plan in your browser and wait for the payment result.",
		Args:        cobra.ExactArgs(1),
		ValidArgs:   []string{string(models.PlanMonthly), string(models.PlanAnnual)},
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := models.PlanByType(models.PlanType(args[0]))
			if err != nil {
				fmt.Fprint(a.stdout, a.printer.Plans())
				return err
			}
			return runPay(a, cmd, plan)
		},
	}
}

// runPay creates a checkout whose return URLs point at the loopback server, then waits
// for the browser to come back and for the payment status to settle.
func runPay(a *app, cmd *cobra.Command, plan models.Plan) error {
	lock, err := a.lock(cmd)
	if err != nil {
		return err
	}
	defer lock.Release()

	timer := a.newTimer()
	defer timer.Stop()
	checker := flow.NewPaymentChecker(a.client, timer, a.cfg.PollInterval, a.cfg.PaymentAttempts)
	srv := api.NewServer(api.WithAddr(a.cfg.CallbackAddr), api.WithPaymentChecker(checker))
	if err := srv.Listen(); err != nil {
		return err
	}

	checkout, err := a.client.CreateCheckout(cmd.Context(), models.CheckoutRequest{
		PlanType:   plan.Type,
		SuccessURL: srv.URL(api.PathPaymentReturn) + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  srv.URL(api.PathPaymentCancel),
	})
	if err != nil {
		return a.remoteError(fmt.Errorf("failed to create checkout: %w", err))
	}
	slog.Info("Pay: checkout created", "plan", plan.Type, "session_id", checkout.SessionID)

	a.notifier.Info("%s plan: €%s per %s", plan.Name, plan.BilledAmount.StringFixed(2), plan.BillingCycle)
	if err := a.opener().OpenExternal(checkout.CheckoutURL); err != nil {
		a.notifier.Warning("Open the URL above in your browser to pay")
	}
	a.notifier.Info("Waiting for the checkout to complete...")

	var outcome flow.PaymentOutcome
	err = awaitCallback(cmd.Context(), srv, func(e api.Event) (bool, error) {
		switch e.Kind {
		case api.EventPaymentResult:
			if e.Err != nil {
				return true, fmt.Errorf("%s: %w", e.Message, e.Err)
			}
			outcome = e.Payment
			return true, nil
		case api.EventPaymentCancelled:
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if outcome == "" {
		a.notifier.Info("Payment cancelled")
		return nil
	}
	return a.reportPayment(outcome)
}

// newPaymentStatusCmd creates the payment-status command
func newPaymentStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "payment-status <session-id>",
		Short:       "Check the status of a checkout session",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			timer := a.newTimer()
			defer timer.Stop()
			checker := flow.NewPaymentChecker(a.client, timer, a.cfg.PollInterval, a.cfg.PaymentAttempts)

			a.notifier.Info("Checking payment status...")
			outcome, err := checker.Check(cmd.Context(), args[0])
			if err != nil {
				return a.remoteError(err)
			}
			return a.reportPayment(outcome)
		},
	}
}

func (a *app) reportPayment(outcome flow.PaymentOutcome) error {
	switch outcome {
	case flow.PaymentPaid:
		a.notifier.Success("%s", outcome.Message())
	case flow.PaymentExpired:
		return fmt.Errorf("%s", outcome.Message())
	default:
		a.notifier.Inline("Payment pending", outcome.Message())
	}
	return nil
}
