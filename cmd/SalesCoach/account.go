package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/SalesCoach/internal/api"
	"github.com/BTreeMap/SalesCoach/internal/auth"
	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/store"
	"github.com/BTreeMap/SalesCoach/internal/ui"
)

// newLoginCmd creates the login command
func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	var provider bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password or through the identity provider",
		Long: `Sign in with email and password, or with --provider through the identity provider
in your browser. Missing email or password are asked for interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider {
				if email != "" || password != "" {
					return fmt.Errorf("--provider cannot be combined with --email or --password")
				}
				return runProviderLogin(a, cmd)
			}
			e, pw, err := a.wizard.Credentials(email, password)
			if err != nil {
				return err
			}
			user, err := a.session.LoginWithPassword(cmd.Context(), a.client, e, pw)
			if err != nil {
				return err
			}
			a.client.SetToken(a.session.Token())
			a.notifier.Success("Signed in as %s", displayName(user))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&provider, "provider", false, "sign in through the identity provider in the browser")

	return cmd
}

// runProviderLogin sends the user to the identity provider and waits for the redirect
// back to the loopback callback server.
func runProviderLogin(a *app, cmd *cobra.Command) error {
	lock, err := a.lock(cmd)
	if err != nil {
		return err
	}
	defer lock.Release()

	srv := api.NewServer(api.WithAddr(a.cfg.CallbackAddr), api.WithSession(a.session))
	if err := srv.Listen(); err != nil {
		return err
	}
	state := auth.NewState()
	srv.ExpectState(state)

	loginURL, err := auth.LoginURL(a.cfg.AuthURL, srv.URL(api.PathAuthCallback), state)
	if err != nil {
		return err
	}
	if err := a.opener().OpenExternal(loginURL); err != nil {
		a.notifier.Warning("Open the URL above in your browser to continue")
	}
	a.notifier.Info("Waiting for the identity provider...")

	err = awaitCallback(cmd.Context(), srv, func(e api.Event) (bool, error) {
		switch e.Kind {
		case api.EventLoggedIn:
			return true, nil
		case api.EventLoginFailed:
			return true, e.Err
		}
		slog.Debug("Login: ignoring callback", "kind", e.Kind)
		return false, nil
	})
	if err != nil {
		return err
	}

	a.client.SetToken(a.session.Token())
	user, _ := a.session.User()
	a.notifier.Success("Signed in as %s", displayName(user))
	return nil
}

// newRegisterCmd creates the register command
func newRegisterCmd(a *app) *cobra.Command {
	var req models.RegisterRequest
	var skipOnboarding bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Name == "" {
				if req.Name, err = a.wizard.Input("Name:", "", true); err != nil {
					return err
				}
			}
			if req.Email, req.Password, err = a.wizard.Credentials(req.Email, req.Password); err != nil {
				return err
			}
			user, err := a.session.Register(cmd.Context(), a.client, req)
			if err != nil {
				return err
			}
			a.client.SetToken(a.session.Token())
			a.notifier.Success("Account created. Welcome, %s!", displayName(user))

			if skipOnboarding {
				return nil
			}
			now, err := a.wizard.Confirm("Set up your sales profile now?", true)
			if err != nil || !now {
				a.notifier.Info("You can do it later with `salescoach onboarding`")
				return nil
			}
			return runOnboarding(a, cmd)
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "your name")
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().BoolVar(&skipOnboarding, "skip-onboarding", false, "do not offer the onboarding questions")

	return cmd
}

// newLogoutCmd creates the logout command
func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.Authenticated() {
				a.notifier.Info("Not signed in")
				return nil
			}
			if err := a.session.Logout(); err != nil {
				return err
			}
			a.notifier.Success("Signed out")
			return nil
		},
	}
}

// newWhoamiCmd creates the whoami command
func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the signed-in account",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := a.session.User()
			fmt.Fprintf(a.stdout, "%s\n", displayName(user))
			if user.Email != "" && user.Name != "" {
				fmt.Fprintf(a.stdout, "Email:   %s\n", user.Email)
			}
			profile := a.cfg.Profile
			if profile == "" {
				profile = store.DefaultProfile
			}
			fmt.Fprintf(a.stdout, "Profile: %s\n", profile)
			fmt.Fprintf(a.stdout, "Backend: %s\n", a.client.BaseURL())
			return nil
		},
	}
}

// newOnboardingCmd creates the onboarding command
func newOnboardingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "onboarding",
		Short:       "Answer the five profile questions that tailor your simulations",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboarding(a, cmd)
		},
	}
}

func runOnboarding(a *app, cmd *cobra.Command) error {
	profile, err := a.wizard.Onboarding()
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if err := a.client.SubmitOnboarding(cmd.Context(), profile); err != nil {
		return a.remoteError(fmt.Errorf("failed to save profile: %w", err))
	}
	a.notifier.Success("Profile saved")
	return nil
}

func displayName(u models.User) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	}
	return "unknown user"
}

// isCancelled reports whether the user backed out of a prompt.
func isCancelled(err error) bool {
	return errors.Is(err, ui.ErrCancelled)
}
