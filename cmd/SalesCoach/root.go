package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/SalesCoach/internal/auth"
	"github.com/BTreeMap/SalesCoach/internal/config"
	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/lockfile"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
	"github.com/BTreeMap/SalesCoach/internal/store"
	"github.com/BTreeMap/SalesCoach/internal/ui"
	"github.com/BTreeMap/SalesCoach/internal/util"
)

// annotationAuth marks commands that need a signed-in session.
const annotationAuth = "salescoach/auth"

var requiresAuth = map[string]string{annotationAuth: "required"}

// Flags holds the global command line flag values.
type Flags struct {
	configPath   string
	envFile      string
	debug        bool
	apiURL       string
	authURL      string
	stateDir     string
	dbDSN        string
	profile      string
	callbackAddr string
	pollInterval time.Duration
	noBrowser    bool
}

// app carries everything a command needs once the root command has resolved the
// configuration and the session.
type app struct {
	stdout io.Writer
	stderr io.Writer
	ask    ui.AskFunc
	flags  Flags

	cfg      config.Config
	printer  *ui.Printer
	notifier *ui.Notifier
	wizard   *ui.Wizard
	tokens   store.TokenStore
	session  *auth.Session
	client   *rpc.Client

	// newTimer is replaced in tests.
	newTimer func() flow.Timer
}

func newApp(stdout, stderr io.Writer, ask ui.AskFunc) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		ask:      ask,
		newTimer: func() flow.Timer { return flow.NewSimpleTimer() },
	}
}

// NewRootCmd creates the root command
func NewRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "salescoach",
		Short: "SalesCoach - practice sales conversations with an AI client",
		Long: `SalesCoach sets up simulated sales conversations with a video avatar, hands you
off to the conversation, and brings back a scored feedback report when it ends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "YAML configuration file (default: <state-dir>/config.yaml)")
	pf.StringVar(&a.flags.envFile, "env-file", "", ".env file to load (default: ./.env if present)")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging (overrides $"+config.EnvDebug+")")
	pf.StringVar(&a.flags.apiURL, "api-url", "", "backend base URL (overrides $"+config.EnvAPIURL+")")
	pf.StringVar(&a.flags.authURL, "auth-url", "", "identity provider URL (overrides $"+config.EnvAuthURL+")")
	pf.StringVar(&a.flags.stateDir, "state-dir", "", "state directory for tokens and locks (overrides $"+config.EnvStateDir+")")
	pf.StringVar(&a.flags.dbDSN, "db-dsn", "", "store tokens in SQLite or Postgres instead of a file (overrides $"+config.EnvDBDSN+")")
	pf.StringVar(&a.flags.profile, "profile", "", "credentials profile (overrides $"+config.EnvProfile+")")
	pf.StringVar(&a.flags.callbackAddr, "callback-addr", "", "loopback address for browser callbacks (overrides $"+config.EnvCallbackAddr+")")
	pf.DurationVar(&a.flags.pollInterval, "poll-interval", 0, "interval between status checks (overrides $"+config.EnvPollInterval+")")
	pf.BoolVar(&a.flags.noBrowser, "no-browser", false, "print URLs instead of opening the browser (overrides $"+config.EnvNoBrowser+")")

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newRegisterCmd(a))
	rootCmd.AddCommand(newLogoutCmd(a))
	rootCmd.AddCommand(newWhoamiCmd(a))
	rootCmd.AddCommand(newOnboardingCmd(a))
	rootCmd.AddCommand(newSectorsCmd(a))
	rootCmd.AddCommand(newSimulateCmd(a))
	rootCmd.AddCommand(newEndCmd(a))
	rootCmd.AddCommand(newFeedbackCmd(a))
	rootCmd.AddCommand(newDashboardCmd(a))
	rootCmd.AddCommand(newPayCmd(a))
	rootCmd.AddCommand(newPaymentStatusCmd(a))

	return rootCmd
}

// setup resolves the configuration, opens the token store and restores the session.
func (a *app) setup(cmd *cobra.Command) error {
	initializeLogger(a.stderr, a.flags.debug || util.ParseBoolEnv(config.EnvDebug, false))

	configPath := a.flags.configPath
	if configPath == "" && a.flags.stateDir != "" {
		// config.yaml lives next to the tokens of the state directory given on the command line
		candidate := filepath.Join(a.flags.stateDir, config.DefaultConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}
	cfg, err := config.Load(a.flags.envFile, configPath)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	initializeLogger(a.stderr, cfg.Debug)

	a.printer = ui.NewPrinter(a.stdout)
	a.notifier = ui.NewNotifier(a.printer)
	a.wizard = ui.NewWizard(a.ask)

	tokens, err := store.Open(store.WithDir(cfg.StateDir), store.WithDSN(cfg.DBDSN), store.WithProfile(cfg.Profile))
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	a.tokens = tokens

	a.session, err = auth.NewSession(tokens)
	if err != nil {
		return err
	}
	a.client, err = rpc.NewClient(rpc.WithBaseURL(cfg.APIURL), rpc.WithToken(a.session.Token()))
	if err != nil {
		return err
	}

	slog.Debug("Root.setup: ready",
		"command", cmd.CommandPath(),
		"api_url", cfg.APIURL,
		"state_dir", cfg.StateDir,
		"authenticated", a.session.Authenticated())

	if cmd.Annotations[annotationAuth] == "required" {
		return a.session.Require()
	}
	return nil
}

// applyFlags lets explicitly set flags win over every other configuration layer.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("debug") {
		cfg.Debug = a.flags.debug
	}
	if changed("api-url") {
		cfg.APIURL = a.flags.apiURL
	}
	if changed("auth-url") {
		cfg.AuthURL = a.flags.authURL
	}
	if changed("state-dir") {
		cfg.StateDir = a.flags.stateDir
	}
	if changed("db-dsn") {
		cfg.DBDSN = a.flags.dbDSN
	}
	if changed("profile") {
		cfg.Profile = a.flags.profile
	}
	if changed("callback-addr") {
		cfg.CallbackAddr = a.flags.callbackAddr
	}
	if changed("poll-interval") {
		cfg.PollInterval = a.flags.pollInterval
	}
	if changed("no-browser") {
		cfg.NoBrowser = a.flags.noBrowser
	}
}

// opener returns the browser hand-off configured for this run.
func (a *app) opener() *flow.BrowserOpener {
	var opts []flow.BrowserOpenerOption
	if a.cfg.NoBrowser {
		opts = append(opts, flow.WithoutBrowser())
	}
	opts = append(opts, flow.WithQRCode(ui.IsTerminal(a.stdout)))
	return flow.NewBrowserOpener(a.stdout, opts...)
}

// lock takes the callback lock for commands that bind the loopback port.
func (a *app) lock(cmd *cobra.Command) (*lockfile.Lock, error) {
	return lockfile.Acquire(a.cfg.StateDir, cmd.CommandPath())
}

// remoteError turns an expired token into a hint to sign in again.
func (a *app) remoteError(err error) error {
	if rpc.IsUnauthorized(err) {
		return fmt.Errorf("%w; run `salescoach login` again", err)
	}
	return err
}

func (a *app) close() {
	if a.tokens != nil {
		if err := a.tokens.Close(); err != nil {
			slog.Warn("Root.close: failed to close token store", "error", err)
		}
		a.tokens = nil
	}
}
