// Package config loads SalesCoach settings.
//
// Settings are layered, later layers overriding earlier ones: built-in defaults, a .env
// file, SALESCOACH_* environment variables, an optional YAML file, and finally the
// command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/util"
)

// Default configuration constants
const (
	// DefaultAPIURL is the backend used when none is configured
	DefaultAPIURL = "http://localhost:8001"
	// DefaultStateDirName is the state directory under the user's home
	DefaultStateDirName = ".salescoach"
	// DefaultCallbackAddr is the loopback address of the callback server
	DefaultCallbackAddr = "127.0.0.1:8765"
	// DefaultConfigFileName is looked up in the state directory when --config is not given
	DefaultConfigFileName = "config.yaml"
)

// Environment variables
const (
	EnvAPIURL       = "SALESCOACH_API_URL"
	EnvAuthURL      = "SALESCOACH_AUTH_URL"
	EnvStateDir     = "SALESCOACH_STATE_DIR"
	EnvDBDSN        = "SALESCOACH_DB_DSN"
	EnvProfile      = "SALESCOACH_PROFILE"
	EnvCallbackAddr = "SALESCOACH_CALLBACK_ADDR"
	EnvDemoDomains  = "SALESCOACH_DEMO_DOMAINS"
	EnvPollInterval = "SALESCOACH_POLL_INTERVAL"
	EnvDebug        = "SALESCOACH_DEBUG"
	EnvNoBrowser    = "SALESCOACH_NO_BROWSER"
)

// Config holds the resolved settings.
type Config struct {
	APIURL           string        `yaml:"api_url"`
	AuthURL          string        `yaml:"auth_url"`
	StateDir         string        `yaml:"state_dir"`
	DBDSN            string        `yaml:"db_dsn"`
	Profile          string        `yaml:"profile"`
	CallbackAddr     string        `yaml:"callback_addr"`
	DemoDomains      []string      `yaml:"demo_domains"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	FeedbackAttempts int           `yaml:"feedback_attempts"`
	PaymentAttempts  int           `yaml:"payment_attempts"`
	Debug            bool          `yaml:"debug"`
	NoBrowser        bool          `yaml:"no_browser"`

	// Simulation is an optional preset used by `simulate` instead of the wizard.
	Simulation *models.SimulationConfig `yaml:"simulation,omitempty"`
}

// Default returns the built-in defaults.
func Default() Config {
	stateDir := DefaultStateDirName
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, DefaultStateDirName)
	}
	return Config{
		APIURL:           DefaultAPIURL,
		StateDir:         stateDir,
		CallbackAddr:     DefaultCallbackAddr,
		DemoDomains:      append([]string(nil), flow.DefaultDemoDomains...),
		PollInterval:     flow.DefaultPollInterval,
		FeedbackAttempts: flow.DefaultFeedbackAttempts,
		PaymentAttempts:  flow.DefaultPaymentAttempts,
	}
}

// Load resolves defaults, the .env file, the environment and the YAML file. An empty
// envFile loads ./.env if present; an empty configPath loads config.yaml from the
// state directory if present. An explicit configPath must exist.
func Load(envFile, configPath string) (Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil {
			slog.Debug("Config.Load: no .env file loaded", "error", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(cfg.StateDir, DefaultConfigFileName)
	}
	if err := cfg.applyFile(configPath); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config.Load: no config file", "path", configPath)
		} else {
			return Config{}, err
		}
	}

	slog.Debug("Config.Load: configuration resolved",
		"api_url", cfg.APIURL,
		"state_dir", cfg.StateDir,
		"dsn_set", cfg.DBDSN != "",
		"callback_addr", cfg.CallbackAddr,
		"poll_interval", cfg.PollInterval)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.APIURL, EnvAPIURL)
	setString(&c.AuthURL, EnvAuthURL)
	setString(&c.StateDir, EnvStateDir)
	setString(&c.DBDSN, EnvDBDSN)
	setString(&c.Profile, EnvProfile)
	setString(&c.CallbackAddr, EnvCallbackAddr)

	if v := os.Getenv(EnvDemoDomains); v != "" {
		c.DemoDomains = SplitList(v)
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = d
	}
	c.Debug = util.ParseBoolEnv(EnvDebug, c.Debug)
	c.NoBrowser = util.ParseBoolEnv(EnvNoBrowser, c.NoBrowser)
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	slog.Debug("Config.applyFile: loaded", "path", path)
	return nil
}

// Validate checks the resolved settings.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api_url is required"))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.FeedbackAttempts <= 0 || c.PaymentAttempts <= 0 {
		errs = append(errs, errors.New("attempt budgets must be positive"))
	}
	return errors.Join(errs...)
}

// ParseInterval accepts Go durations ("2s") and bare milliseconds ("2000").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("interval must be positive")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d, nil
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadSimulation reads a simulation preset from a YAML file.
func LoadSimulation(path string) (models.SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SimulationConfig{}, fmt.Errorf("failed to read simulation file: %w", err)
	}
	var sim models.SimulationConfig
	if err := yaml.Unmarshal(data, &sim); err != nil {
		return models.SimulationConfig{}, fmt.Errorf("failed to parse simulation file %s: %w", path, err)
	}
	return sim, nil
}
