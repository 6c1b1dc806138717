package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/schedule"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultLogLevel       = "info"
	defaultReportCron     = "*/15 * * * *"
	defaultReportLookback = "15m"
)

// ControlConfig declares one periodic control.
type ControlConfig struct {
	// ID is the identifier used in logs and the HTTP API.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Period is a simple keyword (yearly, monthly, weekly, daily, hourly)
	// or "customRules".
	Period string `yaml:"period" json:"period"`
	// Rules holds DTSTART/RRULE blocks joined by "---".
	Rules string `yaml:"rules,omitempty" json:"rules,omitempty"`
	// RulesURL points at an ICS feed whose recurring events supply the
	// rules when Rules is empty.
	RulesURL string `yaml:"rules_url,omitempty" json:"rules_url,omitempty"`
	// Wto bounds every custom rule (any format schedule.ParseInstant reads).
	Wto string `yaml:"wto,omitempty" json:"wto,omitempty"`
	// Anchor starts a simple-period schedule for the due reporter.
	Anchor string `yaml:"anchor,omitempty" json:"anchor,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// MaxOccurrences caps the expansion of a single custom rule. Zero
	// disables the cap.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// ReportCron is a standard 5-field cron expression driving the due
	// report.
	ReportCron string `yaml:"report_cron" json:"report_cron"`

	// ReportLookback is how far back each due report looks (Go duration).
	ReportLookback string `yaml:"report_lookback" json:"report_lookback"`

	Controls []ControlConfig `yaml:"controls" json:"controls"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		LogLevel:       defaultLogLevel,
		MaxOccurrences: schedule.DefaultMaxOccurrences,
		ReportCron:     defaultReportCron,
		ReportLookback: defaultReportLookback,
		Controls:       []ControlConfig{},
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.MaxOccurrences < 0 {
		c.MaxOccurrences = 0
	}
	if _, err := cron.ParseStandard(c.ReportCron); err != nil {
		if c.ReportCron != "" {
			appLog.Error("invalid report_cron; using default", err, "report_cron", c.ReportCron)
		}
		c.ReportCron = defaultReportCron
	}
	if d, err := time.ParseDuration(c.ReportLookback); err != nil || d <= 0 {
		c.ReportLookback = defaultReportLookback
	}
	if c.Controls == nil {
		c.Controls = []ControlConfig{}
	}
}

// Lookback returns ReportLookback as a duration.
func (c *Config) Lookback() time.Duration {
	d, err := time.ParseDuration(c.ReportLookback)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultReportLookback)
	}
	return d
}

// Control returns the control with the given ID.
func (c *Config) Control(id string) (ControlConfig, bool) {
	for _, cc := range c.Controls {
		if cc.ID == id {
			return cc, true
		}
	}
	return ControlConfig{}, false
}

// Validate checks that the control can be expanded.
func (cc ControlConfig) Validate() error {
	if strings.TrimSpace(cc.ID) == "" {
		return errors.New("control id is empty")
	}
	if !schedule.IsKnownPeriod(cc.Period) {
		return fmt.Errorf("control %s: unknown period %q", cc.ID, cc.Period)
	}
	if cc.Anchor != "" {
		if _, err := schedule.ParseInstant(cc.Anchor); err != nil {
			return fmt.Errorf("control %s: anchor: %w", cc.ID, err)
		}
	}
	if cc.Period != schedule.CustomRules {
		return nil
	}
	if strings.TrimSpace(cc.Rules) == "" && cc.RulesURL == "" {
		return fmt.Errorf("control %s: customRules needs rules or rules_url", cc.ID)
	}
	if _, err := schedule.ParseInstant(cc.Wto); err != nil {
		return fmt.Errorf("control %s: wto: %w", cc.ID, err)
	}
	return nil
}

// Model converts the control, using rules in place of cc.Rules when the
// rules were fetched from RulesURL.
func (cc ControlConfig) Model(rules string) (model.Control, error) {
	if err := cc.Validate(); err != nil {
		return model.Control{}, err
	}
	out := model.Control{ID: cc.ID, Name: cc.Name, Period: cc.Period}
	if cc.Anchor != "" {
		out.Anchor, _ = schedule.ParseInstant(cc.Anchor)
	}
	if cc.Period != schedule.CustomRules {
		return out, nil
	}
	if rules == "" {
		rules = cc.Rules
	}
	wto, _ := schedule.ParseInstant(cc.Wto)
	out.Custom = &model.CustomConfig{Rules: rules, Wto: wto}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	for _, cc := range cfg.Controls {
		if err := cc.Validate(); err != nil {
			appLog.Error("control will be skipped", err, "id", cc.ID)
		}
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".slawindow-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
