// Package config loads the engine configuration: a single YAML file
// merged over working defaults, so every command runs with no file
// present at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Crack strategies for multiple wordlists.
const (
	StrategyFirstMatch = "first-match"
	StrategyExhaustive = "exhaustive"
)

// Config is the full engine configuration.
type Config struct {
	// SessionsRoot is the directory holding all session workspaces.
	SessionsRoot string `yaml:"sessions_root"`

	// RetentionDays bounds session age for the explicit prune command.
	// Sessions are never removed implicitly.
	RetentionDays int `yaml:"retention_days"`

	Capture CaptureConfig `yaml:"capture"`
	Active  ActiveConfig  `yaml:"active"`
	Crack   CrackConfig   `yaml:"crack"`
	Vendor  VendorConfig  `yaml:"vendor"`
}

// CaptureConfig tunes the passive and capture modules.
type CaptureConfig struct {
	// Window is the default capture duration when the caller gives none.
	Window time.Duration `yaml:"window"`

	// DeauthCount is the number of deauth frames per burst.
	DeauthCount int `yaml:"deauth_count"`

	// DeauthBursts is how many bursts to send before re-checking the
	// capture for a handshake.
	DeauthBursts int `yaml:"deauth_bursts"`

	// DeauthInterval paces the bursts.
	DeauthInterval time.Duration `yaml:"deauth_interval"`

	// VerifyAttempts is how many capture/verify rounds run before the
	// module gives up with "no handshake captured".
	VerifyAttempts int `yaml:"verify_attempts"`
}

// ActiveConfig tunes the active scan module.
type ActiveConfig struct {
	// Ports is the nmap port specification. Empty scans nmap's default
	// top ports.
	Ports string `yaml:"ports"`

	// PingWorkers sizes the fallback ping sweep pool used when nmap is
	// not installed.
	PingWorkers int `yaml:"ping_workers"`

	// StageTimeout bounds each scan stage.
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// CrackConfig tunes the offline cracking module.
type CrackConfig struct {
	// Tool selects the cracking engine: aircrack-ng or hashcat.
	Tool string `yaml:"tool"`

	// Wordlists are tried in order. Explicit --wordlist flags take
	// precedence over this list.
	Wordlists []string `yaml:"wordlists"`

	// WordlistDirs are scanned for candidate lists when neither flags
	// nor Wordlists resolve to an existing file.
	WordlistDirs []string `yaml:"wordlist_dirs"`

	// Strategy decides what happens after a wordlist succeeds:
	// first-match stops, exhaustive keeps going through the rest.
	Strategy string `yaml:"strategy"`
}

// VendorConfig tunes MAC vendor enrichment of wireless findings.
type VendorConfig struct {
	// Lookup enables the vendor API. Lookups run only after capture
	// ends, never while an interface is in monitor mode.
	Lookup bool `yaml:"lookup"`

	// Endpoint is the lookup API base URL.
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is given. Every
// value works out of the box on a stock Kali-style install.
func Default() *Config {
	return &Config{
		SessionsRoot:  "sessions",
		RetentionDays: 90,
		Capture: CaptureConfig{
			Window:         60 * time.Second,
			DeauthCount:    5,
			DeauthBursts:   3,
			DeauthInterval: 5 * time.Second,
			VerifyAttempts: 3,
		},
		Active: ActiveConfig{
			PingWorkers:  32,
			StageTimeout: 10 * time.Minute,
		},
		Crack: CrackConfig{
			Tool:         "aircrack-ng",
			Wordlists:    []string{"/usr/share/wordlists/rockyou.txt"},
			WordlistDirs: []string{"/usr/share/wordlists"},
			Strategy:     StrategyFirstMatch,
		},
		Vendor: VendorConfig{
			Lookup:   true,
			Endpoint: "https://api.macvendors.com",
		},
	}
}

// Load reads path and merges it over the defaults. An empty path
// returns the defaults unchanged; a missing file is an error because
// the operator asked for it explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.SessionsRoot == "" {
		return fmt.Errorf("sessions_root must not be empty")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.Capture.Window <= 0 {
		return fmt.Errorf("capture.window must be positive")
	}
	if c.Capture.DeauthCount < 1 {
		return fmt.Errorf("capture.deauth_count must be at least 1")
	}
	switch c.Crack.Strategy {
	case StrategyFirstMatch, StrategyExhaustive:
	default:
		return fmt.Errorf("crack.strategy must be %q or %q", StrategyFirstMatch, StrategyExhaustive)
	}
	switch c.Crack.Tool {
	case "aircrack-ng", "hashcat":
	default:
		return fmt.Errorf("crack.tool must be aircrack-ng or hashcat")
	}
	return nil
}

// Retention converts RetentionDays to a duration for the prune command.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
