// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	autoerr "github.com/richardlaurits/butti-journey/pkg/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUTONOMY_DATA_DIR.
const EnvPrefix = "AUTONOMY"

// Config is the top-level autonomy configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Storage    StorageConfig    `mapstructure:"storage"`
	KillSwitch KillSwitchConfig `mapstructure:"kill_switch"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Cooldowns  CooldownsConfig  `mapstructure:"cooldowns"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Server     ServerConfig     `mapstructure:"server"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// KillSwitchConfig locates the kill-switch flag file.
type KillSwitchConfig struct {
	Path string `mapstructure:"path"`
}

// BreakerConfig sets the circuit breaker policy.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	DownMinutes      int `mapstructure:"down_minutes"`
}

// CooldownsConfig sets the marker cooldown windows, in hours.
type CooldownsConfig struct {
	SideEffectHours float64 `mapstructure:"side_effect_hours"`
	RecoveryHours   float64 `mapstructure:"recovery_hours"`
	DuplicateHours  float64 `mapstructure:"duplicate_hours"`
}

// ExecutorConfig bounds executor bookkeeping.
type ExecutorConfig struct {
	EvidenceMaxChars int `mapstructure:"evidence_max_chars"`
}

// LoggingConfig controls the process logger and the durable action log.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// WatchdogConfig drives the health sweep.
type WatchdogConfig struct {
	RulesFile               string         `mapstructure:"rules_file"`
	SubordinatesDir         string         `mapstructure:"subordinates_dir"`
	SubordinateTimeoutHours float64        `mapstructure:"subordinate_timeout_hours"`
	Skip                    []string       `mapstructure:"skip"`
	Jobs                    []JobSpec      `mapstructure:"jobs"`
	Probes                  []ProbeSpec    `mapstructure:"probes"`
	Conflicts               []ConflictSpec `mapstructure:"conflicts"`
	CacheTTLMinutes         int            `mapstructure:"cache_ttl_minutes"`
	HandlerTimeoutSeconds   int            `mapstructure:"handler_timeout_seconds"`
	RecoveryLogMaxEntries   int            `mapstructure:"recovery_log_max_entries"`
}

// JobSpec names a scheduled job and where its last run can be observed.
// A LastRunFile's mtime wins over the newest entry of LogFile.
type JobSpec struct {
	Name            string  `mapstructure:"name"`
	Schedule        string  `mapstructure:"schedule"`
	LastRunFile     string  `mapstructure:"last_run_file"`
	LogFile         string  `mapstructure:"log_file"`
	StaleAfterHours float64 `mapstructure:"stale_after_hours"`
}

// ProbeSpec runs a command; the flag is true when it exits 0 and its
// output contains Contains (if set).
type ProbeSpec struct {
	Name     string   `mapstructure:"name"`
	Command  []string `mapstructure:"command"`
	Contains string   `mapstructure:"contains"`
}

// ConflictSpec flags a configuration conflict: the flag is true when any
// line of Path matches Pattern.
type ConflictSpec struct {
	Name    string `mapstructure:"name"`
	Path    string `mapstructure:"path"`
	Pattern string `mapstructure:"pattern"`
}

// DashboardConfig controls the dashboard projection.
type DashboardConfig struct {
	RecentMarkers  int `mapstructure:"recent_markers"`
	BlockedActions int `mapstructure:"blocked_actions"`
	RefreshSeconds int `mapstructure:"refresh_seconds"`
}

// ServerConfig controls the read-only HTTP API.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.openclaw")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("kill_switch.path", "")
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.down_minutes", 60)
	v.SetDefault("cooldowns.side_effect_hours", 24)
	v.SetDefault("cooldowns.recovery_hours", 6)
	v.SetDefault("cooldowns.duplicate_hours", 6)
	v.SetDefault("executor.evidence_max_chars", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("watchdog.rules_file", "")
	v.SetDefault("watchdog.subordinates_dir", "")
	v.SetDefault("watchdog.subordinate_timeout_hours", 48)
	v.SetDefault("watchdog.skip", []string{"watchdog-agent"})
	v.SetDefault("watchdog.cache_ttl_minutes", 30)
	v.SetDefault("watchdog.handler_timeout_seconds", 60)
	v.SetDefault("watchdog.recovery_log_max_entries", 1000)
	v.SetDefault("dashboard.recent_markers", 10)
	v.SetDefault("dashboard.blocked_actions", 5)
	v.SetDefault("dashboard.refresh_seconds", 5)
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
}

// SetupEnv enables AUTONOMY_-prefixed environment overrides.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix AUTONOMY_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, autoerr.Errorf(autoerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes, resolves, and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, autoerr.Errorf(autoerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	cfg.Resolve()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, autoerr.Errorf(autoerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Resolve expands "~" and fills paths that default to locations inside
// DataDir.
func (c *Config) Resolve() {
	c.DataDir = ExpandHome(c.DataDir)

	inData := func(p *string, rel ...string) {
		if *p == "" {
			*p = filepath.Join(append([]string{c.DataDir}, rel...)...)
			return
		}
		*p = ExpandHome(*p)
	}
	inData(&c.KillSwitch.Path, "KILL_SWITCH")
	inData(&c.Logging.File, "autonomy.log")
	inData(&c.Watchdog.RulesFile, "watchdog", "rules.yaml")
	inData(&c.Watchdog.SubordinatesDir, "agents")

	for i := range c.Watchdog.Jobs {
		c.Watchdog.Jobs[i].LastRunFile = ExpandHome(c.Watchdog.Jobs[i].LastRunFile)
		c.Watchdog.Jobs[i].LogFile = ExpandHome(c.Watchdog.Jobs[i].LogFile)
	}
	for i := range c.Watchdog.Conflicts {
		c.Watchdog.Conflicts[i].Path = ExpandHome(c.Watchdog.Conflicts[i].Path)
	}
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateCore()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateWatchdog()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func invalid(format string, args ...any) error {
	return autoerr.Errorf(autoerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateCore() []error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, invalid("data_dir must not be empty"))
	}

	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("storage.backend must be one of [file, sqlite], got %q", c.Storage.Backend))
	}

	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, invalid("breaker.failure_threshold must be greater than 0, got %d", c.Breaker.FailureThreshold))
	}
	if c.Breaker.DownMinutes <= 0 {
		errs = append(errs, invalid("breaker.down_minutes must be greater than 0, got %d", c.Breaker.DownMinutes))
	}

	for key, hours := range map[string]float64{
		"cooldowns.side_effect_hours": c.Cooldowns.SideEffectHours,
		"cooldowns.recovery_hours":    c.Cooldowns.RecoveryHours,
		"cooldowns.duplicate_hours":   c.Cooldowns.DuplicateHours,
	} {
		if hours <= 0 {
			errs = append(errs, invalid("%s must be greater than 0, got %g", key, hours))
		}
	}

	if c.Executor.EvidenceMaxChars <= 0 {
		errs = append(errs, invalid("executor.evidence_max_chars must be greater than 0, got %d", c.Executor.EvidenceMaxChars))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

func (c *Config) validateWatchdog() []error {
	var errs []error
	w := c.Watchdog

	if w.SubordinateTimeoutHours <= 0 {
		errs = append(errs, invalid("watchdog.subordinate_timeout_hours must be greater than 0, got %g", w.SubordinateTimeoutHours))
	}
	if w.CacheTTLMinutes < 0 {
		errs = append(errs, invalid("watchdog.cache_ttl_minutes must not be negative, got %d", w.CacheTTLMinutes))
	}
	if w.HandlerTimeoutSeconds <= 0 {
		errs = append(errs, invalid("watchdog.handler_timeout_seconds must be greater than 0, got %d", w.HandlerTimeoutSeconds))
	}
	if w.RecoveryLogMaxEntries <= 0 {
		errs = append(errs, invalid("watchdog.recovery_log_max_entries must be greater than 0, got %d", w.RecoveryLogMaxEntries))
	}

	seen := map[string]bool{}
	for i, job := range w.Jobs {
		if job.Name == "" {
			errs = append(errs, invalid("watchdog.jobs[%d].name must not be empty", i))
			continue
		}
		if seen[job.Name] {
			errs = append(errs, invalid("watchdog.jobs[%d].name %q is duplicated", i, job.Name))
		}
		seen[job.Name] = true
		if job.LastRunFile == "" && job.LogFile == "" {
			errs = append(errs, invalid("watchdog.jobs[%d] (%s) needs last_run_file or log_file", i, job.Name))
		}
		if job.StaleAfterHours < 0 {
			errs = append(errs, invalid("watchdog.jobs[%d].stale_after_hours must not be negative", i))
		}
	}

	for i, p := range w.Probes {
		if p.Name == "" || len(p.Command) == 0 {
			errs = append(errs, invalid("watchdog.probes[%d] needs a name and a command", i))
		}
	}
	for i, cf := range w.Conflicts {
		if cf.Name == "" || cf.Path == "" || cf.Pattern == "" {
			errs = append(errs, invalid("watchdog.conflicts[%d] needs name, path, and pattern", i))
		}
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, autoerr.Errorf(autoerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

// DownDuration returns the breaker DOWN period.
func (c *Config) DownDuration() time.Duration {
	return time.Duration(c.Breaker.DownMinutes) * time.Minute
}

// SideEffectCooldown returns the per-target side-effect cooldown.
func (c *Config) SideEffectCooldown() time.Duration { return hours(c.Cooldowns.SideEffectHours) }

// RecoveryCooldown returns the cooldown for non-side-effect actions.
func (c *Config) RecoveryCooldown() time.Duration { return hours(c.Cooldowns.RecoveryHours) }

// DuplicateWindow returns the duplicate-remediation window.
func (c *Config) DuplicateWindow() time.Duration { return hours(c.Cooldowns.DuplicateHours) }

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
