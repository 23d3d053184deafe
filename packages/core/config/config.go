// Package config loads run configuration from a YAML file and merges it
// with command line flags. JSON configs load through the same path since
// YAML is a superset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-level run configuration. Durations accept Go syntax
// ("30s", "250ms") so the unit is always explicit.
type Config struct {
	Timeout         string            `yaml:"timeout,omitempty"`
	ConnectTimeout  string            `yaml:"connectTimeout,omitempty"`
	Retries         int               `yaml:"retries,omitempty"`
	RetryInterval   string            `yaml:"retryInterval,omitempty"`
	Delay           string            `yaml:"delay,omitempty"`
	FollowRedirects *bool             `yaml:"followRedirects,omitempty"`
	MaxRedirects    int               `yaml:"maxRedirects,omitempty"`
	Insecure        *bool             `yaml:"insecure,omitempty"`
	Proxy           string            `yaml:"proxy,omitempty"`
	Jobs            int               `yaml:"jobs,omitempty"`
	Repeat          int               `yaml:"repeat,omitempty"`
	Rate            float64           `yaml:"rate,omitempty"`
	FailFast        *bool             `yaml:"failFast,omitempty"`
	ContinueOnError *bool             `yaml:"continueOnError,omitempty"`
	Verbose         *bool             `yaml:"verbose,omitempty"`
	NoColor         *bool             `yaml:"noColor,omitempty"`
	CookieInput     string            `yaml:"cookieInput,omitempty"`
	CookieOutput    string            `yaml:"cookieOutput,omitempty"`
	ReportJSON      string            `yaml:"reportJson,omitempty"`
	ReportJUnit     string            `yaml:"reportJunit,omitempty"`
	HistoryDB       string            `yaml:"historyDb,omitempty"`
	Variables       map[string]string `yaml:"variables,omitempty"`
	Secrets         map[string]string `yaml:"secrets,omitempty"`
}

// BoolPtr returns a pointer to b, for building configs programmatically.
func BoolPtr(b bool) *bool { return &b }

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

func (c *Config) GetFollowRedirects() bool { return getBool(c.FollowRedirects, false) }
func (c *Config) GetInsecure() bool        { return getBool(c.Insecure, false) }
func (c *Config) GetFailFast() bool        { return getBool(c.FailFast, false) }
func (c *Config) GetContinueOnError() bool { return getBool(c.ContinueOnError, false) }
func (c *Config) GetVerbose() bool         { return getBool(c.Verbose, false) }
func (c *Config) GetNoColor() bool         { return getBool(c.NoColor, false) }

// Duration parses one of the duration fields, returning fallback when the
// field is empty.
func Duration(field string, fallback time.Duration) (time.Duration, error) {
	if field == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(field)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", field, err)
	}
	return d, nil
}

// ConfigFilenames are searched in order when no explicit path is given.
var ConfigFilenames = []string{
	".reqflow.yaml",
	".reqflow.yml",
	"reqflow.yaml",
	"reqflow.yml",
}

// Load reads configuration from path, or searches the current directory
// when path is empty. A missing explicit path is an error; no file found
// during search just yields defaults.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}
	return FindAndLoad(".")
}

// FindAndLoad searches dir for a known config filename.
func FindAndLoad(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		p := filepath.Join(dir, filename)
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}
	return &Config{}, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Merge merges other into c with other taking precedence. Boolean flags
// only override when explicitly set.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}
	result := *c

	if other.Timeout != "" {
		result.Timeout = other.Timeout
	}
	if other.ConnectTimeout != "" {
		result.ConnectTimeout = other.ConnectTimeout
	}
	if other.Retries != 0 {
		result.Retries = other.Retries
	}
	if other.RetryInterval != "" {
		result.RetryInterval = other.RetryInterval
	}
	if other.Delay != "" {
		result.Delay = other.Delay
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Jobs > 0 {
		result.Jobs = other.Jobs
	}
	if other.Repeat != 0 {
		result.Repeat = other.Repeat
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.CookieInput != "" {
		result.CookieInput = other.CookieInput
	}
	if other.CookieOutput != "" {
		result.CookieOutput = other.CookieOutput
	}
	if other.ReportJSON != "" {
		result.ReportJSON = other.ReportJSON
	}
	if other.ReportJUnit != "" {
		result.ReportJUnit = other.ReportJUnit
	}
	if other.HistoryDB != "" {
		result.HistoryDB = other.HistoryDB
	}

	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.Insecure != nil {
		result.Insecure = other.Insecure
	}
	if other.FailFast != nil {
		result.FailFast = other.FailFast
	}
	if other.ContinueOnError != nil {
		result.ContinueOnError = other.ContinueOnError
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Variables) > 0 {
		if result.Variables == nil {
			result.Variables = make(map[string]string)
		}
		for k, v := range other.Variables {
			result.Variables[k] = v
		}
	}
	if len(other.Secrets) > 0 {
		if result.Secrets == nil {
			result.Secrets = make(map[string]string)
		}
		for k, v := range other.Secrets {
			result.Secrets[k] = v
		}
	}
	return &result
}
