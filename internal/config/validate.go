package config

import (
	"fmt"
	"regexp"
	"strings"
)

// DeployMode is a Magento deployment mode.
type DeployMode string

const (
	// DeployModeDefault is Magento's out-of-the-box mode.
	DeployModeDefault DeployMode = "default"
	// DeployModeDeveloper disables static file caching and enables verbose errors.
	DeployModeDeveloper DeployMode = "developer"
	// DeployModeProduction serves precompiled assets.
	DeployModeProduction DeployMode = "production"
)

// DeployModes lists the recognized deploy modes.
var DeployModes = []DeployMode{DeployModeDefault, DeployModeDeveloper, DeployModeProduction}

// Valid reports whether m is one of DeployModes.
func (m DeployMode) Valid() bool {
	for _, known := range DeployModes {
		if m == known {
			return true
		}
	}
	return false
}

// baseURLPattern requires an http(s) scheme followed by a host of letters, digits and dots.
var baseURLPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9.]+`)

// ValidationError reports a configuration value that blocks the run.
type ValidationError struct {
	// Key is the offending configuration key.
	Key string
	// Value is the offending value, empty for missing values.
	Value string
	// Reason describes the rule that failed.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration %s %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration %s %s, current value: %q", e.Key, e.Reason, e.Value)
}

// Validate checks the required group, the base URL and the deploy mode.
// It stops at the first problem.
func (c *Config) Validate() error {
	for _, f := range c.Required.Fields() {
		if strings.TrimSpace(f.Value) == "" {
			return &ValidationError{Key: f.Key, Reason: "is required"}
		}
	}

	if err := ValidateBaseURL(c.Required.MagentoBaseURL); err != nil {
		return err
	}

	if !c.Additional.DeployMode.Valid() {
		return &ValidationError{
			Key:    "deploy_mode",
			Value:  string(c.Additional.DeployMode),
			Reason: fmt.Sprintf("must be one of %s", joinModes(DeployModes)),
		}
	}

	return nil
}

// ValidateBaseURL checks that url starts with http:// or https:// followed by a host.
func ValidateBaseURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return &ValidationError{Key: "magento_base_url", Reason: "is required"}
	}
	if !baseURLPattern.MatchString(url) {
		return &ValidationError{
			Key:    "magento_base_url",
			Value:  url,
			Reason: "must contain protocol http(s)",
		}
	}
	return nil
}

func joinModes(modes []DeployMode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
