package cli

import (
	"fmt"
	"os"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

const (
	envConfig              = "M2INSTALL_CONFIG"
	envLogLevel            = "M2INSTALL_LOG_LEVEL"
	envVars                = "M2INSTALL_VARS"
	envEnvFile             = "M2INSTALL_ENV_FILE"
	envDeleteInstalledData = "M2INSTALL_DELETE_INSTALLED_DATA"
	envIgnoreExitStatus    = "M2INSTALL_IGNORE_EXIT_STATUS"
	envSkip                = "M2INSTALL_SKIP"
)

// baseEnv defines root CLI defaults sourced from M2INSTALL_* env vars.
type baseEnv struct {
	// ConfigPath is the m2install.yaml path from M2INSTALL_CONFIG.
	ConfigPath string `env:"M2INSTALL_CONFIG"`
	// LogLevel is the logging level from M2INSTALL_LOG_LEVEL.
	LogLevel string `env:"M2INSTALL_LOG_LEVEL"`
	// Vars is a k=v,k2=v2 list from M2INSTALL_VARS.
	Vars string `env:"M2INSTALL_VARS"`
	// EnvFiles are .env paths from M2INSTALL_ENV_FILE.
	EnvFiles []string `env:"M2INSTALL_ENV_FILE" envSeparator:","`
	// DeleteInstalledData toggles the delete step from M2INSTALL_DELETE_INSTALLED_DATA.
	DeleteInstalledData bool `env:"M2INSTALL_DELETE_INSTALLED_DATA"`
	// IgnoreExitStatus disables exit status checks from M2INSTALL_IGNORE_EXIT_STATUS.
	IgnoreExitStatus bool `env:"M2INSTALL_IGNORE_EXIT_STATUS"`
	// Skip lists step names from M2INSTALL_SKIP.
	Skip []string `env:"M2INSTALL_SKIP" envSeparator:","`
}

// parseEnv fills target from M2INSTALL_* env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// applyEnvDefaults copies M2INSTALL_* values into opts for every flag not given explicitly.
func applyEnvDefaults(cmd *cobra.Command, opts *Options) error {
	var envCfg baseEnv
	if err := parseEnv(&envCfg); err != nil {
		return fmt.Errorf("parse M2INSTALL_* environment: %w", err)
	}

	flags := cmd.Flags()
	opts.configExplicit = flags.Changed("config")
	opts.deleteSet = flags.Changed("delete-installed-data")

	if !flags.Changed("config") && envPresent(envConfig) {
		opts.ConfigPath = envCfg.ConfigPath
		opts.configExplicit = true
	}
	if !flags.Changed("log-level") && envPresent(envLogLevel) {
		opts.LogLevel = envCfg.LogLevel
	}
	if !flags.Changed("vars") && envPresent(envVars) {
		opts.Vars = envCfg.Vars
	}
	if !flags.Changed("env-file") && envPresent(envEnvFile) {
		opts.EnvFiles = trimList(envCfg.EnvFiles)
	}
	if !flags.Changed("delete-installed-data") && envPresent(envDeleteInstalledData) {
		opts.DeleteInstalledData = envCfg.DeleteInstalledData
		opts.deleteSet = true
	}
	if !flags.Changed("ignore-exit-status") && envPresent(envIgnoreExitStatus) {
		opts.IgnoreExitStatus = envCfg.IgnoreExitStatus
	}
	if !flags.Changed("skip") && envPresent(envSkip) {
		opts.Skip = trimList(envCfg.Skip)
	}
	return nil
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
