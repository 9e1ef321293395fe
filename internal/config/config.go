// Package config contains the loader and strongly typed model for m2install.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mage2-devtools/m2install/internal/env"
)

// Config is the Configuration Set of a reinstall run.
// It is built once at startup and never mutated afterwards.
type Config struct {
	// EnvFiles lists .env files loaded before the file is rendered.
	EnvFiles []string `yaml:"env_files,omitempty"`
	// Required holds the values that must be present before any step runs.
	Required Required `yaml:"required"`
	// Configurations are applied with bin/magento config:set after install, in order.
	Configurations Settings `yaml:"configurations"`
	// Additional holds the deploy mode and the secondary database.
	Additional Additional `yaml:"additional"`
	// Database is the administrative database endpoint.
	Database Database `yaml:"database"`
	// Install holds the fixed setup:install parameters not covered by Required.
	Install Install `yaml:"install"`
	// Project describes the Magento checkout and the tooling around it.
	Project Project `yaml:"project"`
}

// Required contains the settings validated before the pipeline starts.
type Required struct {
	// MagentoBaseURL is the storefront base URL; the protocol is mandatory.
	MagentoBaseURL string `yaml:"magento_base_url"`
	// AdminUserName is the admin login.
	AdminUserName string `yaml:"admin_user_name"`
	// AdminUserPassword is the admin password.
	AdminUserPassword string `yaml:"admin_user_password"`
	// AdminUserEmail is the admin e-mail address.
	AdminUserEmail string `yaml:"admin_user_email"`
	// MainDBName is the application database name.
	MainDBName string `yaml:"main_db_name"`
}

// Field is a named required value.
type Field struct {
	Key   string
	Value string
}

// Fields returns the required values in their fixed validation order.
func (r Required) Fields() []Field {
	return []Field{
		{Key: "magento_base_url", Value: r.MagentoBaseURL},
		{Key: "admin_user_name", Value: r.AdminUserName},
		{Key: "admin_user_password", Value: r.AdminUserPassword},
		{Key: "admin_user_email", Value: r.AdminUserEmail},
		{Key: "main_db_name", Value: r.MainDBName},
	}
}

// Additional contains optional settings of the run.
type Additional struct {
	// IntegrationTestsDBName is a secondary database created next to the main one when set.
	IntegrationTestsDBName string `yaml:"integration_tests_db_name"`
	// DeployMode is passed to bin/magento deploy:mode:set.
	DeployMode DeployMode `yaml:"deploy_mode"`
}

// Database describes the administrative MySQL endpoint.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Install holds setup:install parameters that are not part of Required.
type Install struct {
	AdminFirstname   string `yaml:"admin_firstname"`
	AdminLastname    string `yaml:"admin_lastname"`
	Language         string `yaml:"language"`
	Currency         string `yaml:"currency"`
	Timezone         string `yaml:"timezone"`
	UseRewrites      bool   `yaml:"use_rewrites"`
	CleanupDatabase  bool   `yaml:"cleanup_database"`
	BackendFrontname string `yaml:"backend_frontname"`
}

// Project describes where Magento lives and how the pipeline treats it.
type Project struct {
	// Root is the absolute Magento root directory.
	Root string `yaml:"root"`
	// PHPBinary runs bin/magento.
	PHPBinary string `yaml:"php_binary"`
	// ComposerBinary runs composer install.
	ComposerBinary string `yaml:"composer_binary"`
	// DeleteInstalledData enables the delete-installed-data step.
	DeleteInstalledData bool `yaml:"delete_installed_data"`
	// CheckExitStatus makes a non-zero exit of an external command fatal.
	CheckExitStatus bool `yaml:"check_exit_status"`
	// SkipSteps lists step names left out of the run.
	SkipSteps []string `yaml:"skip_steps,omitempty"`
	// ReadinessBudget bounds the database readiness wait.
	ReadinessBudget time.Duration `yaml:"readiness_budget"`
	// ReadinessInterval is the pause between two readiness probes.
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
}

// Default returns the Configuration Set used when no file overrides it.
func Default() *Config {
	return &Config{
		Required: Required{
			MagentoBaseURL:    "http://mage2.local",
			AdminUserName:     "admin",
			AdminUserPassword: "123123q",
			AdminUserEmail:    "adminb@admin.com",
			MainDBName:        "dev_magento2ce",
		},
		Configurations: Settings{
			NewSetting("admin/security/admin_account_sharing", "1"),
			NewSetting("admin/security/session_lifetime", "9000"),
			NewSetting("admin/security/min_time_between_password_reset_requests", "0"),
			NewSetting("system/smtp/disable", "1"),
			NewSetting("cms/wysiwyg/enabled", "disabled"),
		},
		Additional: Additional{
			IntegrationTestsDBName: "dev_magento2ce_integration",
			DeployMode:             DeployModeDeveloper,
		},
		Database: Database{
			Host:     "magento2_mysql",
			Port:     3306,
			User:     "root",
			Password: "root",
		},
		Install: Install{
			AdminFirstname:   "Admin",
			AdminLastname:    "Adminov",
			Language:         "en_US",
			Currency:         "USD",
			Timezone:         "America/Chicago",
			UseRewrites:      true,
			CleanupDatabase:  true,
			BackendFrontname: "admin",
		},
		Project: Project{
			Root:              "/var/www/magento2",
			PHPBinary:         "php",
			ComposerBinary:    "composer",
			CheckExitStatus:   true,
			ReadinessBudget:   300 * time.Second,
			ReadinessInterval: 3 * time.Second,
		},
	}
}

// LoadOptions influences how the configuration file is rendered.
type LoadOptions struct {
	// UserVars are inline variables available to the template and overriding env files.
	UserVars env.Vars
	// EnvFiles are extra .env files loaded after the ones listed in the file.
	EnvFiles []string
	// AllowMissing returns Default() when the file does not exist.
	AllowMissing bool
}

// TemplateContext is the data exposed to the Go-template rendering of m2install.yaml.
type TemplateContext struct {
	// ConfigDir is the directory containing the configuration file.
	ConfigDir string
	// EnvMap merges OS env, env files and user variables.
	EnvMap env.Vars
	// Now is the timestamp captured for template rendering.
	Now time.Time
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	EnvFiles []string `yaml:"env_files"`
}

// Load reads, renders and parses the configuration file at path on top of Default().
func Load(path string, opts LoadOptions) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		if opts.AllowMissing && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	envFileVars, err := env.LoadEnvFiles(baseDir, append(header.EnvFiles, opts.EnvFiles...))
	if err != nil {
		return nil, err
	}

	ctx := TemplateContext{
		ConfigDir: baseDir,
		EnvMap:    env.Merge(env.FromOS(), envFileVars, opts.UserVars),
		Now:       time.Now().UTC(),
	}

	rendered, err := RenderTemplate(filepath.Base(absPath), rawBytes, ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(rendered)
	if err != nil {
		return nil, fmt.Errorf("parse rendered %s: %w", filepath.Base(absPath), err)
	}

	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(baseDir, cfg.Project.Root)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default(). Keys absent from data keep their default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RenderTemplate renders text content with the configuration template helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the template functions available in m2install.yaml.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default": funcDef,
		"toLower": strings.ToLower,
		"envOr":   funcEnvOr(ctx.EnvMap),
	}
}

// funcDef returns def when value is empty or whitespace, otherwise value.
func funcDef(def, value string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcEnvOr returns a function that looks up a key in envMap and falls back to def.
func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}
