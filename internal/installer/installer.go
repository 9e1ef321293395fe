// Package installer assembles the Magento reinstall pipeline from a Configuration Set.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mage2-devtools/m2install/internal/cleanup"
	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/database"
	"github.com/mage2-devtools/m2install/internal/logging"
	"github.com/mage2-devtools/m2install/internal/magento"
	"github.com/mage2-devtools/m2install/internal/pipeline"
	"github.com/mage2-devtools/m2install/internal/readiness"
	"github.com/mage2-devtools/m2install/internal/shell"
)

// Step names, in pipeline order.
const (
	StepValidateConfig      = "validate-config"
	StepDeleteInstalledData = "delete-installed-data"
	StepComposerInstall     = "composer-install"
	StepPrepareDatabase     = "prepare-database"
	StepInstallMagento      = "install-magento"
	StepSetDeployMode       = "set-deploy-mode"
	StepSetConfigurations   = "set-configurations"
	StepCloseDatabase       = "close-database-connection"
)

// StepNames lists every step in pipeline order.
var StepNames = []string{
	StepValidateConfig,
	StepDeleteInstalledData,
	StepComposerInstall,
	StepPrepareDatabase,
	StepInstallMagento,
	StepSetDeployMode,
	StepSetConfigurations,
	StepCloseDatabase,
}

// Magento is the external tooling driven by the install steps.
type Magento interface {
	ComposerInstall(ctx context.Context) error
	SetupInstall(ctx context.Context, params []string) error
	SetDeployMode(ctx context.Context, mode config.DeployMode) error
	ConfigSet(ctx context.Context, path string, value config.Value) error
}

// Database is the administrative connection used by the provisioning step.
type Database interface {
	Ping(ctx context.Context) error
	CreateDatabase(ctx context.Context, name string) error
	Release() error
}

// Cleaner removes the previous installation artifacts.
type Cleaner func() (cleanup.Result, error)

// Installer owns the configuration and the collaborators of one run.
type Installer struct {
	cfg       *config.Config
	console   *logging.Console
	logger    *slog.Logger
	magento   Magento
	db        Database
	cleaner   Cleaner
	sleeper   readiness.Sleeper
	retryable func(error) bool
}

// Option replaces a collaborator.
type Option func(*Installer)

// WithMagento replaces the composer/bin/magento client.
func WithMagento(m Magento) Option {
	return func(in *Installer) { in.magento = m }
}

// WithDatabase replaces the administrative database connection.
func WithDatabase(db Database) Option {
	return func(in *Installer) { in.db = db }
}

// WithCleaner replaces the artifact cleanup.
func WithCleaner(c Cleaner) Option {
	return func(in *Installer) { in.cleaner = c }
}

// WithSleeper replaces the readiness timer.
func WithSleeper(s readiness.Sleeper) Option {
	return func(in *Installer) { in.sleeper = s }
}

// WithRetryable replaces the classifier of retryable readiness failures.
func WithRetryable(fn func(error) bool) Option {
	return func(in *Installer) { in.retryable = fn }
}

// New constructs an Installer. Collaborators not replaced by options are the
// real ones: shell commands, MySQL and the filesystem.
func New(cfg *config.Config, console *logging.Console, logger *slog.Logger, opts ...Option) (*Installer, error) {
	if cfg == nil {
		return nil, errors.New("configuration is nil")
	}
	if console == nil {
		console = logging.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}

	in := &Installer{
		cfg:       cfg,
		console:   console,
		logger:    logger,
		retryable: database.IsUnreachable,
	}
	for _, opt := range opts {
		opt(in)
	}

	if in.magento == nil {
		runner := shell.NewExec(console.Logger(), cfg.Project.CheckExitStatus)
		in.magento = magento.NewClient(runner, cfg.Project)
	}
	if in.db == nil {
		in.db = database.NewAdmin(cfg.Database, database.WithLogger(logger))
	}
	if in.cleaner == nil {
		plan := cleanup.DefaultPlan(cfg.Project.Root)
		in.cleaner = func() (cleanup.Result, error) { return plan.Execute(logger) }
	}
	return in, nil
}

// Pipeline builds the step list. The delete step follows
// Project.DeleteInstalledData and Project.SkipSteps disables steps by name.
func (in *Installer) Pipeline() (*pipeline.Runner, error) {
	steps := []pipeline.Step{
		{Name: StepValidateConfig, Run: in.validateConfig, Enabled: true, Mandatory: true},
		{Name: StepDeleteInstalledData, Run: in.deleteInstalledData, Enabled: in.cfg.Project.DeleteInstalledData},
		{Name: StepComposerInstall, Run: in.composerInstall, Enabled: true},
		{Name: StepPrepareDatabase, Run: in.prepareDatabase, Enabled: true},
		{Name: StepInstallMagento, Run: in.installMagento, Enabled: true},
		{Name: StepSetDeployMode, Run: in.setDeployMode, Enabled: true},
		{Name: StepSetConfigurations, Run: in.setConfigurations, Enabled: true},
		{Name: StepCloseDatabase, Run: in.closeDatabase, Enabled: true},
	}

	runner, err := pipeline.New(in.console, in.logger, steps...)
	if err != nil {
		return nil, err
	}
	for _, name := range in.cfg.Project.SkipSteps {
		if err := runner.SetEnabled(name, false); err != nil {
			return nil, &config.ValidationError{Key: "skip_steps", Value: name, Reason: err.Error()}
		}
	}
	return runner, nil
}

// Run executes the whole pipeline. The database handle is released when the
// run ends, whatever the outcome.
func (in *Installer) Run(ctx context.Context) error {
	runner, err := in.Pipeline()
	if err != nil {
		return err
	}
	defer func() {
		if relErr := in.db.Release(); relErr != nil {
			in.logger.Warn("release database connection", "error", relErr)
		}
	}()
	return runner.Run(ctx)
}

// Release closes the database handle if one is held.
func (in *Installer) Release() error {
	return in.db.Release()
}

// Validate runs only the configuration validation.
func (in *Installer) Validate() error {
	return in.validateConfig(context.Background())
}

// WaitForDatabase blocks until the database answers or the readiness budget is spent.
func (in *Installer) WaitForDatabase(ctx context.Context) error {
	budget := in.cfg.Project.ReadinessBudget
	in.console.Line(fmt.Sprintf("Wait DB availability maximum %d seconds...", int(budget/time.Second)))

	opts := []readiness.Option{
		readiness.WithInterval(in.cfg.Project.ReadinessInterval),
		readiness.WithRetryable(in.retryable),
		readiness.WithBeforeProbe(func(attempt int, remaining time.Duration) {
			in.console.Line("Ping DB connection ....")
			in.logger.Debug("probing database", "attempt", attempt, "remaining", remaining)
		}),
		readiness.WithOnFailure(func(err error) {
			in.logger.Debug("database probe failed", "error", err)
			if relErr := in.db.Release(); relErr != nil {
				in.logger.Warn("release database connection", "error", relErr)
			}
		}),
	}
	if in.sleeper != nil {
		opts = append(opts, readiness.WithSleeper(in.sleeper))
	}

	if err := readiness.New(budget, opts...).Wait(ctx, in.db.Ping); err != nil {
		return fmt.Errorf("something went wrong with the database: %w", err)
	}
	return nil
}

func (in *Installer) validateConfig(context.Context) error {
	in.console.Message("Start validate required config.")
	if err := in.cfg.Validate(); err != nil {
		return err
	}
	in.console.Message("Finish validate required config.")
	return nil
}

func (in *Installer) deleteInstalledData(context.Context) error {
	in.console.Message("Start delete old data.")
	res, err := in.cleaner()
	if err != nil {
		return fmt.Errorf("delete installed data: %w", err)
	}
	in.logger.Debug("old data deleted", "removed", res.Removed, "kept", len(res.Kept))
	in.console.Message("Finish delete old data.")
	return nil
}

func (in *Installer) composerInstall(ctx context.Context) error {
	in.console.Message("Start install composer.")
	if err := in.magento.ComposerInstall(ctx); err != nil {
		return fmt.Errorf("composer install: %w", err)
	}
	in.console.Message("Finish install composer.")
	return nil
}

func (in *Installer) prepareDatabase(ctx context.Context) error {
	in.console.Message("Start install DB.")
	if err := in.WaitForDatabase(ctx); err != nil {
		return err
	}
	if err := in.db.CreateDatabase(ctx, in.cfg.Required.MainDBName); err != nil {
		return err
	}
	if name := in.cfg.Additional.IntegrationTestsDBName; name != "" {
		if err := in.db.CreateDatabase(ctx, name); err != nil {
			return err
		}
	}
	in.console.Message("Finish install DB.")
	return nil
}

func (in *Installer) installMagento(ctx context.Context) error {
	in.console.Message("Start install magento.")
	if err := in.magento.SetupInstall(ctx, magento.InstallParams(in.cfg)); err != nil {
		return fmt.Errorf("setup:install: %w", err)
	}
	in.console.Message("Finish install magento.")
	return nil
}

func (in *Installer) setDeployMode(ctx context.Context) error {
	in.console.Message("Start set deploy mode.")
	if err := in.magento.SetDeployMode(ctx, in.cfg.Additional.DeployMode); err != nil {
		return fmt.Errorf("deploy:mode:set: %w", err)
	}
	in.console.Message("Finish set deploy mode.")
	return nil
}

func (in *Installer) setConfigurations(ctx context.Context) error {
	in.console.Message("Start set configurations.")
	for _, s := range in.cfg.Configurations {
		in.console.Line(fmt.Sprintf("=====> Set config %s with value %s", s.Path, s.Value))
		if err := in.magento.ConfigSet(ctx, s.Path, s.Value); err != nil {
			return fmt.Errorf("config:set %s: %w", s.Path, err)
		}
	}
	in.console.Message("Finish set configurations.")
	return nil
}

func (in *Installer) closeDatabase(context.Context) error {
	return in.db.Release()
}
