package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mage2-devtools/m2install/internal/cleanup"
	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/logging"
	"github.com/mage2-devtools/m2install/internal/pipeline"
	"github.com/mage2-devtools/m2install/internal/readiness"
)

// journal records every collaborator call in order.
type journal struct {
	calls []string
}

func (j *journal) add(format string, args ...any) {
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

type fakeMagento struct {
	j        *journal
	failOn   string
	failWith error
	values   []config.Value
}

func (m *fakeMagento) fail(op string) error {
	if m.failOn == op {
		return m.failWith
	}
	return nil
}

func (m *fakeMagento) ComposerInstall(context.Context) error {
	m.j.add("composer install")
	return m.fail("composer")
}

func (m *fakeMagento) SetupInstall(_ context.Context, params []string) error {
	m.j.add("setup:install %d params", len(params))
	return m.fail("setup")
}

func (m *fakeMagento) SetDeployMode(_ context.Context, mode config.DeployMode) error {
	m.j.add("deploy:mode:set %s", mode)
	return m.fail("deploy")
}

func (m *fakeMagento) ConfigSet(_ context.Context, path string, value config.Value) error {
	m.values = append(m.values, value)
	m.j.add("config:set %s %s", path, value)
	return m.fail("config")
}

type fakeDB struct {
	j              *journal
	unreachableFor int
	pingErr        error
	pings          int
	releases       int
	created        map[string]int
}

func (d *fakeDB) Ping(context.Context) error {
	d.pings++
	d.j.add("ping")
	if d.pingErr != nil {
		return d.pingErr
	}
	if d.pings <= d.unreachableFor {
		return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	}
	return nil
}

func (d *fakeDB) CreateDatabase(_ context.Context, name string) error {
	if d.created == nil {
		d.created = map[string]int{}
	}
	d.created[name]++
	d.j.add("create %s", name)
	return nil
}

func (d *fakeDB) Release() error {
	d.releases++
	d.j.add("release")
	return nil
}

type fixture struct {
	j       *journal
	magento *fakeMagento
	db      *fakeDB
	sleeps  []time.Duration
	cleaned int
	out     *bytes.Buffer
}

func newFixture() *fixture {
	j := &journal{}
	return &fixture{
		j:       j,
		magento: &fakeMagento{j: j},
		db:      &fakeDB{j: j},
		out:     &bytes.Buffer{},
	}
}

func (f *fixture) installer(t *testing.T, cfg *config.Config) *Installer {
	t.Helper()
	in, err := New(cfg, logging.NewConsole(f.out, logging.LevelInfo), nil,
		WithMagento(f.magento),
		WithDatabase(f.db),
		WithCleaner(func() (cleanup.Result, error) {
			f.cleaned++
			f.j.add("cleanup")
			return cleanup.Result{}, nil
		}),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	)
	require.NoError(t, err)
	return in
}

func TestRun_DefaultPipeline(t *testing.T) {
	f := newFixture()
	in := f.installer(t, config.Default())

	require.NoError(t, in.Run(context.Background()))

	assert.Equal(t, []string{
		"composer install",
		"ping",
		"create dev_magento2ce",
		"create dev_magento2ce_integration",
		"setup:install 16 params",
		"deploy:mode:set developer",
		"config:set admin/security/admin_account_sharing 1",
		"config:set admin/security/session_lifetime 9000",
		"config:set admin/security/min_time_between_password_reset_requests 0",
		"config:set system/smtp/disable 1",
		"config:set cms/wysiwyg/enabled disabled",
		"release",
		"release",
	}, f.j.calls)
	assert.Zero(t, f.cleaned, "delete step is disabled by default")

	out := f.out.String()
	assert.Contains(t, out, "-------- STEP 1/7 --------")
	assert.Contains(t, out, "-------- STEP 7/7 --------")
	assert.NotContains(t, out, "STEP 8/")
	assert.Contains(t, out, "=====> Set config admin/security/session_lifetime with value 9000")
	assert.Contains(t, out, "Wait DB availability maximum 300 seconds...")
	assert.Less(t, strings.Index(out, "Start validate required config."), strings.Index(out, "Start install composer."))
}

func TestRun_NumericCoercionOfSettings(t *testing.T) {
	f := newFixture()
	cfg := config.Default()
	cfg.Configurations = config.Settings{
		config.NewSetting("admin/security/session_lifetime", "9000"),
		config.NewSetting("cms/wysiwyg/enabled", "disabled"),
	}
	require.NoError(t, f.installer(t, cfg).Run(context.Background()))

	require.Len(t, f.magento.values, 2)
	assert.True(t, f.magento.values[0].IsInt())
	assert.Equal(t, int64(9000), f.magento.values[0].Int())
	assert.False(t, f.magento.values[1].IsInt())
	assert.Equal(t, "disabled", f.magento.values[1].String())
}

func TestRun_DeleteStepEnabled(t *testing.T) {
	f := newFixture()
	cfg := config.Default()
	cfg.Project.DeleteInstalledData = true

	require.NoError(t, f.installer(t, cfg).Run(context.Background()))

	assert.Equal(t, 1, f.cleaned)
	assert.Equal(t, "cleanup", f.j.calls[0])
	assert.Equal(t, "composer install", f.j.calls[1])
	assert.Contains(t, f.out.String(), "-------- STEP 8/8 --------")
}

func TestRun_MissingRequiredStopsEverything(t *testing.T) {
	f := newFixture()
	cfg := config.Default()
	cfg.Project.DeleteInstalledData = true
	cfg.Required.AdminUserEmail = ""

	err := f.installer(t, cfg).Run(context.Background())
	require.Error(t, err)

	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "admin_user_email", vErr.Key)

	var stepErr *pipeline.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepValidateConfig, stepErr.Step)

	assert.Equal(t, []string{"release"}, f.j.calls, "only the deferred release runs")
	assert.Zero(t, f.cleaned)
	assert.NotContains(t, f.out.String(), "Finish validate required config.")
}

func TestRun_WaitsForDatabase(t *testing.T) {
	f := newFixture()
	f.db.unreachableFor = 4

	require.NoError(t, f.installer(t, config.Default()).Run(context.Background()))

	assert.Equal(t, 5, f.db.pings)
	assert.Len(t, f.sleeps, 4)
	assert.Equal(t, 1, f.db.created["dev_magento2ce"])
	// four releases after failed probes, then the close step and the deferred release
	assert.Equal(t, 6, f.db.releases)
	assert.Equal(t, 5, strings.Count(f.out.String(), "Ping DB connection ...."))
}

func TestRun_DatabaseNeverReachable(t *testing.T) {
	f := newFixture()
	f.db.unreachableFor = 1 << 30

	err := f.installer(t, config.Default()).Run(context.Background())
	require.Error(t, err)

	var exhausted *readiness.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 100, f.db.pings)
	assert.Len(t, f.sleeps, 99)
	assert.Empty(t, f.db.created)
	assert.NotContains(t, f.j.calls, "setup:install 16 params")
}

func TestRun_DatabaseFatalProbeError(t *testing.T) {
	f := newFixture()
	f.db.pingErr = errors.New("Error 1045: Access denied")

	err := f.installer(t, config.Default()).Run(context.Background())

	var fatal *readiness.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, f.db.pings)
	assert.Empty(t, f.sleeps)
}

func TestRun_NoSecondaryDatabase(t *testing.T) {
	f := newFixture()
	cfg := config.Default()
	cfg.Additional.IntegrationTestsDBName = ""

	require.NoError(t, f.installer(t, cfg).Run(context.Background()))
	assert.Equal(t, map[string]int{"dev_magento2ce": 1}, f.db.created)
}

func TestRun_CommandFailureAbortsRemainingSteps(t *testing.T) {
	f := newFixture()
	f.magento.failOn = "setup"
	f.magento.failWith = errors.New("exit status 1")

	err := f.installer(t, config.Default()).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, f.magento.failWith)

	var stepErr *pipeline.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepInstallMagento, stepErr.Step)
	assert.Equal(t, 4, stepErr.Index)

	for _, call := range f.j.calls {
		assert.NotContains(t, call, "deploy:mode:set")
		assert.NotContains(t, call, "config:set")
	}
	assert.Equal(t, "release", f.j.calls[len(f.j.calls)-1])
}

func TestPipeline_SkipSteps(t *testing.T) {
	f := newFixture()
	cfg := config.Default()
	cfg.Project.SkipSteps = []string{StepComposerInstall, StepSetConfigurations}

	require.NoError(t, f.installer(t, cfg).Run(context.Background()))
	assert.NotContains(t, f.j.calls, "composer install")
	for _, call := range f.j.calls {
		assert.NotContains(t, call, "config:set")
	}
	assert.Contains(t, f.out.String(), "STEP 5/5")
}

func TestPipeline_SkipRejectsValidationAndUnknown(t *testing.T) {
	for _, name := range []string{StepValidateConfig, "bogus"} {
		f := newFixture()
		cfg := config.Default()
		cfg.Project.SkipSteps = []string{name}

		_, err := f.installer(t, cfg).Pipeline()
		var vErr *config.ValidationError
		require.ErrorAs(t, err, &vErr, "skip %q", name)
		assert.Equal(t, "skip_steps", vErr.Key)
	}
}

func TestPipeline_StepOrder(t *testing.T) {
	runner, err := newFixture().installer(t, config.Default()).Pipeline()
	require.NoError(t, err)

	names := make([]string, 0, len(StepNames))
	for _, s := range runner.Steps() {
		names = append(names, s.Name)
	}
	assert.Equal(t, StepNames, names)
	assert.Equal(t, StepValidateConfig, runner.Active()[0].Name)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
}

func TestNew_DefaultCollaborators(t *testing.T) {
	in, err := New(config.Default(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, in.magento)
	assert.NotNil(t, in.db)
	assert.NotNil(t, in.cleaner)
}

func TestValidate(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.installer(t, config.Default()).Validate())
	assert.Empty(t, f.j.calls)

	cfg := config.Default()
	cfg.Required.MagentoBaseURL = "mage2.local"
	err := f.installer(t, cfg).Validate()
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "magento_base_url", vErr.Key)
}
