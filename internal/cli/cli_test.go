package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/logging"
)

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	opts := &Options{ConfigPath: defaultConfigPath, LogLevel: logging.LevelInfo.String()}
	cmd := newRootCommand(opts, nil)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m2install.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// stepStates parses the "steps" output into name -> state.
func stepStates(t *testing.T, out string) (map[string]string, []string) {
	t.Helper()
	states := map[string]string{}
	var order []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 3, "line %q", line)
		states[fields[1]] = fields[2]
		order = append(order, fields[1])
	}
	return states, order
}

func TestSteps_DefaultsWithoutConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	out, _, err := executeCommand(t, "steps")
	require.NoError(t, err)

	states, order := stepStates(t, out)
	assert.Equal(t, []string{
		"validate-config",
		"delete-installed-data",
		"composer-install",
		"prepare-database",
		"install-magento",
		"set-deploy-mode",
		"set-configurations",
		"close-database-connection",
	}, order)
	assert.Equal(t, "mandatory", states["validate-config"])
	assert.Equal(t, "disabled", states["delete-installed-data"])
	assert.Equal(t, "enabled", states["composer-install"])
}

func TestSteps_FlagsAndEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(envSkip, "composer-install, set-deploy-mode")

	out, _, err := executeCommand(t, "steps", "--delete-installed-data")
	require.NoError(t, err)

	states, _ := stepStates(t, out)
	assert.Equal(t, "enabled", states["delete-installed-data"])
	assert.Equal(t, "disabled", states["composer-install"])
	assert.Equal(t, "disabled", states["set-deploy-mode"])
	assert.Equal(t, "enabled", states["set-configurations"])
}

func TestSteps_FlagBeatsEnvironment(t *testing.T) {
	path := writeConfig(t, "project:\n  delete_installed_data: true\n")
	t.Setenv(envDeleteInstalledData, "true")

	out, _, err := executeCommand(t, "steps", "--config", path, "--delete-installed-data=false")
	require.NoError(t, err)

	states, _ := stepStates(t, out)
	assert.Equal(t, "disabled", states["delete-installed-data"])
}

func TestSteps_SkipValidationRejected(t *testing.T) {
	chdir(t, t.TempDir())

	_, _, err := executeCommand(t, "steps", "--skip", "validate-config")
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "skip_steps", vErr.Key)
}

func TestExplicitMissingConfigFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	_, _, err := executeCommand(t, "validate", "--config", missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConfigPathFromEnvironmentMustExist(t *testing.T) {
	t.Setenv(envConfig, filepath.Join(t.TempDir(), "absent.yaml"))

	_, _, err := executeCommand(t, "validate")
	require.Error(t, err)
}

func TestValidate_MissingAdminEmail(t *testing.T) {
	path := writeConfig(t, "required:\n  admin_user_email: \"\"\n")

	out, _, err := executeCommand(t, "validate", "--config", path)
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "admin_user_email", vErr.Key)
	assert.Contains(t, out, "Start validate required config.")
	assert.NotContains(t, out, "Finish validate required config.")
}

func TestValidate_OK(t *testing.T) {
	path := writeConfig(t, "required:\n  magento_base_url: https://shop.local:8443/\n")

	out, stderr, err := executeCommand(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Finish validate required config.")
	assert.Contains(t, stderr, "configuration is valid")
}

func TestConfig_PrintsEffectiveConfiguration(t *testing.T) {
	path := writeConfig(t, `env_files: [shop.env]
required:
  main_db_name: '{{ envOr "SHOP_DB" "fallback" }}'
  admin_user_password: secret
configurations:
  web/seo/use_rewrites: 1
  dev/js/merge_files: "yes"
  catalog/search/engine: opensearch
`)
	envPath := filepath.Join(filepath.Dir(path), "shop.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SHOP_DB=from_env_file\n"), 0o600))

	out, _, err := executeCommand(t, "config", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "main_db_name: from_env_file")
	assert.Contains(t, out, maskedSecret)
	assert.NotContains(t, out, "secret")

	first := strings.Index(out, "web/seo/use_rewrites: 1")
	second := strings.Index(out, "dev/js/merge_files:")
	third := strings.Index(out, "catalog/search/engine: opensearch")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	require.NotEqual(t, -1, third)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
	assert.NotContains(t, out, "admin/security/session_lifetime")
}

func TestConfig_InlineVarsOverrideEnvFiles(t *testing.T) {
	path := writeConfig(t, "required:\n  main_db_name: '{{ envOr \"SHOP_DB\" \"fallback\" }}'\n")

	out, _, err := executeCommand(t, "config", "--config", path, "--vars", "SHOP_DB=inline", "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, out, "main_db_name: inline")
	assert.Contains(t, out, "admin_user_password: 123123q")
}

func TestLoadConfigFromCmd_Overrides(t *testing.T) {
	path := writeConfig(t, "project:\n  skip_steps: [set-deploy-mode]\n")
	opts := &Options{
		ConfigPath:       path,
		IgnoreExitStatus: true,
		Skip:             []string{"set-deploy-mode", "composer-install"},
		configExplicit:   true,
	}

	cfg, err := loadConfigFromCmd(opts)
	require.NoError(t, err)
	assert.False(t, cfg.Project.CheckExitStatus)
	assert.False(t, cfg.Project.DeleteInstalledData)
	assert.Equal(t, []string{"set-deploy-mode", "composer-install"}, cfg.Project.SkipSteps)
}

func TestDoctor(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }

	root := t.TempDir()
	path := writeConfig(t, "project:\n  root: "+root+"\n")

	_, stderr, err := executeCommand(t, "doctor", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composer.json")
	assert.Contains(t, stderr, "doctor check ok")

	require.NoError(t, os.WriteFile(filepath.Join(root, "composer.json"), []byte("{}"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "magento"), []byte("<?php\n"), 0o700))

	_, stderr, err = executeCommand(t, "doctor", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "doctor checks completed successfully")
}

func TestDoctor_MissingTool(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(file string) (string, error) {
		if file == "composer" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + file, nil
	}

	cfg := config.Default()
	cfg.Project.Root = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Project.Root, "composer.json"), []byte("{}"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Project.Root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Project.Root, "bin", "magento"), nil, 0o700))

	err := runDoctorChecks(context.Background(), nil, cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composer not found in PATH")
	assert.NotContains(t, err.Error(), "php")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
