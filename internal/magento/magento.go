// Package magento drives composer and the bin/magento command-line tool.
package magento

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/shell"
)

// Client wraps the external commands run against one Magento root.
type Client struct {
	runner   shell.Runner
	root     string
	php      string
	composer string
}

// NewClient constructs a Client for the project.
func NewClient(runner shell.Runner, project config.Project) *Client {
	php := project.PHPBinary
	if php == "" {
		php = "php"
	}
	composer := project.ComposerBinary
	if composer == "" {
		composer = "composer"
	}
	return &Client{
		runner:   runner,
		root:     project.Root,
		php:      php,
		composer: composer,
	}
}

// BinMagento returns the path of the bin/magento script.
func (c *Client) BinMagento() string {
	return filepath.Join(c.root, "bin", "magento")
}

// ComposerInstall runs composer install in the Magento root.
func (c *Client) ComposerInstall(ctx context.Context) error {
	return c.runner.Run(ctx, shell.Command{
		Name: c.composer,
		Args: []string{"install"},
		Dir:  c.root,
	})
}

// SetupInstall runs bin/magento setup:install with params.
func (c *Client) SetupInstall(ctx context.Context, params []string) error {
	return c.magento(ctx, append([]string{"setup:install"}, params...)...)
}

// SetDeployMode runs bin/magento deploy:mode:set.
func (c *Client) SetDeployMode(ctx context.Context, mode config.DeployMode) error {
	return c.magento(ctx, "deploy:mode:set", string(mode))
}

// ConfigSet runs bin/magento config:set for one setting.
func (c *Client) ConfigSet(ctx context.Context, path string, value config.Value) error {
	return c.magento(ctx, "config:set", path, value.String())
}

func (c *Client) magento(ctx context.Context, args ...string) error {
	return c.runner.Run(ctx, shell.Command{
		Name: c.php,
		Args: append([]string{c.BinMagento()}, args...),
		Dir:  c.root,
	})
}

// InstallParams derives the setup:install parameters from cfg.
func InstallParams(cfg *config.Config) []string {
	dbHost := cfg.Database.Host
	if cfg.Database.Port != 0 && cfg.Database.Port != 3306 {
		dbHost = fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	}

	params := []string{
		"--base-url=" + cfg.Required.MagentoBaseURL,
		"--db-host=" + dbHost,
		"--db-name=" + cfg.Required.MainDBName,
		"--db-user=" + cfg.Database.User,
		"--db-password=" + cfg.Database.Password,
		"--admin-firstname=" + cfg.Install.AdminFirstname,
		"--admin-lastname=" + cfg.Install.AdminLastname,
		"--admin-email=" + cfg.Required.AdminUserEmail,
		"--admin-user=" + cfg.Required.AdminUserName,
		"--admin-password=" + cfg.Required.AdminUserPassword,
		"--language=" + cfg.Install.Language,
		"--currency=" + cfg.Install.Currency,
		"--timezone=" + cfg.Install.Timezone,
		"--use-rewrites=" + boolFlag(cfg.Install.UseRewrites),
	}
	if cfg.Install.CleanupDatabase {
		params = append(params, "--cleanup-database")
	}
	params = append(params, "--backend-frontname="+cfg.Install.BackendFrontname)
	return params
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
