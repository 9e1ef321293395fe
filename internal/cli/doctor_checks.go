package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/database"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

func runDoctorChecks(ctx context.Context, logger *slog.Logger, cfg *config.Config, checkDB bool) error {
	if logger == nil {
		logger = slog.Default()
	}

	var failed []error

	if err := cfg.Validate(); err != nil {
		logger.Error("doctor check failed: configuration", "error", err)
		failed = append(failed, err)
	} else {
		logger.Info("doctor check ok", "check", "configuration")
	}

	for _, tool := range []string{cfg.Project.PHPBinary, cfg.Project.ComposerBinary} {
		if _, err := lookPath(tool); err != nil {
			logger.Error("doctor check failed: missing required tool", "tool", tool, "error", err)
			failed = append(failed, fmt.Errorf("%s not found in PATH: %w", tool, err))
			continue
		}
		logger.Info("doctor check ok", "tool", tool)
	}

	for _, rel := range []string{"composer.json", filepath.Join("bin", "magento")} {
		path := filepath.Join(cfg.Project.Root, rel)
		if _, err := os.Stat(path); err != nil {
			logger.Error("doctor check failed: project file", "path", path, "error", err)
			failed = append(failed, fmt.Errorf("project file %s: %w", path, err))
			continue
		}
		logger.Info("doctor check ok", "path", path)
	}

	if checkDB {
		admin := database.NewAdmin(cfg.Database, database.WithLogger(logger))
		err := admin.Ping(ctx)
		if relErr := admin.Release(); relErr != nil {
			logger.Warn("release database connection", "error", relErr)
		}
		if err != nil {
			logger.Error("doctor check failed: database", "host", cfg.Database.Host, "error", err)
			failed = append(failed, fmt.Errorf("database ping: %w", err))
		} else {
			logger.Info("doctor check ok", "check", "database", "host", cfg.Database.Host)
		}
	}

	return errors.Join(failed...)
}
