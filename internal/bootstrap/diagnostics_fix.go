package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"report-desk/internal/config"
	"report-desk/internal/domain"
)

// FixDiagnostic applies a local remediation for one failed diagnostic item.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}
	if a.jobs.IsRunning() {
		return a.GetDiagnostics(), fmt.Errorf("diagnostics cannot be fixed while a report is being generated")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.GetSettings()
	if err != nil {
		return domain.DiagnosticReport{}, err
	}

	var fixErr error
	switch domain.DiagnosticID(id) {
	case domain.DiagnosticDownloadDir:
		settings, fixErr = fixDownloadDir(settings)
	case domain.DiagnosticSessionStore:
		settings, fixErr = fixSessionStore(settings, time.Now())
	case domain.DiagnosticServer, domain.DiagnosticSession:
		return a.GetDiagnostics(), fmt.Errorf("%s cannot be fixed automatically", id)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if fixErr != nil {
		report, _ := a.RefreshDiagnostics()
		return report, fixErr
	}

	if _, err := a.SaveSettings(settings); err != nil {
		report, _ := a.RefreshDiagnostics()
		return report, err
	}
	a.logger.Info("diagnostic fixed", zap.String("item", id))
	return a.GetDiagnostics(), nil
}

// fixDownloadDir creates the configured download folder, falling back to the
// default folder when none is set.
func fixDownloadDir(settings domain.Settings) (domain.Settings, error) {
	dir := strings.TrimSpace(settings.DownloadDir)
	if dir == "" {
		dir = config.DefaultSettings().DownloadDir
		settings.DownloadDir = dir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return settings, fmt.Errorf("create download directory %s: %w", dir, err)
	}
	return settings, nil
}

// fixSessionStore moves an unreadable store file aside so a fresh one is
// created. A memory store is switched to the file backend.
func fixSessionStore(settings domain.Settings, now time.Time) (domain.Settings, error) {
	if settings.StoreBackend == domain.StoreBackendMemory {
		settings.StoreBackend = domain.StoreBackendFile
		settings.StorePath = ""
		return config.Normalize(settings), nil
	}

	path := strings.TrimSpace(settings.StorePath)
	if path == "" {
		return settings, fmt.Errorf("session store path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("check session store: %w", err)
	}

	aside := fmt.Sprintf("%s.broken-%s", path, now.UTC().Format("20060102-150405"))
	if err := os.Rename(path, aside); err != nil {
		return settings, fmt.Errorf("move session store aside: %w", err)
	}
	return settings, nil
}
