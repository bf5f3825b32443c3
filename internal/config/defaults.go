package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"report-desk/internal/domain"
)

const (
	// AppDirName is the per-user directory holding settings, session store and logs.
	AppDirName = ".report-desk"

	DefaultBaseURL           = "http://localhost:8080/api"
	DefaultGenerationTimeout = 5 * time.Minute
	DefaultRequestTimeout    = 2 * time.Minute
	DefaultLogLevel          = "info"
)

// AppDir returns the per-user application directory.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// DefaultSettingsPath is where the desktop app and CLI look for settings.
func DefaultSettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	appDir := AppDir()

	return domain.Settings{
		BaseURL:           DefaultBaseURL,
		DownloadDir:       filepath.Join(homeDir, "Downloads"),
		StoreBackend:      domain.StoreBackendFile,
		StorePath:         filepath.Join(appDir, "session.json"),
		GenerationTimeout: DefaultGenerationTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		LogFile:           filepath.Join(appDir, "logs", "report-desk.log"),
		LogLevel:          DefaultLogLevel,
	}
}

// Normalize trims user input and fills empty fields with defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if settings.BaseURL == "" {
		settings.BaseURL = defaults.BaseURL
	}
	settings.DownloadDir = strings.TrimSpace(settings.DownloadDir)
	if settings.DownloadDir == "" {
		settings.DownloadDir = defaults.DownloadDir
	}

	settings.StoreBackend = domain.StoreBackend(strings.ToLower(strings.TrimSpace(string(settings.StoreBackend))))
	if settings.StoreBackend == "" {
		settings.StoreBackend = defaults.StoreBackend
	}
	settings.StorePath = strings.TrimSpace(settings.StorePath)
	if settings.StorePath == "" {
		settings.StorePath = defaultStorePath(settings.StoreBackend)
	}

	if settings.GenerationTimeout <= 0 {
		settings.GenerationTimeout = defaults.GenerationTimeout
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = defaults.RequestTimeout
	}
	settings.LogFile = strings.TrimSpace(settings.LogFile)
	if settings.LogFile == "" {
		settings.LogFile = defaults.LogFile
	}
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	settings.OTLPEndpoint = strings.TrimSpace(settings.OTLPEndpoint)

	return settings
}

func defaultStorePath(backend domain.StoreBackend) string {
	switch backend {
	case domain.StoreBackendSQLite:
		return filepath.Join(AppDir(), "session.db")
	case domain.StoreBackendMemory:
		return ""
	default:
		return filepath.Join(AppDir(), "session.json")
	}
}
