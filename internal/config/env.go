package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"report-desk/internal/domain"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "REPORT_DESK_"

// LoadDotEnv loads .env files into the process environment. Missing files are
// not an error; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays REPORT_DESK_* variables on settings.
func ApplyEnv(settings domain.Settings) (domain.Settings, error) {
	settings.BaseURL = getEnv("BASE_URL", settings.BaseURL)
	settings.DownloadDir = getEnv("DOWNLOAD_DIR", settings.DownloadDir)
	settings.StoreBackend = domain.StoreBackend(getEnv("STORE_BACKEND", string(settings.StoreBackend)))
	settings.StorePath = getEnv("STORE_PATH", settings.StorePath)
	settings.LogFile = getEnv("LOG_FILE", settings.LogFile)
	settings.LogLevel = getEnv("LOG_LEVEL", settings.LogLevel)
	settings.OTLPEndpoint = getEnv("OTLP_ENDPOINT", settings.OTLPEndpoint)

	var err error
	if settings.GenerationTimeout, err = getEnvAsDuration("GENERATION_TIMEOUT", settings.GenerationTimeout); err != nil {
		return settings, err
	}
	if settings.RequestTimeout, err = getEnvAsDuration("REQUEST_TIMEOUT", settings.RequestTimeout); err != nil {
		return settings, err
	}
	if settings.AskWhereToSave, err = getEnvAsBool("ASK_WHERE_TO_SAVE", settings.AskWhereToSave); err != nil {
		return settings, err
	}
	return settings, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return value, nil
}
