// Command reportctl drives the report server from a terminal: sign in,
// generate reports, and save them locally.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"report-desk/internal/bootstrap"
	"report-desk/internal/config"
	"report-desk/internal/logging"
)

var (
	// Global flags
	configPath string
	baseURL    string
	verbose    bool
	timeout    time.Duration

	logger   *zap.Logger
	services *bootstrap.Services
	closeLog func() error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "Generate reports from the command line",
	Long: `reportctl signs in to a report server, asks it to write a report from a
topic or from your own text, and saves the finished document locally.

The session is shared with the desktop app and survives restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: ~/.report-desk/settings.json)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Report server base URL (overrides settings)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Generation timeout (default: from settings)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(formatsCmd)
}

// setup loads settings and wires services for one command invocation.
func setup() error {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = config.DefaultSettingsPath()
	}

	settings, err := bootstrap.LoadSettings(config.NewFileStore(path))
	if err != nil {
		return err
	}
	if baseURL != "" {
		settings.BaseURL = baseURL
	}
	if timeout > 0 {
		settings.GenerationTimeout = timeout
	}
	settings = config.Normalize(settings)

	level := settings.LogLevel
	if verbose {
		level = "debug"
	}
	logger, closeLog, err = logging.New(logging.Options{
		File:    settings.LogFile,
		Level:   level,
		Console: verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	services, err = bootstrap.OpenServices(settings, bootstrap.ServiceOptions{Logger: logger})
	if err != nil {
		_ = closeLog()
		return err
	}
	return nil
}

func teardown() error {
	var err error
	if services != nil {
		err = services.Close()
		services = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = teardown()
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
