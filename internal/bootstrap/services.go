package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"report-desk/internal/client"
	"report-desk/internal/config"
	"report-desk/internal/diagnostics"
	"report-desk/internal/domain"
	"report-desk/internal/download"
	"report-desk/internal/generate"
	"report-desk/internal/jobs"
	"report-desk/internal/session"
	"report-desk/internal/storage"
)

// Services is the core object graph shared by the desktop app and the CLI.
type Services struct {
	Settings domain.Settings
	Logger   *zap.Logger
	Store    storage.Store
	API      *client.Client
	Sessions *session.Manager
	Saver    *download.Executor
	Pipeline *generate.Pipeline
	Checker  *diagnostics.Checker
}

// ServiceOptions customizes how the graph is wired.
type ServiceOptions struct {
	Logger *zap.Logger
	// Resolve, when set, is asked for each download destination.
	Resolve download.TargetResolver
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Jobs carries single-flight state across rewiring.
	Jobs *jobs.Manager
}

// OpenServices wires the store, gateways, session manager, download executor and pipeline.
func OpenServices(settings domain.Settings, opts ServiceOptions) (*Services, error) {
	settings = config.Normalize(settings)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.Open(settings.StoreBackend, settings.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	// No client-wide Timeout: request_timeout bounds single calls through their
	// context and generation_timeout bounds a whole run.
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	// Login and register go through the anonymous gateway; everything else is
	// bound to the session credential.
	anonymous := client.New(settings.BaseURL, httpClient, logger)
	sessions := session.NewManager(store, anonymous, logger)
	authenticated := anonymous.WithCredentials(sessions)

	saver := download.NewExecutor(settings.DownloadDir, logger)
	if settings.AskWhereToSave && opts.Resolve != nil {
		saver = saver.WithResolver(opts.Resolve)
	}

	pipeline := generate.NewPipeline(authenticated, sessions, saver, opts.Jobs, generate.Options{
		Timeout: settings.GenerationTimeout,
		Logger:  logger,
	})

	return &Services{
		Settings: settings,
		Logger:   logger,
		Store:    store,
		API:      authenticated,
		Sessions: sessions,
		Saver:    saver,
		Pipeline: pipeline,
		Checker:  diagnostics.NewChecker(sessions),
	}, nil
}

// Diagnose runs the startup checks against the wired settings.
func (s *Services) Diagnose(ctx context.Context) domain.DiagnosticReport {
	return s.Checker.Run(ctx, s.Settings)
}

// Close releases the session store.
func (s *Services) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("close session store: %w", err)
	}
	return nil
}
