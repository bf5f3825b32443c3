package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"report-desk/internal/config"
	"report-desk/internal/domain"
	"report-desk/internal/generate"
	"report-desk/internal/jobs"
	"report-desk/internal/logging"
	"report-desk/internal/session"
	"report-desk/internal/telemetry"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	eventJob     = "job:event"
	eventSession = "session:changed"
)

// App wires configuration, session, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Services    *Services
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	logger      *zap.Logger
	closers     []func() error

	// rewireMu orders claiming a run against swapping the service graph, so a
	// run never starts on services that are about to be closed.
	rewireMu sync.Mutex
	notify   func(name string, payload any)

	mu         sync.Mutex
	jobs       *jobs.Manager
	events     *jobs.EventBus
	runtimeCtx context.Context
	wg         sync.WaitGroup
	httpClient *http.Client
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	store := config.NewFileStore(config.DefaultSettingsPath())
	settings, err := LoadSettings(store)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{
		File:    settings.LogFile,
		Level:   settings.LogLevel,
		Console: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), settings.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	app, err := newApp(settings, store, logger, nil)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	app.assets = assets
	app.closers = append(app.closers,
		func() error { return shutdownTracing(context.Background()) },
		closeLog,
	)
	app.Diagnostics = app.Services.Diagnose(context.Background())
	return app, nil
}

// LoadSettings reads persisted settings and overlays .env and environment values.
func LoadSettings(store config.Store) (domain.Settings, error) {
	if err := config.LoadDotEnv(); err != nil {
		return domain.Settings{}, err
	}

	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if settings, err = config.ApplyEnv(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("apply environment: %w", err)
	}
	return config.Normalize(settings), nil
}

// newApp wires services for settings. httpClient may be nil.
func newApp(settings domain.Settings, store config.Store, logger *zap.Logger, httpClient *http.Client) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		Store:      store,
		logger:     logger,
		jobs:       jobs.NewManager(),
		events:     jobs.NewEventBus(1000),
		httpClient: httpClient,
	}
	if err := app.rewire(settings); err != nil {
		return nil, err
	}
	return app, nil
}

// rewire replaces the service graph. The job manager survives so a rewire can
// never bypass the single-flight guard.
func (a *App) rewire(settings domain.Settings) error {
	services, err := OpenServices(settings, ServiceOptions{
		Logger:     a.logger,
		Resolve:    a.resolveDownloadTarget,
		HTTPClient: a.httpClient,
		Jobs:       a.jobs,
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	previous := a.Services
	a.Services = services
	a.Settings = services.Settings
	a.mu.Unlock()

	if err := previous.Close(); err != nil {
		a.logger.Warn("close previous services", zap.Error(err))
	}
	return nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	defer a.Close()

	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Report Desk",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Close waits for a running generation and releases stores, tracing and logs.
func (a *App) Close() error {
	a.wg.Wait()

	var errs []error
	a.mu.Lock()
	services := a.Services
	a.Services = nil
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	if err := services.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register creates an account and signs it in.
func (a *App) Register(name, email, password string) (domain.Session, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	sess, err := a.services().Sessions.Register(ctx, session.RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		return domain.Session{}, err
	}
	a.emit(eventSession, sess)
	return sess, nil
}

// Login signs in, replacing any stored session.
func (a *App) Login(email, password string) (domain.Session, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	sess, err := a.services().Sessions.Login(ctx, email, password)
	if err != nil {
		return domain.Session{}, err
	}
	a.emit(eventSession, sess)
	return sess, nil
}

// Logout clears the stored session.
func (a *App) Logout() {
	a.services().Sessions.Logout()
	a.emit(eventSession, nil)
}

// CurrentSession returns the signed-in session or nil.
func (a *App) CurrentSession() *domain.Session {
	sess, ok := a.services().Sessions.CurrentSession()
	if !ok {
		return nil
	}
	return &sess
}

// IsAuthenticated reports whether a credential is stored.
func (a *App) IsAuthenticated() bool {
	return a.services().Sessions.IsAuthenticated()
}

// GetStats returns the server-wide dashboard counters.
func (a *App) GetStats() (domain.Stats, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.services().API.Stats(ctx)
}

// GenerateFromTopic starts an asynchronous generation from a topic.
func (a *App) GenerateFromTopic(topic, format string) (domain.Job, error) {
	return a.startGeneration(domain.GenerationRequest{
		Mode:         domain.ModeFromTopic,
		SubjectText:  topic,
		OutputFormat: ParseFormat(format),
	})
}

// GenerateFromContent starts an asynchronous generation from pasted content.
func (a *App) GenerateFromContent(title, content, format string) (domain.Job, error) {
	return a.startGeneration(domain.GenerationRequest{
		Mode:         domain.ModeFromContent,
		Title:        strings.TrimSpace(title),
		SubjectText:  content,
		OutputFormat: ParseFormat(format),
	})
}

// startGeneration claims the pipeline and runs it on a goroutine.
func (a *App) startGeneration(req domain.GenerationRequest) (domain.Job, error) {
	a.rewireMu.Lock()
	defer a.rewireMu.Unlock()

	services := a.services()
	run, err := services.Pipeline.Prepare(req)
	if err != nil {
		return a.jobs.Current(), err
	}

	a.wg.Add(1)
	go a.runGeneration(run, services.Sessions)
	return run.Job(), nil
}

// runGeneration executes the claimed run and maps every transition to an event.
// A run that ends with the session cleared, whatever the failure kind, is
// announced as a session change.
func (a *App) runGeneration(run *generate.Run, sessions *session.Manager) {
	defer a.wg.Done()

	signedIn := sessions.IsAuthenticated()
	job, _ := run.Execute(context.Background(), func(job domain.Job) {
		a.publishEvent(jobs.EventFromJob(job))
	})
	if signedIn && !sessions.IsAuthenticated() {
		a.emit(eventSession, nil)
	}
	a.logger.Debug("generation goroutine finished", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
}

// CancelGeneration aborts the running generation, if any.
func (a *App) CancelGeneration() error {
	current := a.jobs.Current()
	if err := a.jobs.Cancel(); err != nil {
		return err
	}
	a.publishEvent(jobs.Event{
		JobID:   current.ID,
		Type:    jobs.EventTypeLog,
		Status:  current.Status,
		Message: "Cancellation requested",
	})
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// JobHistory returns the retained events of one run in publish order.
func (a *App) JobHistory(jobID string) []jobs.Event {
	return a.events.ForJob(jobID)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns the startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	report := a.services().Diagnose(ctx)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return config.Normalize(settings), nil
}

// SaveSettings normalizes and persists settings, rewires services, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized, err := a.applySettings(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if _, err := a.RefreshDiagnostics(); err != nil {
		return domain.Settings{}, err
	}
	return normalized, nil
}

// applySettings persists and rewires while no run can be claimed.
func (a *App) applySettings(settings domain.Settings) (domain.Settings, error) {
	a.rewireMu.Lock()
	defer a.rewireMu.Unlock()

	if a.jobs.IsRunning() {
		return domain.Settings{}, fmt.Errorf("settings cannot change while a report is being generated")
	}

	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := a.rewire(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("apply settings: %w", err)
	}
	return normalized, nil
}

// PickDownloadDirectory opens a native directory picker for downloaded reports.
func (a *App) PickDownloadDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select download folder",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenDownloadsFolder opens the given path (or configured download dir) in file manager.
func (a *App) OpenDownloadsFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.DownloadDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("download path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve download path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// resolveDownloadTarget asks the user where to save through the native dialog.
func (a *App) resolveDownloadTarget(_ context.Context, suggestedName string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	dir := a.Settings.DownloadDir
	a.mu.Unlock()

	return wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save report",
		DefaultDirectory: dir,
		DefaultFilename:  suggestedName,
		Filters:          dialogFiltersFor(suggestedName),
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)
	a.emit(eventJob, published)
}

func (a *App) emit(name string, payload any) {
	if a.notify != nil {
		a.notify(name, payload)
		return
	}

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

func (a *App) services() *Services {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Services
}

// requestContext bounds one UI-initiated call by the request timeout.
func (a *App) requestContext() (context.Context, context.CancelFunc) {
	a.mu.Lock()
	timeout := a.Settings.RequestTimeout
	a.mu.Unlock()
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
