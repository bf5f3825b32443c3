package bootstrap

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"report-desk/internal/domain"
	"report-desk/internal/jobs"
)

// fakeStore keeps settings in memory for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

// Load returns the last saved settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saves++
	return nil
}

// fakeBackend is a minimal report server.
type fakeBackend struct {
	mu       sync.Mutex
	hits     map[string]int
	generate http.HandlerFunc
	download http.HandlerFunc
	release  chan struct{}
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	backend := &fakeBackend{hits: map[string]int{}, release: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
		backend.hit(r)
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret1" {
			http.Error(w, `{"message":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token":"tok-1","id":7,"name":"Ada","email":"`+body.Email+`"}`)
	})
	mux.HandleFunc("/reports/generate", func(w http.ResponseWriter, r *http.Request) {
		backend.hit(r)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		backend.mu.Lock()
		handler := backend.generate
		backend.mu.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		_, _ = io.WriteString(w, "Report generated: reports/solar.pdf")
	})
	mux.HandleFunc("/reports/download/", func(w http.ResponseWriter, r *http.Request) {
		backend.hit(r)
		backend.mu.Lock()
		handler := backend.download
		backend.mu.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7 body"))
	})
	mux.HandleFunc("/stats/all", func(w http.ResponseWriter, r *http.Request) {
		backend.hit(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"totalReports":12,"totalUsers":3}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-backend.release:
		default:
			close(backend.release)
		}
	})
	return backend, srv
}

func (b *fakeBackend) hit(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits[r.URL.Path]++
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) setGenerate(handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generate = handler
}

func (b *fakeBackend) setDownload(handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.download = handler
}

// eventRecorder captures push notifications instead of the Wails runtime.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event == name {
			n++
		}
	}
	return n
}

// newTestApp wires an App against srv with in-memory session storage.
func newTestApp(t *testing.T, srv *httptest.Server) (*App, *fakeStore) {
	t.Helper()
	settings := domain.Settings{
		BaseURL:      srv.URL,
		DownloadDir:  t.TempDir(),
		StoreBackend: domain.StoreBackendMemory,
		LogFile:      filepath.Join(t.TempDir(), "app.log"),
	}
	store := &fakeStore{settings: settings}

	app, err := newApp(settings, store, nil, srv.Client())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, store
}

// TestGenerateFromTopicSavesReport runs the full flow and checks the saved file and events.
func TestGenerateFromTopicSavesReport(t *testing.T) {
	backend, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	job, err := app.GenerateFromTopic("solar power", "PDF")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if job.Status != domain.JobStatusSubmitting {
		t.Fatalf("initial status = %s, want submitting", job.Status)
	}

	waitForStatus(t, app, domain.JobStatusSaved)

	saved := app.CurrentJob().SavedPath
	if filepath.Base(saved) != "solar.pdf" {
		t.Fatalf("saved path = %s, want solar.pdf", saved)
	}
	data, err := os.ReadFile(saved)
	if err != nil {
		t.Fatalf("read saved report: %v", err)
	}
	if string(data) != "%PDF-1.7 body" {
		t.Fatalf("saved data = %q", data)
	}
	if backend.count("/reports/download/solar.pdf") != 1 {
		t.Fatalf("download hits = %d, want 1", backend.count("/reports/download/solar.pdf"))
	}

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeResult)
	last := events[len(events)-1]
	if last.SavedPath != saved || last.JobID != job.ID {
		t.Fatalf("last event = %+v", last)
	}
}

// TestGenerateInformationalReply keeps the server text and fetches nothing.
func TestGenerateInformationalReply(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Your report is queued")
	})
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := app.GenerateFromTopic("solar power", "docx"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusInformational)

	if got := app.CurrentJob().Message; got != "Your report is queued" {
		t.Fatalf("message = %q", got)
	}
	if backend.count("/reports/download/solar.pdf") != 0 {
		t.Fatal("informational reply must not trigger a download")
	}
}

// TestGenerationEnforcesSingleRunningJob checks the single-flight guard and cancellation.
func TestGenerationEnforcesSingleRunningJob(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-backend.release:
		}
	})
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := app.GenerateFromTopic("first", "pdf"); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.GenerateFromContent("Second", "body", "pdf"); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}
	if _, err := app.SaveSettings(app.Settings); err == nil {
		t.Fatal("expected settings change to be rejected while running")
	}

	if err := app.CancelGeneration(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)

	if _, err := app.GenerateFromTopic("third", "pdf"); err != nil {
		t.Fatalf("start after failure: %v", err)
	}
	if err := app.CancelGeneration(); err != nil {
		t.Fatalf("cancel third: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)
}

// TestGenerateWithoutSessionFailsLocally makes no network call when signed out.
func TestGenerateWithoutSessionFailsLocally(t *testing.T) {
	backend, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	if _, err := app.GenerateFromTopic("solar power", "pdf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)

	if kind := app.CurrentJob().ErrorKind; kind != domain.KindNotAuthenticated {
		t.Fatalf("error kind = %s, want %s", kind, domain.KindNotAuthenticated)
	}
	if backend.count("/reports/generate") != 0 {
		t.Fatal("expected no generation call without a session")
	}
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventTypeError)
}

// TestGenerateInvalidFormatFailsValidation rejects unknown formats before submitting.
func TestGenerateInvalidFormatFailsValidation(t *testing.T) {
	backend, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := app.GenerateFromTopic("solar power", "odt"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)

	if kind := app.CurrentJob().ErrorKind; kind != domain.KindValidation {
		t.Fatalf("error kind = %s, want %s", kind, domain.KindValidation)
	}
	if backend.count("/reports/generate") != 0 {
		t.Fatal("expected no generation call for an invalid request")
	}
}

// TestUnauthorizedGenerationSignsOut clears the session when the server rejects the credential.
func TestUnauthorizedGenerationSignsOut(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := app.GenerateFromTopic("solar power", "pdf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)

	if app.IsAuthenticated() {
		t.Fatal("expected session to be cleared")
	}
	if app.CurrentSession() != nil {
		t.Fatal("expected no current session")
	}
}

// TestLoginRejectsBadPassword keeps the app signed out.
func TestLoginRejectsBadPassword(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	_, err := app.Login("ada@example.com", "wrong")
	if !domain.IsKind(err, domain.KindInvalidCredential) {
		t.Fatalf("err = %v, want invalid credentials", err)
	}
	if app.IsAuthenticated() {
		t.Fatal("expected no session after failed login")
	}
}

// TestSessionLifecycle covers login, current session and logout.
func TestSessionLifecycle(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	if _, err := app.Login(" ada@example.com ", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	sess := app.CurrentSession()
	if sess == nil || sess.Identity.DisplayName != "Ada" || sess.Identity.ID != 7 {
		t.Fatalf("session = %+v", sess)
	}

	app.Logout()
	if app.IsAuthenticated() {
		t.Fatal("expected logout to clear the session")
	}
}

// TestGetStats reads dashboard counters.
func TestGetStats(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	stats, err := app.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReports != 12 || stats.TotalUsers != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}

// TestCancelWithoutRunningJob reports that nothing is running.
func TestCancelWithoutRunningJob(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)

	if err := app.CancelGeneration(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("cancel error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestSaveSettingsRewiresServices persists settings and keeps the job manager.
func TestSaveSettingsRewiresServices(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, store := newTestApp(t, srv)
	before := app.Services

	settings := app.Settings
	settings.BaseURL = srv.URL + "/"
	settings.DownloadDir = filepath.Join(t.TempDir(), "reports")
	saved, err := app.SaveSettings(settings)
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}

	if strings.HasSuffix(saved.BaseURL, "/") {
		t.Fatalf("base url not normalized: %s", saved.BaseURL)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	if app.Services == before {
		t.Fatal("expected services to be rewired")
	}
	if app.Services.Pipeline.Jobs() != app.jobs {
		t.Fatal("expected job manager to survive rewiring")
	}
	if app.Services.Saver.Dir() != settings.DownloadDir {
		t.Fatalf("download dir = %s, want %s", app.Services.Saver.Dir(), settings.DownloadDir)
	}
	if len(app.GetDiagnostics().Items) == 0 {
		t.Fatal("expected diagnostics to be refreshed")
	}
}

// TestFixDiagnosticCreatesDownloadDir repairs a missing folder through the App.
func TestFixDiagnosticCreatesDownloadDir(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, store := newTestApp(t, srv)

	settings := app.Settings
	settings.DownloadDir = filepath.Join(t.TempDir(), "missing", "reports")
	store.settings = settings

	if _, err := app.FixDiagnostic(string(domain.DiagnosticDownloadDir)); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if info, err := os.Stat(settings.DownloadDir); err != nil || !info.IsDir() {
		t.Fatalf("download dir not created: %v", err)
	}
	if _, err := app.FixDiagnostic(string(domain.DiagnosticServer)); err == nil {
		t.Fatal("expected server item to be unfixable")
	}
}

// waitForStatus polls current job state until it reaches expected status.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

// TestGenerationOutlivesRequestTimeout bounds a run by the generation timeout
// only; a slow generation call must not fail at the request timeout.
func TestGenerationOutlivesRequestTimeout(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		_, _ = io.WriteString(w, "Your report is queued")
	})

	settings := domain.Settings{
		BaseURL:           srv.URL,
		DownloadDir:       t.TempDir(),
		StoreBackend:      domain.StoreBackendMemory,
		RequestTimeout:    100 * time.Millisecond,
		GenerationTimeout: 10 * time.Second,
	}
	app, err := newApp(settings, &fakeStore{settings: settings}, nil, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := app.GenerateFromTopic("solar power", "pdf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusInformational)
}

// TestGenerationTimeoutEndsRun fails a run that exceeds the generation timeout
// with a slow-server message.
func TestGenerationTimeoutEndsRun(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-backend.release:
		}
	})

	settings := domain.Settings{
		BaseURL:           srv.URL,
		DownloadDir:       t.TempDir(),
		StoreBackend:      domain.StoreBackendMemory,
		GenerationTimeout: 100 * time.Millisecond,
	}
	app, err := newApp(settings, &fakeStore{settings: settings}, nil, srv.Client())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := app.GenerateFromTopic("solar power", "pdf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)

	job := app.CurrentJob()
	if job.ErrorKind != domain.KindNetwork || job.Message != "the server did not answer in time" {
		t.Fatalf("job = %+v", job)
	}
}

// TestDownloadRejectionAnnouncesSignOut emits a session change when the fetch
// step clears the session, even though the run fails as a download failure.
func TestDownloadRejectionAnnouncesSignOut(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.setDownload(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	app, _ := newTestApp(t, srv)
	recorder := &eventRecorder{}
	app.notify = recorder.record

	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	signIns := recorder.count(eventSession)

	if _, err := app.GenerateFromTopic("solar power", "pdf"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusFailed)
	app.wg.Wait()

	if kind := app.CurrentJob().ErrorKind; kind != domain.KindDownloadFailed {
		t.Fatalf("error kind = %s, want %s", kind, domain.KindDownloadFailed)
	}
	if app.IsAuthenticated() {
		t.Fatal("expected session to be cleared")
	}
	if got := recorder.count(eventSession) - signIns; got != 1 {
		t.Fatalf("session events after run = %d, want 1", got)
	}
	if recorder.count(eventJob) == 0 {
		t.Fatal("expected job events to be pushed")
	}
}

// TestSettingsSwapBlocksNewRuns keeps a run from being claimed while services
// are being replaced.
func TestSettingsSwapBlocksNewRuns(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	app.rewireMu.Lock()
	started := make(chan error, 1)
	go func() {
		_, err := app.GenerateFromTopic("solar power", "pdf")
		started <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if status := app.CurrentJob().Status; status != domain.JobStatusIdle && status != "" {
		app.rewireMu.Unlock()
		t.Fatalf("run claimed during settings swap: status = %s", status)
	}
	app.rewireMu.Unlock()

	if err := <-started; err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusSaved)
}

// TestJobHistoryFiltersByRun returns only the events of the requested run.
func TestJobHistoryFiltersByRun(t *testing.T) {
	_, srv := newFakeBackend(t)
	app, _ := newTestApp(t, srv)
	if _, err := app.Login("ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	first, err := app.GenerateFromTopic("first", "pdf")
	if err != nil {
		t.Fatalf("generate first: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusSaved)
	app.wg.Wait()

	second, err := app.GenerateFromTopic("second", "pdf")
	if err != nil {
		t.Fatalf("generate second: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusSaved)
	app.wg.Wait()

	history := app.JobHistory(first.ID)
	if len(history) == 0 {
		t.Fatal("expected events for the first run")
	}
	for _, event := range history {
		if event.JobID != first.ID {
			t.Fatalf("event for %s in history of %s", event.JobID, first.ID)
		}
	}
	if history[len(history)-1].Status != domain.JobStatusSaved {
		t.Fatalf("last status = %s, want saved", history[len(history)-1].Status)
	}
	if len(app.JobHistory(second.ID)) == 0 {
		t.Fatal("expected events for the second run")
	}
}
