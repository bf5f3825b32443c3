package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"report-desk/internal/client"
	"report-desk/internal/domain"
)

const pingTimeout = 5 * time.Second

// SessionView is the read-only view of the session manager the checks use.
type SessionView interface {
	CurrentSession() (domain.Session, bool)
	Check() error
}

// Checker validates server reachability, local paths and the session store.
type Checker struct {
	sessions   SessionView
	ping       func(ctx context.Context, baseURL string) error
	now        func() time.Time
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS and network dependencies.
// sessions may be nil, in which case store and sign-in checks are skipped.
func NewChecker(sessions SessionView) *Checker {
	return &Checker{
		sessions:   sessions,
		ping:       pingServer,
		now:        time.Now,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkServer(ctx, settings.BaseURL),
		c.checkDownloadDir(settings.DownloadDir, settings.AskWhereToSave),
	}
	if c.sessions != nil {
		items = append(items, c.checkStore(settings), c.checkSession())
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkServer verifies the configured server answers HTTP at all.
func (c *Checker) checkServer(ctx context.Context, baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticServer,
		Name: "Report server",
	}

	if strings.TrimSpace(baseURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Server address is empty."
		item.Hint = "Set the report server address in settings, for example http://localhost:8080/api."
		return item
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Server address is not a valid http(s) URL: %s", baseURL)
		item.Hint = "Use a full address including http:// or https://."
		return item
	}

	if err := c.ping(ctx, baseURL); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot reach %s: %s", baseURL, domain.UserMessage(err))
		item.Hint = "Check that the report server is running and the address is correct."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Server reachable at %s", baseURL)
	return item
}

// checkDownloadDir validates download directory existence and write access.
func (c *Checker) checkDownloadDir(dir string, askWhereToSave bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticDownloadDir,
		Name: "Download folder",
	}

	if strings.TrimSpace(dir) == "" {
		if askWhereToSave {
			item.Status = domain.DiagnosticStatusPass
			item.Message = "You will be asked where to save each report."
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Download folder is empty."
		item.Hint = "Fix uses your Downloads folder, or set a folder in settings."
		item.Fixable = true
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create download folder: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Download folder is not writable: %s", dir)
		item.Hint = "Choose a writable folder for downloaded reports."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable folder: %s", dir)
	return item
}

// checkStore verifies the session store can be read.
func (c *Checker) checkStore(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticSessionStore,
		Name: "Session store",
	}

	if err := c.sessions.Check(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read the session store: %v", err)
		item.Hint = "Fix moves the unreadable store aside and starts a new one; you will need to sign in again."
		item.Fixable = true
		return item
	}

	if settings.StoreBackend == domain.StoreBackendMemory {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Sessions are kept in memory only."
		item.Hint = "Fix switches to a file store so you stay signed in across restarts."
		item.Fixable = true
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s store at %s", settings.StoreBackend, settings.StorePath)
	return item
}

// checkSession reports sign-in state. Being signed out is never a failure.
func (c *Checker) checkSession() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticSession,
		Name: "Sign-in",
	}

	sess, ok := c.sessions.CurrentSession()
	if !ok {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Not signed in."
		item.Hint = "Sign in or register before generating a report."
		return item
	}

	who := sess.Identity.DisplayName
	if who == "" {
		who = sess.Identity.Email
	}
	if sess.ExpiresAt != nil && !sess.ExpiresAt.After(c.now()) {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Session for %s has expired.", who)
		item.Hint = "Sign in again; the server will reject requests with an expired session."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Signed in as %s", who)
	return item
}

// pingServer treats any HTTP reply, even an error status, as reachable.
func pingServer(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	gateway := client.New(baseURL, &http.Client{Timeout: pingTimeout}, nil)
	_, err := gateway.Do(ctx, client.Call{Method: http.MethodGet, Path: "", Response: client.ResponseText})
	if err == nil {
		return nil
	}
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		return nil
	}
	return err
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	sessions SessionView,
	ping func(ctx context.Context, baseURL string) error,
	now func() time.Time,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		sessions:   sessions,
		ping:       ping,
		now:        now,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
