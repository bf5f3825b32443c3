package domain

import "time"

// DiagnosticStatus grades one readiness check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticID names a readiness check.
type DiagnosticID string

const (
	DiagnosticServer       DiagnosticID = "server"
	DiagnosticDownloadDir  DiagnosticID = "download_dir"
	DiagnosticSessionStore DiagnosticID = "session_store"
	DiagnosticSession      DiagnosticID = "session"
)

// DiagnosticItem is one check on the way to generating a report. Fixable
// items can be repaired locally; the rest need the user or the server.
type DiagnosticItem struct {
	ID      DiagnosticID     `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
	Fixable bool             `json:"fixable,omitempty"`
}

// DiagnosticReport tells the user whether a report can be generated and saved.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Item looks up one check by id.
func (r DiagnosticReport) Item(id DiagnosticID) (DiagnosticItem, bool) {
	for _, item := range r.Items {
		if item.ID == id {
			return item, true
		}
	}
	return DiagnosticItem{}, false
}
