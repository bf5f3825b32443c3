package domain

import "time"

// JobStatus tracks each pipeline stage for a single generation request.
type JobStatus string

const (
	JobStatusIdle          JobStatus = "idle"
	JobStatusSubmitting    JobStatus = "submitting"
	JobStatusInterpreting  JobStatus = "interpreting"
	JobStatusFetching      JobStatus = "fetching"
	JobStatusSaved         JobStatus = "saved"
	JobStatusInformational JobStatus = "informational"
	JobStatusFailed        JobStatus = "failed"
)

// IsTerminal reports whether a run in this status has finished.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSaved, JobStatusInformational, JobStatusFailed:
		return true
	default:
		return false
	}
}

// GenerationMode selects which generation endpoint a request targets.
type GenerationMode string

const (
	ModeFromTopic   GenerationMode = "from-topic"
	ModeFromContent GenerationMode = "from-content"
)

// OutputFormat is the document type the server renders.
type OutputFormat string

const (
	FormatDOCX OutputFormat = "docx"
	FormatPDF  OutputFormat = "pdf"
)

// Identity is the normalized user record behind a session.
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
}

// Session is the authenticated caller: credential and identity always travel together.
type Session struct {
	Credential string     `json:"-"`
	Identity   Identity   `json:"identity"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// GenerationRequest is one user submission. It is never persisted.
type GenerationRequest struct {
	Mode         GenerationMode `json:"mode" validate:"required,oneof=from-topic from-content"`
	Title        string         `json:"title" validate:"required_if=Mode from-content"`
	SubjectText  string         `json:"subjectText" validate:"required,notblank"`
	OutputFormat OutputFormat   `json:"outputFormat" validate:"required,oneof=docx pdf"`
}

// GenerationResult is the interpreted reply of a generation call.
type GenerationResult struct {
	RawMessage       string `json:"rawMessage"`
	ArtifactFilename string `json:"artifactFilename,omitempty"`
}

// HasArtifact reports whether the server announced a file to fetch.
func (r GenerationResult) HasArtifact() bool {
	return r.ArtifactFilename != ""
}

// Artifact is a fetched report held only until it is handed to the download executor.
type Artifact struct {
	Filename string
	Data     []byte
}

// Job stores the current run identity, lifecycle status and outcome details.
type Job struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	Mode      GenerationMode `json:"mode,omitempty"`
	Format    OutputFormat   `json:"format,omitempty"`
	Message   string         `json:"message,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	SavedPath string         `json:"savedPath,omitempty"`
	ErrorKind ErrorKind      `json:"errorKind,omitempty"`
}

// Stats is the dashboard summary served by the backend.
type Stats struct {
	TotalReports int64 `json:"totalReports"`
	TotalUsers   int64 `json:"totalUsers"`
}

// StoreBackend selects the persistent store implementation.
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendMemory StoreBackend = "memory"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	BaseURL           string        `json:"baseUrl" yaml:"base_url"`
	DownloadDir       string        `json:"downloadDir" yaml:"download_dir"`
	StoreBackend      StoreBackend  `json:"storeBackend" yaml:"store_backend"`
	StorePath         string        `json:"storePath" yaml:"store_path"`
	GenerationTimeout time.Duration `json:"generationTimeout" yaml:"generation_timeout"`
	RequestTimeout    time.Duration `json:"requestTimeout" yaml:"request_timeout"`
	AskWhereToSave    bool          `json:"askWhereToSave" yaml:"ask_where_to_save"`
	LogFile           string        `json:"logFile" yaml:"log_file"`
	LogLevel          string        `json:"logLevel" yaml:"log_level"`
	OTLPEndpoint      string        `json:"otlpEndpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
}

// FormatOption describes one output format offered to the user.
type FormatOption struct {
	ID          OutputFormat `json:"id"`
	Name        string       `json:"name"`
	Extension   string       `json:"extension"`
	Description string       `json:"description"`
}
