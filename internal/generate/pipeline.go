package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"report-desk/internal/client"
	"report-desk/internal/domain"
	"report-desk/internal/jobs"
)

const tracerName = "report-desk/internal/generate"

// DefaultTimeout bounds one run from submit to saved file.
const DefaultTimeout = 5 * time.Minute

// requester is the authenticated gateway used for generation and download.
type requester interface {
	Do(ctx context.Context, call client.Call) (client.Payload, error)
}

// Sessions is the part of the session manager a run depends on.
type Sessions interface {
	CurrentSession() (domain.Session, bool)
	Logout()
}

// Saver hands a fetched artifact to the user and returns where it landed.
type Saver interface {
	Save(ctx context.Context, artifact domain.Artifact) (string, error)
}

// Observer receives a job snapshot after every transition.
type Observer func(job domain.Job)

// Options tunes a pipeline.
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Pipeline drives submit, interpret, fetch and save for one report at a time.
type Pipeline struct {
	api      requester
	sessions Sessions
	saver    Saver
	jobs     *jobs.Manager
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

// NewPipeline wires a pipeline. api must be bound to the session credential.
func NewPipeline(api requester, sessions Sessions, saver Saver, manager *jobs.Manager, opts Options) *Pipeline {
	if manager == nil {
		manager = jobs.NewManager()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout < 0 {
		timeout = 0
	}
	return &Pipeline{
		api:      api,
		sessions: sessions,
		saver:    saver,
		jobs:     manager,
		timeout:  timeout,
		logger:   logger.Named("generate"),
		tracer:   otel.Tracer(tracerName),
		newID:    uuid.NewString,
	}
}

// Jobs exposes the job state machine the pipeline reports into.
func (p *Pipeline) Jobs() *jobs.Manager {
	return p.jobs
}

// Run is a claimed job waiting to be executed. Execute must be called exactly
// once, otherwise the slot stays taken.
type Run struct {
	p   *Pipeline
	job domain.Job
	req domain.GenerationRequest
}

// Prepare claims the single-flight slot for req. It returns
// jobs.ErrJobAlreadyRunning while another run is active and never touches the
// network.
func (p *Pipeline) Prepare(req domain.GenerationRequest) (*Run, error) {
	job := domain.Job{
		ID:     p.newID(),
		Mode:   req.Mode,
		Format: req.OutputFormat,
	}
	if err := p.jobs.Start(job); err != nil {
		return nil, err
	}
	return &Run{p: p, job: p.jobs.Current(), req: req}, nil
}

// Job returns the snapshot taken when the run was claimed.
func (r *Run) Job() domain.Job {
	return r.job
}

// Submit claims the slot and executes the run inline.
func (p *Pipeline) Submit(ctx context.Context, req domain.GenerationRequest, observe Observer) (domain.Job, error) {
	run, err := p.Prepare(req)
	if err != nil {
		return p.jobs.Current(), err
	}
	return run.Execute(ctx, observe)
}

// Execute runs the claimed job to a terminal state. The returned error is a
// *domain.Error whenever the job ends failed.
func (r *Run) Execute(ctx context.Context, observe Observer) (domain.Job, error) {
	p := r.p
	if observe == nil {
		observe = func(domain.Job) {}
	}

	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	p.jobs.Bind(r.job.ID, cancel)

	ctx, span := p.tracer.Start(ctx, "generate.run", trace.WithAttributes(
		attribute.String("job.id", r.job.ID),
		attribute.String("report.mode", string(r.req.Mode)),
		attribute.String("report.format", string(r.req.OutputFormat)),
	))
	defer span.End()

	logger := p.logger.With(zap.String("job_id", r.job.ID), zap.String("mode", string(r.req.Mode)))
	observe(r.job)

	job, err := r.execute(ctx, logger, observe)
	span.SetAttributes(attribute.String("job.status", string(job.Status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.UserMessage(err))
		logger.Warn("report generation failed",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return job, err
	}
	logger.Info("report generation finished",
		zap.String("status", string(job.Status)),
		zap.String("saved_path", job.SavedPath))
	return job, nil
}

func (r *Run) execute(ctx context.Context, logger *zap.Logger, observe Observer) (domain.Job, error) {
	p := r.p

	if err := domain.Validate(r.req); err != nil {
		return r.fail(err, observe)
	}
	if _, ok := p.sessions.CurrentSession(); !ok {
		return r.fail(domain.NewError(domain.KindNotAuthenticated, "please sign in to generate a report"), observe)
	}

	logger.Debug("submitting generation request")
	payload, err := p.api.Do(ctx, submitCall(r.req))
	if err != nil {
		return r.fail(p.submitError(err), observe)
	}

	job, err := p.jobs.Update(domain.JobStatusInterpreting, nil)
	if err != nil {
		return job, err
	}
	observe(job)

	raw := payload.Text()
	result, err := InterpretReply(raw)
	if err != nil {
		logger.Warn("unparseable generation reply", zap.String("reply", raw))
		return r.fail(err, observe)
	}
	if !result.HasArtifact() {
		job, err = p.jobs.Update(domain.JobStatusInformational, func(job *domain.Job) {
			job.Message = result.RawMessage
		})
		if err != nil {
			return job, err
		}
		observe(job)
		return job, nil
	}

	filename := result.ArtifactFilename
	job, err = p.jobs.Update(domain.JobStatusFetching, func(job *domain.Job) {
		job.Filename = filename
		job.Message = result.RawMessage
	})
	if err != nil {
		return job, err
	}
	observe(job)

	logger.Debug("fetching report", zap.String("filename", filename))
	artifact, err := p.api.Do(ctx, client.Call{
		Method:   http.MethodGet,
		Path:     "/reports/download/" + url.PathEscape(filename),
		Response: client.ResponseBinary,
	})
	if err != nil {
		return r.fail(p.downloadError(err), observe)
	}

	savedPath, err := p.saver.Save(ctx, domain.Artifact{Filename: filename, Data: artifact.Data})
	if err != nil {
		if !domain.IsKind(err, domain.KindDownloadFailed) {
			err = domain.WrapError(domain.KindDownloadFailed, downloadMessage(domain.UserMessage(err)), err)
		}
		return r.fail(err, observe)
	}

	job, err = p.jobs.Update(domain.JobStatusSaved, func(job *domain.Job) {
		job.SavedPath = savedPath
		job.Message = fmt.Sprintf("Report saved to %s", savedPath)
	})
	if err != nil {
		return job, err
	}
	observe(job)
	return job, nil
}

func (r *Run) fail(cause error, observe Observer) (domain.Job, error) {
	job, err := r.p.jobs.Update(domain.JobStatusFailed, func(job *domain.Job) {
		job.Message = domain.UserMessage(cause)
		job.ErrorKind = domain.KindOf(cause)
	})
	if err != nil {
		return job, errors.Join(cause, err)
	}
	observe(job)
	return job, cause
}

// submitError classifies a failed generation call.
func (p *Pipeline) submitError(err error) error {
	statusErr, ok := client.AsStatusError(err)
	if !ok {
		if domain.KindOf(err) != "" {
			return err
		}
		return domain.WrapError(domain.KindNetwork, "could not reach the server", err)
	}
	if statusErr.Status == http.StatusUnauthorized {
		p.sessions.Logout()
		return domain.WrapError(domain.KindNotAuthenticated, "your session has expired, please sign in again", err)
	}

	message := statusErr.Message
	if message == "" || message == http.StatusText(statusErr.Status) {
		message = "report generation failed"
	}
	return domain.WrapError(domain.KindGenerationFailed, message, err)
}

// downloadError classifies a failed fetch. The report exists on the server at this point.
func (p *Pipeline) downloadError(err error) error {
	if statusErr, ok := client.AsStatusError(err); ok && statusErr.Status == http.StatusUnauthorized {
		p.sessions.Logout()
	}
	return domain.WrapError(domain.KindDownloadFailed, downloadMessage(domain.UserMessage(err)), err)
}

func downloadMessage(reason string) string {
	return fmt.Sprintf("the report was generated on the server but could not be downloaded: %s", reason)
}

type topicBody struct {
	Topic      string `json:"topic"`
	FormatType string `json:"formatType"`
}

type contentBody struct {
	Topic      string `json:"topic"`
	Content    string `json:"content"`
	FormatType string `json:"formatType"`
}

func submitCall(req domain.GenerationRequest) client.Call {
	call := client.Call{Method: http.MethodPost, Response: client.ResponseText}
	switch req.Mode {
	case domain.ModeFromContent:
		call.Path = "/reports/generate-from-text"
		call.Body = contentBody{
			Topic:      req.Title,
			Content:    req.SubjectText,
			FormatType: string(req.OutputFormat),
		}
	default:
		call.Path = "/reports/generate"
		call.Body = topicBody{
			Topic:      req.SubjectText,
			FormatType: string(req.OutputFormat),
		}
	}
	return call
}
