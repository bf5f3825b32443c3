package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"report-desk/internal/domain"
)

const tracerName = "report-desk/internal/client"

// ResponseKind tells the gateway how to treat a reply body.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseJSON
	ResponseBinary
)

// CredentialSource yields the bearer credential of the current session.
type CredentialSource interface {
	Credential() (string, bool)
}

// Call describes one request through the gateway.
type Call struct {
	Method   string
	Path     string
	Body     any
	Response ResponseKind
}

// Payload is a successful reply. Data is never decoded for binary responses.
type Payload struct {
	Status      int
	ContentType string
	Kind        ResponseKind
	Data        []byte
}

// Text returns the body as a string. Binary payloads yield "".
func (p Payload) Text() string {
	if p.Kind == ResponseBinary {
		return ""
	}
	return string(p.Data)
}

// DecodeJSON unmarshals the body into v.
func (p Payload) DecodeJSON(v any) error {
	if p.Kind == ResponseBinary {
		return fmt.Errorf("cannot decode binary payload as JSON")
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client is the single gateway every network call passes through.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New builds an anonymous gateway. It never sends an Authorization header.
// Calls are bounded by their context only; httpClient should carry no Timeout
// so long generation calls are not cut short.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
}

// WithCredentials returns a gateway sharing the same transport that attaches
// the credential from src to every call.
func (c *Client) WithCredentials(src CredentialSource) *Client {
	clone := *c
	clone.credentials = src
	return &clone
}

// Do performs one call and returns the reply or a *StatusError / network error.
func (c *Client) Do(ctx context.Context, call Call) (Payload, error) {
	ctx, span := c.tracer.Start(ctx, "http "+call.Method+" "+call.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", call.Method),
			attribute.String("url.path", call.Path),
		))
	defer span.End()

	payload, err := c.do(ctx, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Payload{}, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", payload.Status))
	return payload, nil
}

func (c *Client) do(ctx context.Context, call Call) (Payload, error) {
	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return Payload{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Path, body)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to create request: %w", err)
	}
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch call.Response {
	case ResponseJSON:
		req.Header.Set("Accept", "application/json")
	case ResponseBinary:
		req.Header.Set("Accept", "application/octet-stream, */*")
	default:
		req.Header.Set("Accept", "text/plain, application/json, */*")
	}

	authenticated := false
	if c.credentials != nil {
		if token, ok := c.credentials.Credential(); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			authenticated = true
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", call.Method),
			zap.String("path", call.Path),
			zap.Error(err))
		return Payload{}, domain.WrapError(domain.KindNetwork, networkMessage(ctx, err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, domain.WrapError(domain.KindNetwork, "connection interrupted while reading the reply", err)
	}

	c.logger.Debug("request completed",
		zap.String("method", call.Method),
		zap.String("path", call.Path),
		zap.Int("status", resp.StatusCode),
		zap.Bool("authenticated", authenticated),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Payload{}, &StatusError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
		}
	}

	return Payload{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Kind:        call.Response,
		Data:        data,
	}, nil
}

// errorMessage prefers a JSON "message" field, then the raw body text.
func errorMessage(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
		return http.StatusText(status)
	}
	return trimmed
}

func networkMessage(ctx context.Context, err error) string {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return "the server did not answer in time"
	case errors.Is(ctx.Err(), context.Canceled):
		return "the request was cancelled"
	default:
		return "could not reach the server"
	}
}

// AsStatusError extracts a *StatusError from err's chain.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
