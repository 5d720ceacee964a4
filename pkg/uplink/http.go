package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"formtel/pkg/model"
)

// ReportPath is appended to the collector base URL.
const ReportPath = "/api/errors/report"

var (
	// ErrNotConfigured is returned by Send when no collector URL was resolved.
	ErrNotConfigured = errors.New("uplink: collector base URL not configured")
	// ErrStatus wraps non-2xx collector responses.
	ErrStatus = errors.New("uplink: collector rejected report")
)

// EndpointResolver supplies the collector base URL. It is consulted once,
// when the transport is built.
type EndpointResolver interface {
	CollectorBaseURL(ctx context.Context) (string, error)
}

// TokenSource supplies an optional bearer token. An empty token or an error
// sends the report without credentials.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type HTTPOptions struct {
	// Timeout bounds each request. Defaults to 5s.
	Timeout time.Duration
	Headers map[string]string
	// Gzip compresses request bodies.
	Gzip       bool
	Tokens     TokenSource
	InstanceID string
	Client     *http.Client
	Logger     *slog.Logger
}

// HTTPTransport POSTs reports as JSON to {base}/api/errors/report.
type HTTPTransport struct {
	url        string
	headers    map[string]string
	gzip       bool
	tokens     TokenSource
	instanceID string
	client     *http.Client
}

func NewHTTPTransport(ctx context.Context, resolver EndpointResolver, opts HTTPOptions) *HTTPTransport {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("component", "uplink")

	var base string
	if resolver != nil {
		var err error
		base, err = resolver.CollectorBaseURL(ctx)
		if err != nil {
			log.Warn("Uplink: failed to resolve collector URL, reporting disabled", "error", err)
			base = ""
		}
	}
	base = strings.TrimSpace(base)

	h := &HTTPTransport{
		headers:    opts.Headers,
		gzip:       opts.Gzip,
		tokens:     opts.Tokens,
		instanceID: opts.InstanceID,
		client:     opts.Client,
	}
	if base != "" {
		h.url = strings.TrimRight(base, "/") + ReportPath
	} else {
		log.Warn("Uplink: API base URL not configured, cannot report errors")
	}
	if h.instanceID == "" {
		h.instanceID = uuid.NewString()
	}
	if h.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		h.client = &http.Client{Timeout: timeout}
	}
	return h
}

// URL returns the resolved report URL, or "" when reporting is disabled.
func (h *HTTPTransport) URL() string {
	return h.url
}

func (h *HTTPTransport) InstanceID() string {
	return h.instanceID
}

func (h *HTTPTransport) Send(ctx context.Context, report model.ErrorReport) error {
	if h.url == "" {
		return ErrNotConfigured
	}

	body, err := h.encode(report)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-ID", h.instanceID)
	if h.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if h.tokens != nil {
		if token, err := h.tokens.Token(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

func (h *HTTPTransport) encode(report model.ErrorReport) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	if !h.gzip {
		return data, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress report: %w", err)
	}
	return buf.Bytes(), nil
}
