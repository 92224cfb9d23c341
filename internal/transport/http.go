package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlbridge/gateway/internal/codec"
)

const maxResponseBody = 10 * 1024 * 1024 // 10MB

// HTTPTransport posts the encoded payload to the worker URL and decodes the
// response body.
type HTTPTransport struct {
	client *http.Client
	codec  *codec.Registry
	logger *slog.Logger
}

// NewHTTPTransport creates an HTTP transport with connection pooling.
func NewHTTPTransport(reg *codec.Registry, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPTransport{
		client: &http.Client{Transport: transport},
		codec:  reg,
		logger: logger,
	}
}

func (t *HTTPTransport) Kind() Kind {
	return KindHTTP
}

func (t *HTTPTransport) Submit(ctx context.Context, req *Request, cfg Config) *Result {
	start := time.Now()

	parsed, err := url.Parse(cfg.Target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return failure(StatusTransportError,
			fmt.Sprintf("target %q is not an http or https URL", cfg.Target),
			nil, start)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Target, bytes.NewReader(req.Encoded))
	if err != nil {
		return failure(StatusTransportError,
			fmt.Sprintf("failed to build request: %v", err),
			nil, start)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	t.logger.Debug("posting to worker",
		slog.String("url", cfg.Target),
		slog.String("operation", req.Operation),
		slog.Int("attempt", int(req.Attempt)),
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return failure(StatusTimeout,
				fmt.Sprintf("worker %s exceeded deadline after %s", cfg.Target, time.Since(start)),
				nil, start)
		}
		return failure(StatusTransportError,
			fmt.Sprintf("request to worker failed: %v", err),
			nil, start)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return failure(StatusTimeout,
				fmt.Sprintf("worker %s exceeded deadline while streaming response", cfg.Target),
				nil, start)
		}
		return failure(StatusTransportError,
			fmt.Sprintf("failed to read worker response: %v", err),
			nil, start)
	}
	if len(body) > maxResponseBody {
		return failure(StatusInvalidResponse,
			fmt.Sprintf("worker response exceeds %d bytes", maxResponseBody),
			nil, start)
	}

	if resp.StatusCode >= 400 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = fmt.Sprintf("worker returned status %d", resp.StatusCode)
		}
		return failure(StatusWorkerError, detail, body, start)
	}

	data, err := t.codec.DecodeResult(req.Operation, body)
	if err != nil {
		return failure(StatusInvalidResponse,
			fmt.Sprintf("worker response rejected: %v", err),
			body, start)
	}

	return &Result{
		Status:    StatusSuccess,
		Data:      data,
		RawOutput: body,
		Duration:  time.Since(start),
	}
}
