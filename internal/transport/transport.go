// Package transport dispatches encoded requests to external ML workers.
//
// Every variant satisfies the same contract: Submit always returns a Result,
// and every failure mode is folded into Result.Status rather than escaping
// as an error or panic.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// Kind identifies a transport variant.
type Kind string

const (
	KindSubprocess Kind = "subprocess"
	KindHTTP       Kind = "http"
	KindQueue      Kind = "queue"
)

// Status classifies the outcome of a single transport attempt.
type Status string

const (
	StatusSuccess         Status = "SUCCESS"
	StatusWorkerError     Status = "WORKER_ERROR"
	StatusTransportError  Status = "TRANSPORT_ERROR"
	StatusTimeout         Status = "TIMEOUT"
	StatusInvalidResponse Status = "INVALID_RESPONSE"
)

// Retryable reports whether the worker may still produce a different answer
// on another attempt. A worker that answered authoritatively (WorkerError,
// InvalidResponse) is never retried.
func (s Status) Retryable() bool {
	return s == StatusTransportError || s == StatusTimeout
}

// Request is one submission to a worker. It is immutable once built; retries
// reuse the same encoded bytes with a bumped Attempt counter.
type Request struct {
	Operation   string
	Payload     map[string]any
	Encoded     []byte // canonical JSON wire form
	Fingerprint string
	Attempt     int32
}

// Config addresses a worker through one transport variant.
type Config struct {
	Kind    Kind
	Target  string   // script path, URL, or queue name
	Args    []string // extra argv entries for subprocess targets
	Env     []string // extra environment entries for subprocess targets
	Timeout time.Duration
}

// Result is the normalized outcome of one attempt. Created once, never
// mutated afterwards.
type Result struct {
	Status      Status
	Data        json.RawMessage // present only on Success
	ErrorDetail string          // diagnostic, untrusted worker output
	RawOutput   []byte          // raw worker bytes when available
	Duration    time.Duration
}

// Transport submits a request to a worker and reports a normalized result.
type Transport interface {
	Submit(ctx context.Context, req *Request, cfg Config) *Result
	Kind() Kind
}

func failure(status Status, detail string, raw []byte, start time.Time) *Result {
	return &Result{
		Status:      status,
		ErrorDetail: detail,
		RawOutput:   raw,
		Duration:    time.Since(start),
	}
}
