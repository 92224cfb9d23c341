package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mlbridge/gateway/internal/codec"
)

// SubprocessTransport runs the worker as a child process. The encoded payload
// is written to the worker's stdin and the worker's single JSON document is
// read from stdout.
//
// The target and args form an argv vector passed directly to the OS; payload
// content never reaches a shell, so shell metacharacters in payloads are
// inert.
type SubprocessTransport struct {
	codec  *codec.Registry
	logger *slog.Logger

	// killGrace bounds how long Wait blocks after the context expires and
	// the child is killed.
	killGrace time.Duration
}

func NewSubprocessTransport(reg *codec.Registry, logger *slog.Logger) *SubprocessTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessTransport{
		codec:     reg,
		logger:    logger,
		killGrace: 2 * time.Second,
	}
}

func (t *SubprocessTransport) Kind() Kind {
	return KindSubprocess
}

func (t *SubprocessTransport) Submit(ctx context.Context, req *Request, cfg Config) *Result {
	start := time.Now()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Target, cfg.Args...)
	cmd.Stdin = bytes.NewReader(req.Encoded)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = t.killGrace

	t.logger.Debug("spawning worker process",
		slog.String("target", cfg.Target),
		slog.String("operation", req.Operation),
		slog.Int("attempt", int(req.Attempt)),
	)

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		// CommandContext has already killed the child at this point.
		return failure(StatusTimeout,
			fmt.Sprintf("worker %s exceeded deadline after %s", cfg.Target, time.Since(start)),
			stderr.Bytes(), start)
	}
	if ctx.Err() != nil {
		return failure(StatusTransportError,
			fmt.Sprintf("submission cancelled: %v", ctx.Err()),
			stderr.Bytes(), start)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = fmt.Sprintf("worker exited with code %d", exitErr.ExitCode())
			}
			return failure(StatusWorkerError, detail, stderr.Bytes(), start)
		}
		// The process never ran (missing binary, permission denied).
		return failure(StatusTransportError,
			fmt.Sprintf("failed to start worker %s: %v", cfg.Target, err),
			nil, start)
	}

	data, err := t.codec.DecodeResult(req.Operation, stdout.Bytes())
	if err != nil {
		return failure(StatusInvalidResponse,
			fmt.Sprintf("worker stdout rejected: %v", err),
			stdout.Bytes(), start)
	}

	return &Result{
		Status:    StatusSuccess,
		Data:      data,
		RawOutput: stdout.Bytes(),
		Duration:  time.Since(start),
	}
}
