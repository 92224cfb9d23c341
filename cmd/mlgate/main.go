// Command mlgate submits an ML operation to an external worker and prints
// the normalized result as JSON.
//
// Usage:
//
//	mlgate submit --operation sentiment --payload-file review.json \
//	    --transport subprocess --target ./predict.py --timeout-ms 5000
//
// Exit codes: 0 on Success, 1 on any terminal failure, 2 on malformed
// invocation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlbridge/gateway/internal/cache"
	"github.com/mlbridge/gateway/internal/codec"
	"github.com/mlbridge/gateway/internal/crypto"
	"github.com/mlbridge/gateway/internal/transport"
	"github.com/mlbridge/gateway/internal/transport/broker"
	"github.com/mlbridge/gateway/internal/version"
	"github.com/mlbridge/gateway/pkg/gateway"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 || os.Args[1] != "submit" {
		fmt.Fprintln(os.Stderr, "usage: mlgate submit [flags]")
		return exitUsage
	}

	flags := flag.NewFlagSet("submit", flag.ContinueOnError)
	var (
		operation   = flags.String("operation", "", "Worker operation to invoke (e.g. sentiment)")
		payloadFile = flags.String("payload-file", "", "Path to a JSON file holding the request payload")
		transportKind = flags.String("transport", getEnv("MLGATE_TRANSPORT", "subprocess"),
			"Transport variant: subprocess, http, or queue")
		target    = flags.String("target", getEnv("MLGATE_TARGET", ""), "Script path, worker URL, or queue name")
		timeoutMS = flags.Int("timeout-ms", getEnvInt("MLGATE_TIMEOUT_MS", 30000), "Per-attempt deadline in milliseconds")
		redisAddr = flags.String("redis-addr", getEnv("MLGATE_REDIS_ADDR", "localhost:6379"),
			"Redis address for the queue transport and shared cache")
		sealKey = flags.String("seal-key", getEnv("MLGATE_SEAL_KEY", ""),
			"Optional key for sealing queue payloads (16+ bytes)")
		logLevel = flags.String("log-level", getEnv("MLGATE_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	)
	if err := flags.Parse(os.Args[2:]); err != nil {
		return exitUsage
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	logger.Info("mlgate",
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
	)

	if *operation == "" || *payloadFile == "" || *target == "" {
		fmt.Fprintln(os.Stderr, "submit: --operation, --payload-file, and --target are required")
		return exitUsage
	}

	raw, err := os.ReadFile(*payloadFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: cannot read payload file: %v\n", err)
		return exitUsage
	}
	payload, err := codec.Decode(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: payload file is not a JSON object: %v\n", err)
		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, cancelling", slog.String("signal", sig.String()))
		cancel()
	}()

	registry := codec.NewRegistry()
	cfg := transport.Config{
		Kind:    transport.Kind(*transportKind),
		Target:  *target,
		Timeout: time.Duration(*timeoutMS) * time.Millisecond,
	}

	var (
		tr          transport.Transport
		resultCache cache.Cache = cache.NewLRUCache(1024)
	)

	switch cfg.Kind {
	case transport.KindSubprocess:
		tr = transport.NewSubprocessTransport(registry, logger)

	case transport.KindHTTP:
		tr = transport.NewHTTPTransport(registry, logger)

	case transport.KindQueue:
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		b := broker.NewRedisBroker(client, *target, logger)

		var opts []transport.QueueOption
		if *sealKey != "" {
			sealer, err := crypto.NewSealer([]byte(*sealKey))
			if err != nil {
				fmt.Fprintf(os.Stderr, "submit: invalid seal key: %v\n", err)
				return exitUsage
			}
			opts = append(opts, transport.WithSealer(sealer))
		}

		qt := transport.NewQueueTransport(b, registry, logger, opts...)
		if err := qt.Start(ctx); err != nil {
			logger.Error("failed to start queue transport", slog.String("error", err.Error()))
			return exitFailure
		}
		tr = qt

		// Queue deployments usually run several gateway instances; share
		// memoized results through Redis under the in-process LRU.
		resultCache = cache.NewTieredCache(cache.DefaultTieredConfig(), cache.NewRedisCache(client, ""))

	default:
		fmt.Fprintf(os.Stderr, "submit: unknown transport %q\n", *transportKind)
		return exitUsage
	}

	gw, err := gateway.New(gateway.Config{
		Transport:       tr,
		TransportConfig: cfg,
		Codec:           registry,
		Cache:           resultCache,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to build gateway", slog.String("error", err.Error()))
		return exitFailure
	}

	result, err := gw.Submit(ctx, *operation, payload)
	if err != nil {
		logger.Error("submission failed", slog.String("error", err.Error()))
		return exitFailure
	}

	out, _ := json.MarshalIndent(map[string]any{
		"status":       result.Status,
		"data":         result.Data,
		"error_detail": result.ErrorDetail,
		"duration_ms":  result.Duration.Milliseconds(),
	}, "", "  ")
	fmt.Println(string(out))

	if result.Status != transport.StatusSuccess {
		return exitFailure
	}
	return exitSuccess
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
