// Package main is the entry point for the toggled analytics consumer.
//
// The worker polls the evaluation-event queue and persists each event to
// DynamoDB, exposing Kubernetes-style probe endpoints on its own HTTP
// listener. The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Create the SQS and DynamoDB clients.
//  3. Probe both dependencies once, then start the periodic monitor.
//  4. Start the poll loop and the probe HTTP server (:8081).
//  5. Wait for SIGINT/SIGTERM, then gracefully shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/togglemaster/toggled/internal/analytics"
	"github.com/togglemaster/toggled/internal/config"
	"github.com/togglemaster/toggled/internal/consumer"
	"github.com/togglemaster/toggled/internal/health"
	"github.com/togglemaster/toggled/internal/logging"
	"github.com/togglemaster/toggled/internal/metrics"
	"github.com/togglemaster/toggled/internal/middleware"
	"github.com/togglemaster/toggled/internal/tracing"
)

const (
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsumer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("toggled-consumer", cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})

	queue := consumer.NewQueue(sqsClient, cfg.QueueURL)
	sink := analytics.NewSink(dynamoClient, cfg.TableName)

	m := metrics.NewConsumer()

	state := health.NewState()
	monitor := health.NewMonitor(state, queue.Probe, sink.Probe, cfg.ProbeInterval,
		health.WithMonitorLogger(log),
		health.WithProbeOutcome(m.SetDependencyHealth),
	)
	monitor.ProbeOnce(ctx)

	worker := consumer.New(queue, sink, state, cfg.MaxMessages, cfg.WaitTime,
		consumer.WithConsumerLogger(log),
		consumer.WithMessageOutcome(func(outcome consumer.Outcome) {
			m.MessagesTotal.WithLabelValues(string(outcome)).Inc()
		}),
		consumer.WithHeartbeatHook(m.RecordHeartbeat),
	)

	mux := http.NewServeMux()
	health.NewHandler(state, cfg.HeartbeatWindow()).Routes(mux)
	mux.Handle("GET /metrics", m.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.HTTPRequestLogging(log)(mux),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen HTTP %s: %w", cfg.HTTPAddr, err)
	}
	defer listener.Close()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	log.Info("consumer started", "http_addr", cfg.HTTPAddr, "queue_url", cfg.QueueURL, "table", cfg.TableName)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveErrCh:
	}
	stop()

	log.Info("consumer shutting down")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		if serveErr != nil {
			return serveErr
		}
		return fmt.Errorf("shutdown HTTP: %w", err)
	}

	return serveErr
}
