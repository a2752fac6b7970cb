// Package main is the entry point for the toggled flag API server.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Resolve the database DSN, from DATABASE_URL or from SSM Parameter
//     Store plus Secrets Manager.
//  3. Connect to PostgreSQL via pgxpool and apply migrations.
//  4. Create the SQS publisher and the toggle service.
//  5. Start the HTTP server (:8080).
//  6. Wait for SIGINT/SIGTERM, then gracefully shut down.
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
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/togglemaster/toggled/internal/bootstrap"
	"github.com/togglemaster/toggled/internal/config"
	"github.com/togglemaster/toggled/internal/events"
	"github.com/togglemaster/toggled/internal/logging"
	"github.com/togglemaster/toggled/internal/metrics"
	"github.com/togglemaster/toggled/internal/middleware"
	"github.com/togglemaster/toggled/internal/repository"
	"github.com/togglemaster/toggled/internal/server"
	"github.com/togglemaster/toggled/internal/service"
	"github.com/togglemaster/toggled/internal/tracing"
)

const (
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("toggled-server", cfg.LogLevel)
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
	dsn := cfg.DatabaseURL
	if dsn == "" {
		ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			if cfg.AWSEndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			}
		})
		secretsClient := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
			if cfg.AWSEndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			}
		})
		params, err := bootstrap.ResolveDatabaseParams(ctx, ssmClient, secretsClient, cfg.SSMParameterPrefix)
		if err != nil {
			return fmt.Errorf("resolve database params: %w", err)
		}
		dsn = params.DSN()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	repo := repository.NewPostgresRepository(pool)
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(pool); err != nil {
		return err
	}

	m := metrics.NewServer()

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	publisher := events.NewPublisher(sqsClient, cfg.QueueURL,
		events.WithPublishTimeout(cfg.PublishTimeout),
		events.WithPublisherLogger(log),
		events.WithPublishOutcome(m.IncPublish),
	)

	svc, err := service.New(repo, publisher,
		service.WithLogger(log),
		service.WithEvaluationOutcome(m.IncEvaluation),
	)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	apiHandler := server.NewHTTPHandler(svc, server.WithMaxJSONBodySize(cfg.MaxJSONBodySize))
	handler := middleware.HTTPRequestLogging(log)(m.InstrumentHandler(apiHandler))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(mux, "toggled-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
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

	log.Info("server started", "http_addr", cfg.HTTPAddr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveErrCh:
	}
	stop()

	log.Info("server shutting down")

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
