// Package config loads runtime configuration for the toggled binaries from
// environment variables.
//
// Flag API server ([Load]):
//   - AWS_REGION: AWS region for the SQS publisher (and, when DATABASE_URL is
//     unset, the SSM/Secrets Manager bootstrap). Required.
//   - SQS_QUEUE_URL: URL of the evaluation-event queue. Required.
//   - DATABASE_URL: PostgreSQL connection string. Optional; when unset the
//     connection parameters are resolved once at startup from SSM Parameter
//     Store and Secrets Manager (see the bootstrap package).
//   - SSM_PARAMETER_PREFIX: prefix for bootstrap parameters
//     (default "/togglemaster").
//   - HTTP_ADDR: listen address (default ":8080").
//   - MAX_JSON_BODY_SIZE: max HTTP JSON request body size in bytes
//     (default "1048576", must be > 0 if set).
//   - PUBLISH_TIMEOUT: upper bound on a single best-effort event publish
//     (default "2s", must be > 0 if set).
//
// Analytics consumer ([LoadConsumer]):
//   - AWS_REGION, SQS_QUEUE_URL: as above. Required.
//   - DYNAMODB_TABLE: analytics sink table name. Required.
//   - HTTP_ADDR: probe listen address (default ":8081").
//   - MAX_MESSAGES: messages fetched per poll (default "10", range 1-10).
//   - WAIT_TIME: SQS long-poll wait (default "20s", whole seconds, 0-20s).
//   - PROBE_INTERVAL: dependency health probe period (default "10s").
//   - HEARTBEAT_GRACE: slack added to WAIT_TIME for the liveness window
//     (default "5s").
//
// Both binaries:
//   - LOG_LEVEL: minimum log level (default "info").
//   - AWS_ENDPOINT_URL: custom AWS endpoint, e.g. a LocalStack instance.
//     Optional.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultServerHTTPAddr         = ":8080"
	defaultConsumerHTTPAddr       = ":8081"
	defaultSSMParameterPrefix     = "/togglemaster"
	defaultMaxJSONBodySize  int64 = 1 << 20 // 1MB
	defaultPublishTimeout         = 2 * time.Second
	defaultMaxMessages            = 10
	defaultWaitTime               = 20 * time.Second
	defaultProbeInterval          = 10 * time.Second
	defaultHeartbeatGrace         = 5 * time.Second
)

// Server holds the runtime configuration for the flag API server.
type Server struct {
	AWSRegion          string
	AWSEndpointURL     string
	QueueURL           string
	DatabaseURL        string
	SSMParameterPrefix string
	HTTPAddr           string
	LogLevel           string
	MaxJSONBodySize    int64
	PublishTimeout     time.Duration
}

// Consumer holds the runtime configuration for the analytics consumer.
type Consumer struct {
	AWSRegion      string
	AWSEndpointURL string
	QueueURL       string
	TableName      string
	HTTPAddr       string
	LogLevel       string
	MaxMessages    int32
	WaitTime       time.Duration
	ProbeInterval  time.Duration
	HeartbeatGrace time.Duration
}

// HeartbeatWindow returns the liveness window: the worker is considered hung
// when no heartbeat has been observed for longer than one long-poll wait plus
// the configured grace.
func (c Consumer) HeartbeatWindow() time.Duration {
	return c.WaitTime + c.HeartbeatGrace
}

// Load reads the flag API server configuration from environment variables,
// applying defaults where appropriate. It returns an error if required
// variables are missing or if optional values fail validation.
func Load() (Server, error) {
	region := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if region == "" {
		return Server{}, errors.New("AWS_REGION is required")
	}

	queueURL := strings.TrimSpace(os.Getenv("SQS_QUEUE_URL"))
	if queueURL == "" {
		return Server{}, errors.New("SQS_QUEUE_URL is required")
	}

	maxJSONBodySize := defaultMaxJSONBodySize
	if v := strings.TrimSpace(os.Getenv("MAX_JSON_BODY_SIZE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return Server{}, errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
		}
		maxJSONBodySize = n
	}

	publishTimeout, err := durationOrDefault("PUBLISH_TIMEOUT", defaultPublishTimeout)
	if err != nil {
		return Server{}, err
	}

	return Server{
		AWSRegion:          region,
		AWSEndpointURL:     strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL")),
		QueueURL:           queueURL,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SSMParameterPrefix: envOrDefault("SSM_PARAMETER_PREFIX", defaultSSMParameterPrefix),
		HTTPAddr:           envOrDefault("HTTP_ADDR", defaultServerHTTPAddr),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		MaxJSONBodySize:    maxJSONBodySize,
		PublishTimeout:     publishTimeout,
	}, nil
}

// LoadConsumer reads the analytics consumer configuration from environment
// variables, applying defaults where appropriate.
func LoadConsumer() (Consumer, error) {
	region := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if region == "" {
		return Consumer{}, errors.New("AWS_REGION is required")
	}

	queueURL := strings.TrimSpace(os.Getenv("SQS_QUEUE_URL"))
	if queueURL == "" {
		return Consumer{}, errors.New("SQS_QUEUE_URL is required")
	}

	tableName := strings.TrimSpace(os.Getenv("DYNAMODB_TABLE"))
	if tableName == "" {
		return Consumer{}, errors.New("DYNAMODB_TABLE is required")
	}

	maxMessages := defaultMaxMessages
	if v := strings.TrimSpace(os.Getenv("MAX_MESSAGES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10 {
			return Consumer{}, errors.New("MAX_MESSAGES must be an integer between 1 and 10")
		}
		maxMessages = n
	}

	waitTime, err := durationOrDefault("WAIT_TIME", defaultWaitTime)
	if err != nil {
		return Consumer{}, err
	}
	// SQS long-poll waits are whole seconds, capped at 20 by the service.
	if waitTime != waitTime.Truncate(time.Second) || waitTime > 20*time.Second {
		return Consumer{}, errors.New("WAIT_TIME must be a whole number of seconds, at most 20s")
	}

	probeInterval, err := durationOrDefault("PROBE_INTERVAL", defaultProbeInterval)
	if err != nil {
		return Consumer{}, err
	}

	heartbeatGrace, err := durationOrDefault("HEARTBEAT_GRACE", defaultHeartbeatGrace)
	if err != nil {
		return Consumer{}, err
	}

	return Consumer{
		AWSRegion:      region,
		AWSEndpointURL: strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL")),
		QueueURL:       queueURL,
		TableName:      tableName,
		HTTPAddr:       envOrDefault("HTTP_ADDR", defaultConsumerHTTPAddr),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		MaxMessages:    int32(maxMessages),
		WaitTime:       waitTime,
		ProbeInterval:  probeInterval,
		HeartbeatGrace: heartbeatGrace,
	}, nil
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}

	return parsed, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
