package config

import (
	"testing"
	"time"
)

func setServerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_REGION", "eu-west-2")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.eu-west-2.amazonaws.com/123/evaluations")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SSM_PARAMETER_PREFIX", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_JSON_BODY_SIZE", "")
	t.Setenv("PUBLISH_TIMEOUT", "")
	t.Setenv("AWS_ENDPOINT_URL", "")
}

func setConsumerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_REGION", "eu-west-2")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.eu-west-2.amazonaws.com/123/evaluations")
	t.Setenv("DYNAMODB_TABLE", "evaluations")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_MESSAGES", "")
	t.Setenv("WAIT_TIME", "")
	t.Setenv("PROBE_INTERVAL", "")
	t.Setenv("HEARTBEAT_GRACE", "")
	t.Setenv("AWS_ENDPOINT_URL", "")
}

func TestLoad_RequiredVariables(t *testing.T) {
	setServerEnv(t)
	t.Setenv("AWS_REGION", "")
	if _, err := Load(); err == nil {
		t.Error("Load() should fail without AWS_REGION")
	}

	setServerEnv(t)
	t.Setenv("SQS_QUEUE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("Load() should fail without SQS_QUEUE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setServerEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.SSMParameterPrefix != "/togglemaster" {
		t.Errorf("SSMParameterPrefix = %q, want /togglemaster", cfg.SSMParameterPrefix)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.MaxJSONBodySize != 1<<20 {
		t.Errorf("MaxJSONBodySize = %d, want %d", cfg.MaxJSONBodySize, 1<<20)
	}
	if cfg.PublishTimeout != 2*time.Second {
		t.Errorf("PublishTimeout = %v, want 2s", cfg.PublishTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
}

func TestLoad_MaxJSONBodySize_Invalid(t *testing.T) {
	for _, v := range []string{"abc", "0", "-1"} {
		setServerEnv(t)
		t.Setenv("MAX_JSON_BODY_SIZE", v)
		if _, err := Load(); err == nil {
			t.Errorf("Load() should fail for MAX_JSON_BODY_SIZE=%q", v)
		}
	}
}

func TestLoad_PublishTimeout_Invalid(t *testing.T) {
	for _, v := range []string{"soon", "0s", "-1s"} {
		setServerEnv(t)
		t.Setenv("PUBLISH_TIMEOUT", v)
		if _, err := Load(); err == nil {
			t.Errorf("Load() should fail for PUBLISH_TIMEOUT=%q", v)
		}
	}
}

func TestLoadConsumer_RequiredVariables(t *testing.T) {
	setConsumerEnv(t)
	t.Setenv("DYNAMODB_TABLE", "")
	if _, err := LoadConsumer(); err == nil {
		t.Error("LoadConsumer() should fail without DYNAMODB_TABLE")
	}
}

func TestLoadConsumer_Defaults(t *testing.T) {
	setConsumerEnv(t)

	cfg, err := LoadConsumer()
	if err != nil {
		t.Fatalf("LoadConsumer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q, want :8081", cfg.HTTPAddr)
	}
	if cfg.MaxMessages != 10 {
		t.Errorf("MaxMessages = %d, want 10", cfg.MaxMessages)
	}
	if cfg.WaitTime != 20*time.Second {
		t.Errorf("WaitTime = %v, want 20s", cfg.WaitTime)
	}
	if cfg.ProbeInterval != 10*time.Second {
		t.Errorf("ProbeInterval = %v, want 10s", cfg.ProbeInterval)
	}
	if cfg.HeartbeatGrace != 5*time.Second {
		t.Errorf("HeartbeatGrace = %v, want 5s", cfg.HeartbeatGrace)
	}
}

func TestLoadConsumer_MaxMessages_Range(t *testing.T) {
	for _, v := range []string{"0", "11", "-3", "lots"} {
		setConsumerEnv(t)
		t.Setenv("MAX_MESSAGES", v)
		if _, err := LoadConsumer(); err == nil {
			t.Errorf("LoadConsumer() should fail for MAX_MESSAGES=%q", v)
		}
	}

	setConsumerEnv(t)
	t.Setenv("MAX_MESSAGES", "1")
	cfg, err := LoadConsumer()
	if err != nil {
		t.Fatalf("LoadConsumer() error = %v", err)
	}
	if cfg.MaxMessages != 1 {
		t.Errorf("MaxMessages = %d, want 1", cfg.MaxMessages)
	}
}

func TestLoadConsumer_WaitTime_Constraints(t *testing.T) {
	for _, v := range []string{"21s", "1500ms", "-5s"} {
		setConsumerEnv(t)
		t.Setenv("WAIT_TIME", v)
		if _, err := LoadConsumer(); err == nil {
			t.Errorf("LoadConsumer() should fail for WAIT_TIME=%q", v)
		}
	}
}

func TestConsumer_HeartbeatWindow(t *testing.T) {
	cfg := Consumer{WaitTime: 20 * time.Second, HeartbeatGrace: 5 * time.Second}
	if got := cfg.HeartbeatWindow(); got != 25*time.Second {
		t.Errorf("HeartbeatWindow() = %v, want 25s", got)
	}
}
