package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

const defaultPublishTimeout = 2 * time.Second

// QueueSender is the slice of the SQS API the publisher needs.
type QueueSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher emits evaluation events to the durable queue. Publishing is
// best-effort telemetry: a failed send is logged and counted, never
// propagated, so the evaluation serving path is never coupled to queue
// health.
type Publisher struct {
	client    QueueSender
	queueURL  string
	logger    *slog.Logger
	timeout   time.Duration
	onOutcome func(ok bool)
	now       func() time.Time
	newID     func() string
}

// PublisherOption customises a [Publisher].
type PublisherOption func(*Publisher)

// WithPublishTimeout bounds each SendMessage call.
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithPublisherLogger sets the logger used for send failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublishOutcome installs a hook invoked after every publish attempt,
// typically to feed a metrics counter.
func WithPublishOutcome(fn func(ok bool)) PublisherOption {
	return func(p *Publisher) {
		if fn != nil {
			p.onOutcome = fn
		}
	}
}

// NewPublisher creates a [Publisher] sending to queueURL.
func NewPublisher(client QueueSender, queueURL string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:    client,
		queueURL:  queueURL,
		logger:    slog.Default(),
		timeout:   defaultPublishTimeout,
		onOutcome: func(bool) {},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish constructs an [EvaluationEvent] with a fresh event_id and current
// timestamp and sends it to the queue. The send is bounded by the configured
// timeout; a failure drops the event.
func (p *Publisher) Publish(ctx context.Context, flagName, userID string, result bool) {
	event := EvaluationEvent{
		EventID:   p.newID(),
		UserID:    userID,
		FlagName:  flagName,
		Result:    result,
		Timestamp: p.now().UTC().Format(time.RFC3339),
	}

	body, err := event.Encode()
	if err != nil {
		p.logger.Error("encode evaluation event", "flag", flagName, "error", err)
		p.onOutcome(false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err = p.client.SendMessage(sendCtx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Warn("publish evaluation event", "flag", flagName, "event_id", event.EventID, "error", err)
		p.onOutcome(false)
		return
	}

	p.onOutcome(true)
}
