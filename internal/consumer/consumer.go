package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/togglemaster/toggled/internal/events"
	"github.com/togglemaster/toggled/internal/health"
)

// Outcome is the terminal classification of one message delivery.
//
// A delivery ends Deleted only after its analytics record was durably
// written; Invalid and PersistFailed deliveries are abandoned in place, so
// the queue's visibility timeout redelivers them. Redelivery count and any
// dead-letter threshold are owned by the queue configuration, not by this
// code.
type Outcome string

const (
	// OutcomeDeleted: parsed, persisted, and acknowledged.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeInvalid: the body could not be parsed into a valid event.
	OutcomeInvalid Outcome = "invalid"
	// OutcomePersistFailed: the sink write failed; left for redelivery.
	OutcomePersistFailed Outcome = "persist_failed"
	// OutcomeDeleteFailed: persisted but the acknowledgement failed; the
	// redelivered copy will overwrite the same record.
	OutcomeDeleteFailed Outcome = "delete_failed"
)

const (
	defaultDependencyBackoff = 2 * time.Second
	defaultReceiveBackoff    = 10 * time.Second
)

// MessageQueue is the queue surface the consumer polls.
type MessageQueue interface {
	Receive(ctx context.Context, max int32, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Sink durably persists one analytics record.
type Sink interface {
	Write(ctx context.Context, event events.EvaluationEvent) error
}

// Consumer runs the poll loop. Messages within a batch are processed
// independently: one message's failure never aborts the batch, and no
// failure is fatal to the loop.
type Consumer struct {
	queue MessageQueue
	sink  Sink
	state *health.State

	logger      *slog.Logger
	maxMessages int32
	waitTime    time.Duration

	dependencyBackoff time.Duration
	receiveBackoff    time.Duration

	newID       func() string
	onOutcome   func(Outcome)
	onHeartbeat func()
}

// ConsumerOption customises a [Consumer].
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the consumer logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackoffs overrides the not-ready and receive-error sleep intervals.
func WithBackoffs(dependency, receive time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if dependency > 0 {
			c.dependencyBackoff = dependency
		}
		if receive > 0 {
			c.receiveBackoff = receive
		}
	}
}

// WithMessageOutcome installs a hook invoked with each message's terminal
// outcome, typically to feed a metrics counter.
func WithMessageOutcome(fn func(Outcome)) ConsumerOption {
	return func(c *Consumer) {
		if fn != nil {
			c.onOutcome = fn
		}
	}
}

// WithHeartbeatHook installs a hook invoked alongside every heartbeat.
func WithHeartbeatHook(fn func()) ConsumerOption {
	return func(c *Consumer) {
		if fn != nil {
			c.onHeartbeat = fn
		}
	}
}

// New creates a [Consumer] polling queue in batches of up to maxMessages,
// long-polling for waitTime per cycle.
func New(queue MessageQueue, sink Sink, state *health.State, maxMessages int32, waitTime time.Duration, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:             queue,
		sink:              sink,
		state:             state,
		logger:            slog.Default(),
		maxMessages:       maxMessages,
		waitTime:          waitTime,
		dependencyBackoff: defaultDependencyBackoff,
		receiveBackoff:    defaultReceiveBackoff,
		newID:             uuid.NewString,
		onOutcome:         func(Outcome) {},
		onHeartbeat:       func() {},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes the poll loop until ctx is cancelled. Every cycle records a
// heartbeat, including backoff cycles, so a deliberately idle worker still
// reads as alive.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("consumer started", "max_messages", c.maxMessages, "wait_time", c.waitTime)

	for ctx.Err() == nil {
		if !c.state.Snapshot().Ready() {
			c.heartbeat()
			sleep(ctx, c.dependencyBackoff)
			continue
		}

		messages, err := c.queue.Receive(ctx, c.maxMessages, c.waitTime)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("receive from queue", "error", err)
			c.heartbeat()
			sleep(ctx, c.receiveBackoff)
			continue
		}

		if len(messages) > 0 {
			c.logger.Debug("received batch", "count", len(messages))
		}
		for _, message := range messages {
			outcome := c.process(ctx, message)
			c.onOutcome(outcome)
			// Heartbeat per message, not per batch: a full batch against a
			// slow sink must not trip the liveness window while the worker
			// is still making progress.
			c.heartbeat()
		}

		c.heartbeat()
	}

	c.logger.Info("consumer stopped")
}

// process walks one message through parse, persist, and acknowledge. The
// persist-then-delete order is the pipeline's core guarantee: a crash
// between the two leaves the message on the queue, and the redelivered copy
// writes the same record again under the same event_id.
func (c *Consumer) process(ctx context.Context, message Message) Outcome {
	event, err := events.Decode([]byte(message.Body))
	if err != nil {
		c.logger.Error("invalid message, leaving for redelivery", "message_id", message.ID, "error", err)
		return OutcomeInvalid
	}

	if event.EventID == "" {
		// Legacy producer: no publish-time identifier. Assign one here;
		// redeliveries of this message will produce distinct records.
		event.EventID = c.newID()
	}

	if err := c.sink.Write(ctx, event); err != nil {
		c.logger.Error("persist record, leaving for redelivery", "message_id", message.ID, "event_id", event.EventID, "error", err)
		return OutcomePersistFailed
	}

	if err := c.queue.Delete(ctx, message.ReceiptHandle); err != nil {
		c.logger.Warn("delete after persist", "message_id", message.ID, "event_id", event.EventID, "error", err)
		return OutcomeDeleteFailed
	}

	c.logger.Info("event persisted", "event_id", event.EventID, "flag", event.FlagName)
	return OutcomeDeleted
}

func (c *Consumer) heartbeat() {
	c.state.Heartbeat()
	c.onHeartbeat()
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
