// Package consumer drains the evaluation-event queue into the analytics
// sink, honouring the at-least-once contract: a message is deleted from the
// queue only strictly after its record has been durably written.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one received queue message. ReceiptHandle identifies this
// delivery for acknowledgement; it is only valid until the visibility
// timeout elapses.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// QueueAPI is the slice of the SQS API the queue wrapper needs.
type QueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Queue wraps one SQS queue URL with the operations the consumer needs.
type Queue struct {
	client QueueAPI
	url    string
}

// NewQueue creates a [Queue] for the given URL.
func NewQueue(client QueueAPI, url string) *Queue {
	return &Queue{client: client, url: url}
}

// Receive long-polls for up to max messages, waiting at most wait for the
// first one. It returns an empty slice, not an error, when the wait elapses
// with nothing to deliver, so the caller regains control every cycle.
func (q *Queue) Receive(ctx context.Context, max int32, wait time.Duration) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}

	return messages, nil
}

// Delete acknowledges one delivery, removing the message from the queue.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// Probe checks queue reachability with an attribute read. It never consumes
// messages.
func (q *Queue) Probe(ctx context.Context) error {
	_, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return fmt.Errorf("get queue attributes: %w", err)
	}

	return nil
}
