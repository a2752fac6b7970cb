// Package analytics persists evaluation events to the DynamoDB analytics
// table.
package analytics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/togglemaster/toggled/internal/events"
)

// TableAPI is the slice of the DynamoDB API the sink needs.
type TableAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Sink writes analytics records keyed by event_id. A put with an event_id
// that already exists replaces the item in place, so redelivered messages
// do not accumulate duplicate records.
type Sink struct {
	client TableAPI
	table  string
}

// NewSink creates a [Sink] writing to the named table.
func NewSink(client TableAPI, table string) *Sink {
	return &Sink{client: client, table: table}
}

// Write durably persists one evaluation record. The event must already
// carry its event_id.
func (s *Sink) Write(ctx context.Context, event events.EvaluationEvent) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"event_id":  &types.AttributeValueMemberS{Value: event.EventID},
			"user_id":   &types.AttributeValueMemberS{Value: event.UserID},
			"flag_name": &types.AttributeValueMemberS{Value: event.FlagName},
			"result":    &types.AttributeValueMemberBOOL{Value: event.Result},
			"timestamp": &types.AttributeValueMemberS{Value: event.Timestamp},
		},
	})
	if err != nil {
		return fmt.Errorf("put analytics record %q: %w", event.EventID, err)
	}

	return nil
}

// Probe checks table reachability with a control-plane describe call. It
// never touches item data.
func (s *Sink) Probe(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("describe table %q: %w", s.table, err)
	}

	return nil
}
