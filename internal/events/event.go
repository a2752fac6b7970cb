// Package events defines the evaluation-event contract between the flag API
// and the analytics consumer, and the SQS publisher that emits events.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EvaluationEvent is the queue message recording a single flag evaluation,
// and the shape of the analytics record derived from it.
//
// EventID is assigned by the publisher at emission time, so a redelivered
// message carries the same identifier and the analytics sink can recognise
// it as a logical duplicate. Older producers omitted the field; the consumer
// tolerates that by assigning one at processing time, at the cost of a
// duplicate record per redelivery.
type EvaluationEvent struct {
	EventID   string `json:"event_id,omitempty"`
	UserID    string `json:"user_id"`
	FlagName  string `json:"flag_name"`
	Result    bool   `json:"result"`
	Timestamp string `json:"timestamp"`
}

// ErrMalformed reports a queue payload that cannot be parsed into a valid
// [EvaluationEvent].
var ErrMalformed = errors.New("malformed evaluation event")

type wireEvent struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	FlagName  string `json:"flag_name"`
	Result    *bool  `json:"result"`
	Timestamp string `json:"timestamp"`
}

// Decode parses a queue message body. All of user_id, flag_name, result, and
// timestamp are required; the timestamp must be ISO-8601. event_id is
// optional on the wire.
func Decode(body []byte) (EvaluationEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return EvaluationEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case wire.UserID == "":
		return EvaluationEvent{}, fmt.Errorf("%w: missing user_id", ErrMalformed)
	case wire.FlagName == "":
		return EvaluationEvent{}, fmt.Errorf("%w: missing flag_name", ErrMalformed)
	case wire.Result == nil:
		return EvaluationEvent{}, fmt.Errorf("%w: missing result", ErrMalformed)
	case wire.Timestamp == "":
		return EvaluationEvent{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}

	if _, err := time.Parse(time.RFC3339, wire.Timestamp); err != nil {
		return EvaluationEvent{}, fmt.Errorf("%w: bad timestamp: %v", ErrMalformed, err)
	}

	return EvaluationEvent{
		EventID:   wire.EventID,
		UserID:    wire.UserID,
		FlagName:  wire.FlagName,
		Result:    *wire.Result,
		Timestamp: wire.Timestamp,
	}, nil
}

// Encode serializes an event into a queue message body.
func (e EvaluationEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
