package natsclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/pkg/timestamp"
)

// Acknowledgment statuses
const (
	AckStatusOK       = "ok"
	AckStatusRejected = "rejected"
)

// UnsubscribeRequest is published on the target subject for every attempt
type UnsubscribeRequest struct {
	RequestID   string `json:"request_id"`
	ClientID    string `json:"client_id"`
	Target      string `json:"target"`
	Attempt     uint32 `json:"attempt"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// UnsubscribeAck is the reply a peer sends to the request's reply subject
type UnsubscribeAck struct {
	RequestID string `json:"request_id"`
	Target    string `json:"target"`
	Status    string `json:"status"`
}

// Validate checks the required request fields
func (r *UnsubscribeRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", errors.ErrInvalidData)
	}
	if r.Target == "" {
		return fmt.Errorf("%w: target is required", errors.ErrInvalidData)
	}
	if err := timestamp.Validate(r.TimestampMs); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}
	return nil
}

// Validate checks the required acknowledgment fields
func (a *UnsubscribeAck) Validate() error {
	if a.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", errors.ErrInvalidData)
	}
	if a.Status == "" {
		return fmt.Errorf("%w: status is required", errors.ErrInvalidData)
	}
	return nil
}

// Accepted reports whether the peer completed the unsubscribe
func (a *UnsubscribeAck) Accepted() bool {
	return a.Status == AckStatusOK
}

func newUnsubscribeRequest(requestID, clientID, target string, attempt uint32, now time.Time) *UnsubscribeRequest {
	return &UnsubscribeRequest{
		RequestID:   requestID,
		ClientID:    clientID,
		Target:      target,
		Attempt:     attempt,
		TimestampMs: timestamp.ToUnixMs(now),
	}
}

func decodeRequest(data []byte) (*UnsubscribeRequest, error) {
	var req UnsubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidData, err),
			"natsclient", "decodeRequest", "unmarshal request")
	}
	if err := req.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "natsclient", "decodeRequest", "validate request")
	}
	return &req, nil
}

func decodeAck(data []byte) (*UnsubscribeAck, error) {
	var ack UnsubscribeAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidData, err),
			"natsclient", "decodeAck", "unmarshal acknowledgment")
	}
	if err := ack.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "natsclient", "decodeAck", "validate acknowledgment")
	}
	return &ack, nil
}

// TopicToSubject maps a slash separated topic such as "unsubscribe/test" to
// the NATS subject "unsubscribe.test". MQTT style wildcards are translated
// ("+" to "*", trailing "#" to ">"). Leading, trailing and repeated separators
// are collapsed.
func TopicToSubject(topic string) string {
	parts := strings.FieldsFunc(topic, func(r rune) bool { return r == '/' })
	for i, p := range parts {
		switch p {
		case "+":
			parts[i] = "*"
		case "#":
			if i == len(parts)-1 {
				parts[i] = ">"
			}
		}
	}
	return strings.Join(parts, ".")
}
