package types

import (
	"encoding/json"
	"fmt"
)

// DecodeEnvelope parses one inbound frame
// FUNCTIONAL DISCOVERY: Type is mandatory, payload may be absent for commands without fields
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingCommandType
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into v
func DecodePayload(env Envelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidPayload, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return nil
}

// HasAttachment reports whether a raw attachment carries a value
func HasAttachment(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "null"
}

// NewEnvelope builds an inbound frame from a typed payload, mainly for clients and tests
func NewEnvelope(commandType string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: commandType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", commandType, err)
	}
	return Envelope{Type: commandType, Payload: data}, nil
}
