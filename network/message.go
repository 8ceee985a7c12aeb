package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types carried in an Envelope.
const (
	MessageEntries = "entries"
	MessageEOF     = "eof"
)

// Common errors for network operations
var (
	ErrFeedRunning    = errors.New("feed already running")
	ErrFeedNotRunning = errors.New("feed is not running")
	ErrSendFailed     = errors.New("failed to send message")
	ErrBadEnvelope    = errors.New("malformed envelope")
)

// Envelope is one frame on the wire. For entries messages the payload is an
// Arrow IPC stream of data.EntrySchema records.
type Envelope struct {
	Type      string    `json:"type"`
	From      string    `json:"from"`
	Nonce     string    `json:"nonce,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload,omitempty"`
}

// DecodeEnvelope parses and checks a raw frame.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	switch env.Type {
	case MessageEntries:
		if len(env.Payload) == 0 {
			return nil, fmt.Errorf("%w: entries message without payload", ErrBadEnvelope)
		}
	case MessageEOF:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadEnvelope, env.Type)
	}
	if env.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrBadEnvelope)
	}
	return &env, nil
}

// Encode serializes the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}
