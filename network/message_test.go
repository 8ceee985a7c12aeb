package network

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	env := &Envelope{Type: MessageEntries, From: "s1", Nonce: "n1", Timestamp: time.Now(), Payload: []byte{1, 2, 3}}
	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if got.From != "s1" || got.Nonce != "n1" || len(got.Payload) != 3 {
		t.Errorf("Unexpected envelope: %+v", got)
	}
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"unknown type":    `{"type":"gossip","from":"s1"}`,
		"missing payload": `{"type":"entries","from":"s1"}`,
		"missing sender":  `{"type":"eof"}`,
	}
	for name, raw := range cases {
		if _, err := DecodeEnvelope([]byte(raw)); !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("%s: expected ErrBadEnvelope, got %v", name, err)
		}
	}

	if _, err := DecodeEnvelope([]byte(`{"type":"eof","from":"s1"}`)); err != nil {
		t.Errorf("Expected eof without payload to decode, got %v", err)
	}
}
