package network

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/arrow"
	"github.com/VanDung-dev/HieraLedger-Engine/data"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// DefaultBatchSize is the number of entries packed into one message.
const DefaultBatchSize = 256

// Sender pushes entry batches to a Feed.
type Sender struct {
	id        string
	push      zmq4.Socket
	conv      *data.Converter
	ipc       *arrow.IPCWriter
	batchSize int
	logger    *zap.Logger
	sent      int
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithBatchSize sets how many entries go into one message.
func WithBatchSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSenderID overrides the random sender id.
func WithSenderID(id string) SenderOption {
	return func(s *Sender) {
		if id != "" {
			s.id = id
		}
	}
}

// WithSenderLogger sets the sender logger.
func WithSenderLogger(logger *zap.Logger) SenderOption {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSender dials a feed at address.
func NewSender(ctx context.Context, address string, opts ...SenderOption) (*Sender, error) {
	s := &Sender{
		id:        uuid.NewString(),
		conv:      data.NewConverter(),
		ipc:       arrow.NewIPCWriter(),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.push = zmq4.NewPush(ctx)
	if err := s.push.Dial(address); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	s.logger = s.logger.With(zap.String("sender", s.id))
	return s, nil
}

// ID returns the sender id the feed uses to count eof messages.
func (s *Sender) ID() string {
	return s.id
}

// Sent returns the number of entries sent so far.
func (s *Sender) Sent() int {
	return s.sent
}

// Send ships entries in batches.
func (s *Sender) Send(entries []engine.Entry) error {
	for start := 0; start < len(entries); start += s.batchSize {
		end := min(start+s.batchSize, len(entries))
		if err := s.sendBatch(entries[start:end]); err != nil {
			return err
		}
		s.sent += end - start
	}
	return nil
}

func (s *Sender) sendBatch(batch []engine.Entry) error {
	record, err := s.conv.EntriesToRecord(batch)
	if err != nil {
		return err
	}
	defer record.Release()

	payload, err := s.ipc.SerializeToIPC(record)
	if err != nil {
		return err
	}
	return s.send(MessageEntries, payload)
}

// Finish tells the feed this sender is done.
func (s *Sender) Finish() error {
	if err := s.send(MessageEOF, nil); err != nil {
		return err
	}
	s.logger.Info("sender finished", zap.Int("entries", s.sent))
	return nil
}

func (s *Sender) send(kind string, payload []byte) error {
	env := &Envelope{
		Type:      kind,
		From:      s.id,
		Nonce:     uuid.NewString(),
		Timestamp: time.Now(),
		Payload:   payload,
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	if err := s.push.Send(zmq4.NewMsg(frame)); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Close closes the socket.
func (s *Sender) Close() error {
	return s.push.Close()
}
