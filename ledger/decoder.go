package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// Policy decides what a Decoder does with a malformed line.
type Policy int

const (
	// PolicyAbort stops decoding at the first malformed line.
	PolicyAbort Policy = iota
	// PolicySkip reports the malformed line and continues with the next one.
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParsePolicy converts "abort" or "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort", "":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyAbort, fmt.Errorf("invalid malformed-entry policy %q; use abort|skip", s)
	}
}

// Sequencer hands out ledger ids in arrival order. It is safe for concurrent
// use so several producers can share one id space.
type Sequencer struct {
	next atomic.Int64
}

// NewSequencer returns a Sequencer whose first id is start.
func NewSequencer(start int64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next ledger id.
func (s *Sequencer) Next() int64 {
	return s.next.Add(1) - 1
}

// ParseMode maps a mode letter to an operation.
func ParseMode(mode string) (engine.Operation, bool) {
	switch mode {
	case "D":
		return engine.OpDeposit, true
	case "W":
		return engine.OpWithdraw, true
	case "T":
		return engine.OpTransfer, true
	case "C":
		return engine.OpCheckBalance, true
	default:
		return 0, false
	}
}

// ParseLine decodes one ledger line. The returned entry has no ledger id yet.
func ParseLine(line string) (engine.Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return engine.Entry{}, &ParseError{Text: line, Reason: fmt.Sprintf("expected 4 fields, got %d", len(fields))}
	}

	from, err := strconv.Atoi(fields[0])
	if err != nil {
		return engine.Entry{}, &ParseError{Text: line, Reason: "from is not an integer"}
	}
	to, err := strconv.Atoi(fields[1])
	if err != nil {
		return engine.Entry{}, &ParseError{Text: line, Reason: "to is not an integer"}
	}
	amount, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return engine.Entry{}, &ParseError{Text: line, Reason: "amount is not an integer"}
	}
	if amount < 0 {
		return engine.Entry{}, &ParseError{Text: line, Reason: "amount is negative"}
	}
	op, ok := ParseMode(fields[3])
	if !ok {
		return engine.Entry{}, &ParseError{Text: line, Reason: fmt.Sprintf("unknown mode %q", fields[3])}
	}

	e := engine.Entry{Op: op, From: from, Amount: amount}
	if op == engine.OpTransfer {
		e.To = to
	} else {
		e.To = from
	}
	return e, nil
}

// FormatLine is the inverse of ParseLine.
func FormatLine(e engine.Entry) string {
	return fmt.Sprintf("%d %d %d %c", e.From, e.To, e.Amount, e.Op.Mode())
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithPolicy sets the malformed-line policy. The default is PolicyAbort.
func WithPolicy(p Policy) Option {
	return func(d *Decoder) { d.policy = p }
}

// WithSequencer shares a ledger id space with other producers.
func WithSequencer(s *Sequencer) Option {
	return func(d *Decoder) {
		if s != nil {
			d.seq = s
		}
	}
}

// OnMalformed registers a callback for every malformed line, whatever the policy.
func OnMalformed(fn func(*ParseError)) Option {
	return func(d *Decoder) { d.onMalformed = fn }
}

// WithLogger sets the logger used for skipped lines.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DefaultMaxLineLength bounds a single ledger line unless WithMaxLineLength
// says otherwise.
const DefaultMaxLineLength = 64 * 1024

// WithMaxLineLength sets the longest line, in bytes, the decoder accepts.
// Longer lines are malformed and go through the policy like any other.
func WithMaxLineLength(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Decoder reads ledger lines from a stream. Blank lines and lines starting
// with '#' are ignored and do not consume ledger ids.
type Decoder struct {
	reader      *bufio.Reader
	seq         *Sequencer
	policy      Policy
	onMalformed func(*ParseError)
	logger      *zap.Logger
	maxLine     int
	line        int
	skipped     int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		reader:  bufio.NewReader(r),
		seq:     NewSequencer(0),
		policy:  PolicyAbort,
		logger:  zap.NewNop(),
		maxLine: DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// readLine returns the next line without its terminator. A line longer than
// maxLine is consumed in full; only its first maxLine bytes are returned and
// tooLong is set.
func (d *Decoder) readLine() (text string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, err := d.reader.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > d.maxLine {
				tooLong = true
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// Next returns the next decoded entry, stamped with a ledger id. It returns
// io.EOF at the end of input and a *ParseError under PolicyAbort.
func (d *Decoder) Next() (engine.Entry, error) {
	for {
		raw, tooLong, err := d.readLine()
		if errors.Is(err, io.EOF) {
			return engine.Entry{}, io.EOF
		}
		if err != nil {
			return engine.Entry{}, fmt.Errorf("failed to read ledger: %w", err)
		}
		d.line++

		if tooLong {
			preview := raw
			if len(preview) > 32 {
				preview = preview[:32] + "..."
			}
			perr := &ParseError{Line: d.line, Text: preview, Reason: fmt.Sprintf("line exceeds %d bytes", d.maxLine)}
			if err := d.malformed(perr); err != nil {
				return engine.Entry{}, err
			}
			continue
		}

		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		e, err := ParseLine(text)
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				return engine.Entry{}, err
			}
			perr.Line = d.line
			if err := d.malformed(perr); err != nil {
				return engine.Entry{}, err
			}
			continue
		}

		e.LedgerID = d.seq.Next()
		return e, nil
	}
}

// malformed reports perr and returns it when the policy aborts.
func (d *Decoder) malformed(perr *ParseError) error {
	if d.onMalformed != nil {
		d.onMalformed(perr)
	}
	if d.policy == PolicyAbort {
		return perr
	}
	d.skipped++
	d.logger.Warn("skipping malformed ledger line", zap.Int("line", perr.Line), zap.String("reason", perr.Reason))
	return nil
}

// Skipped returns how many malformed lines were skipped under PolicySkip.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// ReadAll decodes the remaining input into a slice, for use with engine.Backlog.
func (d *Decoder) ReadAll() ([]engine.Entry, error) {
	var entries []engine.Entry
	for {
		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
