// Package stream decodes the chat service's streamed response body into answer fragments.
//
// The body is newline separated text. Lines starting with Marker carry a JSON object whose "response"
// field is the next fragment of the answer; every other line is ignored.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// Marker prefixes every line that carries a fragment.
const Marker = "data: "

const (
	defaultChunkSize = 4096
	errLoggerKey     = "err"
)

// Policy decides what Read does with a marked line whose payload cannot be parsed.
type Policy int

const (
	// SkipMalformed logs the line and keeps reading. Fragments before and after it are kept.
	SkipMalformed Policy = iota
	// AbortOnMalformed yields a *MalformedRecordError and ends the sequence.
	AbortOnMalformed
)

var errMissingResponse = errors.New("missing response field")

// MalformedRecordError reports a marked line whose payload is not a valid record.
type MalformedRecordError struct {
	Line   int
	Record string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at line %d: %v", e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// Option configures Read.
type Option func(*options)

type options struct {
	policy    Policy
	chunkSize int
	logger    *slog.Logger
}

// WithPolicy sets the malformed line policy. The default is SkipMalformed.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithChunkSize sets how many bytes Read pulls from the body at a time.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the logger used to report skipped lines.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ParsePolicy maps a configuration value ("skip" or "abort") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipMalformed, nil
	case "abort":
		return AbortOnMalformed, nil
	default:
		return SkipMalformed, fmt.Errorf("unknown malformed record policy: %s", s)
	}
}

type record struct {
	Response *string `json:"response"`
}

// ParseLine extracts the fragment carried by line. ok is false for lines without Marker; those are not
// records and never produce an error.
func ParseLine(line string) (fragment string, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	payload, found := strings.CutPrefix(line, Marker)
	if !found {
		return "", false, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return "", false, fmt.Errorf("error unmarshaling record: %w", err)
	}
	if rec.Response == nil {
		return "", false, errMissingResponse
	}

	return *rec.Response, true, nil
}

// Read pulls r chunk by chunk until EOF and yields the fragments in the order they were received. A read
// error is yielded once and ends the sequence. Breaking out of the loop stops reading; closing r is left
// to the caller.
func Read(r io.Reader, opts ...Option) iter.Seq2[string, error] {
	o := options{
		policy:    SkipMalformed,
		chunkSize: defaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(string, error) bool) {
		dec := NewDecoder()
		var lines Lines
		lineNo := 0

		emit := func(batch []string) bool {
			for _, line := range batch {
				lineNo++
				fragment, ok, err := ParseLine(line)
				if err != nil {
					if o.policy == AbortOnMalformed {
						yield("", &MalformedRecordError{Line: lineNo, Record: line, Err: err})
						return false
					}
					o.logger.Warn("Skipping malformed record",
						slog.Int("line", lineNo),
						slog.String("record", line),
						slog.String(errLoggerKey, err.Error()))
					continue
				}
				if !ok {
					continue
				}
				if !yield(fragment, nil) {
					return false
				}
			}
			return true
		}

		buf := make([]byte, o.chunkSize)
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				text, err := dec.Decode(buf[:n])
				if err != nil {
					yield("", err)
					return
				}
				if !emit(lines.Push(text)) {
					return
				}
			}
			if readErr == nil {
				continue
			}
			if !errors.Is(readErr, io.EOF) {
				yield("", fmt.Errorf("error reading response: %w", readErr))
				return
			}

			tail, err := dec.Flush()
			if err != nil {
				yield("", err)
				return
			}
			if !emit(lines.Push(tail)) {
				return
			}
			emit(lines.Flush())
			return
		}
	}
}

// Accumulator concatenates the fragments of one response.
type Accumulator struct {
	sb strings.Builder
}

// Add appends fragment and returns the text accumulated so far.
func (a *Accumulator) Add(fragment string) string {
	a.sb.WriteString(fragment)
	return a.sb.String()
}

// String returns the text accumulated so far.
func (a *Accumulator) String() string {
	return a.sb.String()
}
