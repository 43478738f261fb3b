package stream_test

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
)

func collect(t *testing.T, r io.Reader, opts ...stream.Option) ([]string, error) {
	t.Helper()

	var fragments []string
	for fragment, err := range stream.Read(r, opts...) {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

func TestRead(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		chunkSize int
		want      []string
	}{
		{
			name: "Two records",
			body: "data: {\"response\":\"The average \"}\n" +
				"data: {\"response\":\"age is 34.2.\"}\n",
			want: []string{"The average ", "age is 34.2."},
		},
		{
			name:      "Record split across chunks",
			body:      "data: {\"response\":\"Hello\"}\ndata: {\"response\":\" world\"}\n",
			chunkSize: 7,
			want:      []string{"Hello", " world"},
		},
		{
			name: "Unmarked lines are ignored",
			body: "\n: keepalive\nevent: message\ndata: {\"response\":\"a\"}\n\nid: 3\ndata: {\"response\":\"b\"}\n",
			want: []string{"a", "b"},
		},
		{
			name: "Marker without the space is ignored",
			body: "data:{\"response\":\"x\"}\ndata: {\"response\":\"y\"}\n",
			want: []string{"y"},
		},
		{
			name: "CRLF line endings",
			body: "data: {\"response\":\"a\"}\r\ndata: {\"response\":\"b\"}\r\n",
			want: []string{"a", "b"},
		},
		{
			name: "Last record without newline",
			body: "data: {\"response\":\"a\"}\ndata: {\"response\":\"b\"}",
			want: []string{"a", "b"},
		},
		{
			name: "Escaped newline inside a fragment",
			body: "data: {\"response\":\"line one\\nline two\"}\n",
			want: []string{"line one\nline two"},
		},
		{
			name: "Empty body",
			body: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, strings.NewReader(tt.body), stream.WithChunkSize(tt.chunkSize))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Read() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadChunkBoundaryInvariance(t *testing.T) {
	body := "data: {\"response\":\"héllo wörld \"}\n" +
		": ping\n" +
		"data: {\"response\":\"你好 🎉 ñ\"}\n"
	want := "héllo wörld 你好 🎉 ñ"

	for size := 1; size <= len(body); size++ {
		got, err := collect(t, strings.NewReader(body), stream.WithChunkSize(size))
		if err != nil {
			t.Fatalf("chunk size %d: Read() error = %v", size, err)
		}
		if joined := strings.Join(got, ""); joined != want {
			t.Errorf("chunk size %d: Read() = %q, want %q", size, joined, want)
		}
	}
}

func TestReadOneByteReader(t *testing.T) {
	body := "data: {\"response\":\"€uro\"}\ndata: {\"response\":\" 🚀\"}\n"

	got, err := collect(t, iotest.OneByteReader(strings.NewReader(body)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if joined := strings.Join(got, ""); joined != "€uro 🚀" {
		t.Errorf("Read() = %q, want %q", joined, "€uro 🚀")
	}
}

func TestReadMalformed(t *testing.T) {
	body := "data: {\"response\":\"a\"}\n" +
		"data: {not json}\n" +
		"data: {\"other\":\"field\"}\n" +
		"data: {\"response\":\"b\"}\n"

	t.Run("Skip", func(t *testing.T) {
		got, err := collect(t, strings.NewReader(body), stream.WithPolicy(stream.SkipMalformed))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if want := []string{"a", "b"}; !slices.Equal(got, want) {
			t.Errorf("Read() = %q, want %q", got, want)
		}
	})

	t.Run("Abort", func(t *testing.T) {
		got, err := collect(t, strings.NewReader(body), stream.WithPolicy(stream.AbortOnMalformed))
		if err == nil {
			t.Fatal("Read() error = nil, want malformed record error")
		}
		var merr *stream.MalformedRecordError
		if !errors.As(err, &merr) {
			t.Fatalf("Read() error = %T, want *stream.MalformedRecordError", err)
		}
		if merr.Line != 2 {
			t.Errorf("MalformedRecordError.Line = %d, want 2", merr.Line)
		}
		if want := []string{"a"}; !slices.Equal(got, want) {
			t.Errorf("Read() fragments before error = %q, want %q", got, want)
		}
	})
}

func TestReadError(t *testing.T) {
	errBoom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"response\":\"partial\"}\n"),
		iotest.ErrReader(errBoom),
	)

	got, err := collect(t, r)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Read() error = %v, want %v", err, errBoom)
	}
	if want := []string{"partial"}; !slices.Equal(got, want) {
		t.Errorf("Read() fragments before error = %q, want %q", got, want)
	}
}

func TestReadStopsOnBreak(t *testing.T) {
	body := "data: {\"response\":\"a\"}\ndata: {\"response\":\"b\"}\ndata: {\"response\":\"c\"}\n"

	var got []string
	for fragment, err := range stream.Read(strings.NewReader(body)) {
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, fragment)
		if len(got) == 2 {
			break
		}
	}
	if want := []string{"a", "b"}; !slices.Equal(got, want) {
		t.Errorf("Read() = %q, want %q", got, want)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		want     string
		wantOK   bool
		wantFail bool
	}{
		{name: "Record", line: `data: {"response":"x"}`, want: "x", wantOK: true},
		{name: "Empty fragment", line: `data: {"response":""}`, want: "", wantOK: true},
		{name: "Blank line", line: "", wantOK: false},
		{name: "Comment", line: ": keepalive", wantOK: false},
		{name: "Bad JSON", line: "data: nope", wantFail: true},
		{name: "Missing field", line: `data: {"text":"x"}`, wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := stream.ParseLine(tt.line)
			if (err != nil) != tt.wantFail {
				t.Fatalf("ParseLine() error = %v, wantFail %v", err, tt.wantFail)
			}
			if ok != tt.wantOK {
				t.Errorf("ParseLine() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    stream.Policy
		wantErr bool
	}{
		{in: "", want: stream.SkipMalformed},
		{in: "skip", want: stream.SkipMalformed},
		{in: "ABORT", want: stream.AbortOnMalformed},
		{in: "retry", wantErr: true},
	}

	for _, tt := range tests {
		got, err := stream.ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAccumulator(t *testing.T) {
	var acc stream.Accumulator
	for _, fragment := range []string{"The ", "average ", "age"} {
		acc.Add(fragment)
	}
	if got := acc.String(); got != "The average age" {
		t.Errorf("Accumulator.String() = %q, want %q", got, "The average age")
	}
}
