package stream

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns a sequence of byte chunks into text. It keeps an incomplete UTF-8 sequence found at the
// end of a chunk and completes it with the bytes of the next chunk, so the decoded text does not depend
// on where the transport split the stream. Invalid bytes are replaced with U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder returns a UTF-8 Decoder with no pending bytes.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode decodes chunk, prefixed by any bytes held back from the previous call. Trailing bytes that form
// the start of a multi-byte sequence are held back until the next Decode or Flush.
func (d *Decoder) Decode(chunk []byte) (string, error) {
	return d.transform(chunk, false)
}

// Flush decodes the held back bytes as the end of the stream. An incomplete sequence becomes U+FFFD.
func (d *Decoder) Flush() (string, error) {
	return d.transform(nil, true)
}

func (d *Decoder) transform(chunk []byte, atEOF bool) (string, error) {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = d.pending[:0]
	if len(src) == 0 {
		return "", nil
	}

	// Every source byte may expand to a 3-byte replacement character.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
	if err != nil && !errors.Is(err, transform.ErrShortSrc) {
		return "", fmt.Errorf("error decoding chunk: %w", err)
	}
	d.pending = append(d.pending, src[nSrc:]...)

	return string(dst[:nDst]), nil
}

// Lines splits decoded text into newline-terminated lines. A line that is not terminated yet is carried
// over to the next Push, so a record split across chunks is reassembled before it is parsed.
type Lines struct {
	partial strings.Builder
}

// Push appends text and returns every line completed by it, without the line terminator. A trailing
// carriage return is dropped so CRLF streams split the same way as LF streams.
func (l *Lines) Push(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			l.partial.WriteString(text)
			return lines
		}
		l.partial.WriteString(text[:i])
		lines = append(lines, strings.TrimSuffix(l.partial.String(), "\r"))
		l.partial.Reset()
		text = text[i+1:]
	}
}

// Flush returns the unterminated last line, if any, and resets the splitter.
func (l *Lines) Flush() []string {
	if l.partial.Len() == 0 {
		return nil
	}
	line := strings.TrimSuffix(l.partial.String(), "\r")
	l.partial.Reset()
	return []string{line}
}
