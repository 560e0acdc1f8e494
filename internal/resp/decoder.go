package resp

import (
	"bytes"
	"errors"
	"strconv"
)

const (
	// DefaultMaxBulkLength mirrors the proto-max-bulk-len default of redis
	DefaultMaxBulkLength = 512 * 1024 * 1024

	maxLineLength = 64 * 1024
	maxDepth      = 128
	maxPrealloc   = 1024
)

var (
	// ErrIncomplete means the buffered bytes end in the middle of a value
	ErrIncomplete = errors.New("resp: incomplete value")

	// ErrProtocol is wrapped by every *ProtocolError
	ErrProtocol = errors.New("protocol error")
)

// ProtocolError reports malformed bytes received from the peer. The stream
// cannot be resynchronised after one.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolError(msg string) error {
	return &ProtocolError{Msg: msg}
}

// Decoder incrementally decodes a byte stream into Values. Bytes are handed
// over with Feed; Next returns complete values one at a time and keeps any
// trailing partial value buffered. Elements of a partially received array are
// decoded once, the decoder resumes after the last complete element.
type Decoder struct {
	buf     []byte
	off     int
	maxBulk int64
	// open holds the arrays still missing elements, innermost last
	open []frame
	// need is the buffered length required before parsing can progress
	need int
}

type frame struct {
	elems []Value
	want  int
}

// NewDecoder creates a decoder rejecting bulk strings longer than maxBulk
// bytes. Zero selects DefaultMaxBulkLength.
func NewDecoder(maxBulk int64) *Decoder {
	if maxBulk <= 0 {
		maxBulk = DefaultMaxBulkLength
	}
	return &Decoder{maxBulk: maxBulk}
}

// Feed appends p to the internal buffer. p is copied.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.need -= d.off
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next decodes the next complete value. It returns ErrIncomplete when more
// bytes are needed and a *ProtocolError when the stream is malformed.
func (d *Decoder) Next() (Value, error) {
	for {
		if len(d.buf) < d.need {
			return Value{}, ErrIncomplete
		}
		v, n, err := d.parse(d.buf[d.off:])
		if err != nil {
			return Value{}, err
		}
		d.consume(n)
		if v.kind == KindInvalid {
			// an array header, its elements follow
			continue
		}
		for len(d.open) > 0 {
			top := &d.open[len(d.open)-1]
			top.elems = append(top.elems, v)
			if len(top.elems) < top.want {
				break
			}
			v = MakeArray(top.elems...)
			d.open = d.open[:len(d.open)-1]
		}
		if len(d.open) == 0 {
			return v, nil
		}
	}
}

func (d *Decoder) consume(n int) {
	d.off += n
	d.need = 0
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
}

// DecodeAll decodes every complete value in data. Trailing partial bytes
// are reported as ErrIncomplete.
func DecodeAll(data []byte) ([]Value, error) {
	d := NewDecoder(0)
	d.Feed(data)
	var values []Value
	for d.Buffered() > 0 || len(d.open) > 0 {
		v, err := d.Next()
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// parse decodes one token from the front of buf and reports how many bytes
// it used. A non-empty array header opens a frame and yields an invalid
// Value.
func (d *Decoder) parse(buf []byte) (Value, int, error) {
	line, n, err := readLine(buf)
	if err != nil {
		return Value{}, 0, err
	}
	if len(line) == 0 {
		return Value{}, 0, protocolError("empty line")
	}
	switch line[0] {
	case '+':
		return MakeStatus(string(line[1:])), n, nil
	case '-':
		return MakeError(string(line[1:])), n, nil
	case ':':
		value, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return Value{}, 0, protocolError("illegal number " + string(line[1:]))
		}
		return MakeInt(value), n, nil
	case '$':
		return d.parseBulk(buf, line, n)
	case '*':
		return d.parseArray(line, n)
	default:
		return Value{}, 0, protocolError("illegal type byte " + strconv.QuoteRune(rune(line[0])))
	}
}

func (d *Decoder) parseBulk(buf []byte, header []byte, n int) (Value, int, error) {
	strLen, err := strconv.ParseInt(string(header[1:]), 10, 64)
	if err != nil || strLen < -1 {
		return Value{}, 0, protocolError("illegal bulk string header: " + string(header))
	}
	if strLen == -1 {
		return MakeNull(), n, nil
	}
	if strLen > d.maxBulk {
		return Value{}, 0, protocolError("bulk string length " + string(header[1:]) + " exceeds limit")
	}
	end := n + int(strLen)
	if len(buf) < end+2 {
		d.need = d.off + end + 2
		return Value{}, 0, ErrIncomplete
	}
	if buf[end] != '\r' || buf[end+1] != '\n' {
		return Value{}, 0, protocolError("bulk string not terminated by CRLF")
	}
	body := make([]byte, strLen)
	copy(body, buf[n:end])
	return MakeBulk(body), end + 2, nil
}

func (d *Decoder) parseArray(header []byte, n int) (Value, int, error) {
	count, err := strconv.ParseInt(string(header[1:]), 10, 64)
	if err != nil || count < -1 {
		return Value{}, 0, protocolError("illegal array header " + string(header[1:]))
	}
	switch {
	case count == -1:
		return MakeNull(), n, nil
	case count == 0:
		return MakeArray(), n, nil
	case count > d.maxBulk:
		return Value{}, 0, protocolError("array length " + string(header[1:]) + " exceeds limit")
	case len(d.open) >= maxDepth:
		return Value{}, 0, protocolError("nesting too deep")
	}
	d.open = append(d.open, frame{
		elems: make([]Value, 0, min(int(count), maxPrealloc)),
		want:  int(count),
	})
	return Value{}, n, nil
}

// readLine returns the line at the front of buf without its CRLF and the
// number of bytes it occupies including the CRLF
func readLine(buf []byte) ([]byte, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > maxLineLength {
			return nil, 0, protocolError("line too long")
		}
		return nil, 0, ErrIncomplete
	}
	if i == 0 || buf[i-1] != '\r' {
		return nil, 0, protocolError("line not terminated by CRLF")
	}
	return buf[:i-1], i + 1, nil
}
