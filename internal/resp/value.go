package resp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	KindInvalid Kind = iota
	KindStatus
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a decoded reply. Exactly one of its payload fields is meaningful,
// selected by Kind.
type Value struct {
	kind  Kind
	str   string
	num   int64
	bulk  []byte
	elems []Value
}

// MakeStatus creates a simple status reply such as OK or PONG
func MakeStatus(status string) Value {
	return Value{kind: KindStatus, str: status}
}

// MakeError creates an error reply carrying the server message
func MakeError(msg string) Value {
	return Value{kind: KindError, str: msg}
}

// MakeInt creates an integer reply
func MakeInt(n int64) Value {
	return Value{kind: KindInteger, num: n}
}

// MakeBulk creates a binary safe bulk string reply. A nil slice is still a
// zero-length bulk string; use MakeNull for the null bulk string.
func MakeBulk(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBulk, bulk: b}
}

// MakeNull creates a null reply ($-1 or *-1)
func MakeNull() Value {
	return Value{kind: KindNull}
}

// MakeArray creates a (possibly empty) array reply
func MakeArray(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, elems: elems}
}

func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is a null bulk string or a null array
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// IsError reports whether v is an error reply
func (v Value) IsError() bool {
	return v.kind == KindError
}

// String renders the value as text: the status or error message, the bulk
// payload, the decimal integer, "" for null, and a bracketed list for arrays.
func (v Value) String() string {
	switch v.kind {
	case KindStatus, KindError:
		return v.str
	case KindInteger:
		return strconv.FormatInt(v.num, 10)
	case KindBulk:
		return string(v.bulk)
	case KindArray:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return ""
	}
}

// Int returns the integer payload. Bulk and status replies holding a decimal
// number are converted.
func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindInteger:
		return v.num, nil
	case KindBulk, KindStatus:
		return strconv.ParseInt(v.String(), 10, 64)
	case KindError:
		return 0, v.Err()
	default:
		return 0, fmt.Errorf("resp: %s reply is not an integer", v.kind)
	}
}

// Bytes returns the raw payload of bulk, status and error replies
func (v Value) Bytes() []byte {
	switch v.kind {
	case KindBulk:
		return v.bulk
	case KindStatus, KindError:
		return []byte(v.str)
	case KindInteger:
		return strconv.AppendInt(nil, v.num, 10)
	default:
		return nil
	}
}

// Elems returns the elements of an array reply, nil otherwise
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.elems
}

// Err returns a *ReplyError for error replies and nil for everything else
func (v Value) Err() error {
	if v.kind != KindError {
		return nil
	}
	return &ReplyError{Msg: v.str}
}

// AppendTo appends the wire encoding of v to dst
func (v Value) AppendTo(dst []byte) []byte {
	switch v.kind {
	case KindStatus:
		dst = append(dst, '+')
		dst = append(dst, v.str...)
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, v.str...)
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.num, 10)
	case KindBulk:
		dst = appendBulk(dst, v.bulk)
		return dst
	case KindNull:
		dst = append(dst, "$-1"...)
	case KindArray:
		dst = appendHeader(dst, '*', len(v.elems))
		for _, e := range v.elems {
			dst = e.AppendTo(dst)
		}
		return dst
	default:
		return dst
	}
	return append(dst, CRLF...)
}

// ReplyError is an error reply returned by the server for one command. It
// never affects the health of the connection.
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string {
	return e.Msg
}

// Prefix returns the error code, the first word of the message (ERR, WRONGTYPE, ...)
func (e *ReplyError) Prefix() string {
	if i := strings.IndexByte(e.Msg, ' '); i >= 0 {
		return e.Msg[:i]
	}
	return e.Msg
}

// IsReplyError reports whether err is or wraps a server error reply
func IsReplyError(err error) bool {
	var re *ReplyError
	return errors.As(err, &re)
}
