package resp

import (
	"fmt"
	"strconv"
)

// CRLF is the line separator of redis serialization protocol
const CRLF = "\r\n"

// Command is a command name plus its ordered arguments. A Command is never
// mutated after construction; Arg and With return extended copies.
type Command struct {
	name string
	args [][]byte
}

// NewCommand creates a command with raw byte arguments
func NewCommand(name string, args ...[]byte) Command {
	c := Command{name: name}
	if len(args) > 0 {
		c.args = make([][]byte, len(args))
		copy(c.args, args)
	}
	return c
}

func (c Command) Name() string {
	return c.name
}

// Args returns a copy of the argument list, not including the name
func (c Command) Args() [][]byte {
	out := make([][]byte, len(c.args))
	copy(out, c.args)
	return out
}

// Key returns the first argument, which is the key for most commands
func (c Command) Key() (string, bool) {
	if len(c.args) == 0 {
		return "", false
	}
	return string(c.args[0]), true
}

// Arg returns a copy of c with v appended to its arguments
func (c Command) Arg(v interface{}) Command {
	return c.With(v)
}

// With returns a copy of c with vs appended to its arguments
func (c Command) With(vs ...interface{}) Command {
	args := make([][]byte, len(c.args), len(c.args)+len(vs))
	copy(args, c.args)
	for _, v := range vs {
		args = append(args, FormatArg(v))
	}
	return Command{name: c.name, args: args}
}

func (c Command) String() string {
	s := c.name
	for _, a := range c.args {
		s += " " + strconv.Quote(string(a))
	}
	return s
}

// FormatArg converts a Go value into a command argument. An empty string
// becomes a zero-length bulk string, it is never dropped.
func FormatArg(v interface{}) []byte {
	switch a := v.(type) {
	case nil:
		return []byte{}
	case []byte:
		b := make([]byte, len(a))
		copy(b, a)
		return b
	case string:
		return []byte(a)
	case int:
		return strconv.AppendInt(nil, int64(a), 10)
	case int32:
		return strconv.AppendInt(nil, int64(a), 10)
	case int64:
		return strconv.AppendInt(nil, a, 10)
	case uint:
		return strconv.AppendUint(nil, uint64(a), 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(a), 10)
	case uint64:
		return strconv.AppendUint(nil, a, 10)
	case float32:
		return strconv.AppendFloat(nil, float64(a), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(nil, a, 'f', -1, 64)
	case bool:
		if a {
			return []byte("1")
		}
		return []byte("0")
	case fmt.Stringer:
		return []byte(a.String())
	default:
		return []byte(fmt.Sprint(a))
	}
}

// AppendCommand appends the request encoding of c, an array of bulk strings,
// to dst.
func AppendCommand(dst []byte, c Command) []byte {
	dst = appendHeader(dst, '*', len(c.args)+1)
	dst = appendBulk(dst, []byte(c.name))
	for _, arg := range c.args {
		dst = appendBulk(dst, arg)
	}
	return dst
}

// Encode returns the request encoding of c
func Encode(c Command) []byte {
	return AppendCommand(nil, c)
}

func appendHeader(dst []byte, marker byte, n int) []byte {
	dst = append(dst, marker)
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, CRLF...)
}

func appendBulk(dst []byte, b []byte) []byte {
	dst = appendHeader(dst, '$', len(b))
	dst = append(dst, b...)
	return append(dst, CRLF...)
}
