package resp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKinds(t *testing.T) {
	values, err := DecodeAll([]byte("+OK\r\n-ERR bad\r\n:42\r\n$3\r\nabc\r\n$0\r\n\r\n$-1\r\n*-1\r\n*0\r\n"))
	require.NoError(t, err)
	require.Len(t, values, 8)

	assert.Equal(t, MakeStatus("OK"), values[0])
	assert.Equal(t, MakeError("ERR bad"), values[1])
	assert.Equal(t, MakeInt(42), values[2])
	assert.Equal(t, MakeBulk([]byte("abc")), values[3])
	assert.Equal(t, MakeBulk(nil), values[4])
	assert.True(t, values[5].IsNull())
	assert.True(t, values[6].IsNull())
	assert.Equal(t, MakeArray(), values[7])
}

func TestDecodeNestedArray(t *testing.T) {
	values, err := DecodeAll([]byte("*3\r\n+OK\r\n*2\r\n:1\r\n$1\r\nx\r\n-WRONGTYPE nope\r\n"))
	require.NoError(t, err)
	require.Len(t, values, 1)

	want := MakeArray(
		MakeStatus("OK"),
		MakeArray(MakeInt(1), MakeBulk([]byte("x"))),
		MakeError("WRONGTYPE nope"),
	)
	assert.Equal(t, want, values[0])
	assert.Equal(t, "[OK [1 x] WRONGTYPE nope]", values[0].String())
}

func TestDecodeByteByByte(t *testing.T) {
	raw := []byte("*2\r\n$5\r\nhello\r\n:7\r\n+PONG\r\n")
	d := NewDecoder(0)
	var got []Value
	for _, b := range raw {
		d.Feed([]byte{b})
		for {
			v, err := d.Next()
			if errors.Is(err, ErrIncomplete) {
				break
			}
			require.NoError(t, err)
			got = append(got, v)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, MakeArray(MakeBulk([]byte("hello")), MakeInt(7)), got[0])
	assert.Equal(t, MakeStatus("PONG"), got[1])
	assert.Equal(t, 0, d.Buffered())
}

func TestDecodeKeepsPartialTail(t *testing.T) {
	d := NewDecoder(0)
	d.Feed([]byte("+OK\r\n$5\r\nhel"))

	v, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "OK", v.String())

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 7, d.Buffered())

	d.Feed([]byte("lo\r\n"))
	v, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello", v.String())
}

func TestDecodeProtocolErrors(t *testing.T) {
	cases := map[string]string{
		"type byte":     "?what\r\n",
		"number":        ":12a\r\n",
		"bulk length":   "$x\r\n",
		"negative bulk": "$-2\r\n",
		"array length":  "*abc\r\n",
		"bulk trailer":  "$1\r\naXY",
		"bare newline":  "+OK\n",
		"empty line":    "\r\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			d := NewDecoder(0)
			d.Feed([]byte(raw))
			_, err := d.Next()
			assert.ErrorIs(t, err, ErrProtocol)
			var pe *ProtocolError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestDecodeBulkLimit(t *testing.T) {
	d := NewDecoder(4)
	d.Feed([]byte("$5\r\n"))
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrProtocol)

	d = NewDecoder(4)
	d.Feed([]byte("$4\r\nabcd\r\n"))
	v, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "abcd", v.String())
}

func TestRoundTripSetReply(t *testing.T) {
	req := Encode(NewCommand("SET").With("k", "v"))
	values, err := DecodeAll(req)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "[SET k v]", values[0].String())

	reply, err := DecodeAll(MakeStatus("OK").AppendTo(nil))
	require.NoError(t, err)
	assert.Equal(t, MakeStatus("OK"), reply[0])
	assert.Equal(t, "OK", reply[0].String())
}

func TestValueAppendTo(t *testing.T) {
	v := MakeArray(MakeStatus("QUEUED"), MakeInt(-3), MakeNull(), MakeBulk([]byte("")), MakeError("ERR x"))
	assert.Equal(t, "*5\r\n+QUEUED\r\n:-3\r\n$-1\r\n$0\r\n\r\n-ERR x\r\n", string(v.AppendTo(nil)))
}

func TestValueAccessors(t *testing.T) {
	n, err := MakeBulk([]byte("12")).Int()
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = MakeNull().Int()
	assert.Error(t, err)

	e := MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")
	_, err = e.Int()
	assert.True(t, IsReplyError(err))
	var re *ReplyError
	require.ErrorAs(t, e.Err(), &re)
	assert.Equal(t, "WRONGTYPE", re.Prefix())

	assert.NoError(t, MakeStatus("OK").Err())
	assert.Nil(t, MakeStatus("OK").Elems())
	assert.Equal(t, "bulk", MakeBulk(nil).Kind().String())
}

func TestDecodeLargeArrayInChunks(t *testing.T) {
	const count = 20000
	raw := appendHeader(nil, '*', count)
	for i := 0; i < count; i++ {
		raw = MakeInt(int64(i)).AppendTo(raw)
	}

	d := NewDecoder(0)
	half := len(raw) / 2
	d.Feed(raw[:half])
	_, err := d.Next()
	require.ErrorIs(t, err, ErrIncomplete)
	// complete elements are not kept around as raw bytes
	assert.Less(t, d.Buffered(), 16)

	var got Value
	for off := half; off < len(raw); off += 4096 {
		d.Feed(raw[off:min(off+4096, len(raw))])
		v, err := d.Next()
		if errors.Is(err, ErrIncomplete) {
			continue
		}
		require.NoError(t, err)
		got = v
	}
	require.Len(t, got.Elems(), count)
	for i, e := range got.Elems() {
		n, err := e.Int()
		require.NoError(t, err)
		require.Equal(t, int64(i), n)
	}
	assert.Equal(t, 0, d.Buffered())
}

func TestDecodeNestedArraySplitAnywhere(t *testing.T) {
	raw := []byte("*3\r\n*2\r\n$3\r\nabc\r\n*0\r\n:5\r\n*1\r\n$-1\r\n+PONG\r\n")
	want := MakeArray(
		MakeArray(MakeBulk([]byte("abc")), MakeArray()),
		MakeInt(5),
		MakeArray(MakeNull()),
	)
	for split := 1; split < len(raw); split++ {
		d := NewDecoder(0)
		d.Feed(raw[:split])
		var got []Value
		for {
			v, err := d.Next()
			if errors.Is(err, ErrIncomplete) {
				break
			}
			require.NoError(t, err)
			got = append(got, v)
		}
		d.Feed(raw[split:])
		for d.Buffered() > 0 {
			v, err := d.Next()
			require.NoError(t, err)
			got = append(got, v)
		}
		require.Len(t, got, 2, "split at %d", split)
		assert.Equal(t, want, got[0], "split at %d", split)
		assert.Equal(t, MakeStatus("PONG"), got[1])
	}
}

func TestDecodeIncompleteArrayInDecodeAll(t *testing.T) {
	values, err := DecodeAll([]byte("+OK\r\n*2\r\n:1\r\n"))
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, []Value{MakeStatus("OK")}, values)
}
