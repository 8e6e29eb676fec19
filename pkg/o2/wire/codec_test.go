package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

func TestBuilder_RoundTripScalarTypes(t *testing.T) {
	b := NewBuilder()
	b.AddInt32(42)
	b.AddFloat64(3.5)
	b.AddString("hello")
	b.AddBool(true)
	frame := b.Finish("/svc/echo", 1.25, types.FlagTCP)

	msg, err := DecodeMessage(frame)
	require.NoError(t, err)

	assert.Equal(t, "/svc/echo", msg.Address)
	assert.Equal(t, ",idsT", msg.Types)
	assert.Equal(t, 1.25, msg.Timestamp)
	assert.Equal(t, types.FlagTCP, msg.Flags)
	require.Len(t, msg.Args, 4)
	assert.Equal(t, int32(42), msg.Args[0].Int32)
	assert.Equal(t, 3.5, msg.Args[1].Double)
	assert.Equal(t, "hello", msg.Args[2].Str)
	assert.Equal(t, types.TypeTrue, msg.Args[3].Tag)
}

func TestBuilder_BlobRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddBlob([]byte{1, 2, 3})
	frame := b.Finish("/svc/blob", 0, 0)

	msg, err := DecodeMessage(frame)
	require.NoError(t, err)
	require.Len(t, msg.Args, 1)
	assert.Equal(t, []byte{1, 2, 3}, msg.Args[0].Blob)
}

func TestDecodeMessage_TruncatedFrameIsInvalid(t *testing.T) {
	b := NewBuilder()
	b.AddInt64(99)
	frame := b.Finish("/svc/x", 0, 0)

	_, err := DecodeMessage(frame[:len(frame)-2])
	assert.ErrorIs(t, err, types.ErrInvalidMsg)
}

func TestGetAs_NumericCoercion(t *testing.T) {
	arg := types.Argument{Tag: types.TypeInt32, Int32: 7}
	coerced, ok := GetAs(arg, types.TypeFloat64)
	require.True(t, ok)
	assert.Equal(t, 7.0, coerced.Double)
}

func TestGetAs_StringSymbolInterchangeable(t *testing.T) {
	arg := types.Argument{Tag: types.TypeString, Str: "svc"}
	coerced, ok := GetAs(arg, types.TypeSymbol)
	require.True(t, ok)
	assert.Equal(t, "svc", coerced.Str)
}

func TestGetAs_IncompatibleMismatchFails(t *testing.T) {
	arg := types.Argument{Tag: types.TypeBlob, Blob: []byte{1}}
	_, ok := GetAs(arg, types.TypeInt32)
	assert.False(t, ok)
}

func TestEncodeBundle_EmbedsSubMessages(t *testing.T) {
	b1 := NewBuilder()
	b1.AddInt32(1)
	m1 := b1.Finish("/a/x", 0, 0)

	b2 := NewBuilder()
	b2.AddInt32(2)
	m2 := b2.Finish("/a/y", 0, 0)

	frame := EncodeBundle(10.0, [][]byte{m1, m2})
	msg, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.True(t, msg.IsBundle())
	require.Len(t, msg.Bundle, 2)
	assert.Equal(t, "/a/x", msg.Bundle[0].Address)
	assert.Equal(t, "/a/y", msg.Bundle[1].Address)
}

func TestStringSize_PadsToFourByteBoundary(t *testing.T) {
	assert.Equal(t, 4, stringSize(""))
	assert.Equal(t, 4, stringSize("abc"))
	assert.Equal(t, 8, stringSize("abcd"))
}
