package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, ArrayValue([]PackedValue{
		IntValue(-7),
		UintValue(42),
		FloatValue(3.5),
		BoolValue(true),
		NilValue(),
		BytesValue([]byte("hello")),
	})))

	dec := msgpack.NewDecoder(&buf)
	got, err := DecodePackedValue(dec)
	require.NoError(t, err)

	arr, err := got.Array()
	require.NoError(t, err)
	require.Len(t, arr, 6)

	i, err := arr[0].Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-7), i)

	u, err := arr[1].Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), u)

	f, err := arr[2].Float64()
	require.NoError(t, err)
	assert.Equal(t, 3.5, f)

	b, err := arr[3].Bool()
	require.NoError(t, err)
	assert.True(t, b)

	assert.True(t, arr[4].IsNil())

	bs, err := arr[5].Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), bs)
}

func TestDecodePackedValueMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, map[string]any{"a": 1, "b": "x"}))

	dec := msgpack.NewDecoder(&buf)
	got, err := DecodePackedValue(dec)
	require.NoError(t, err)

	m, err := got.Map()
	require.NoError(t, err)

	v, ok := MapGet(m, "a")
	require.True(t, ok)
	i, err := v.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), i)

	_, ok = MapGet(m, "missing")
	assert.False(t, ok)
}

func TestTypeMismatchAccessors(t *testing.T) {
	v := IntValue(5)

	_, err := v.Bytes()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = v.Array()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestDecodePackedValueNeverPanicsOnGarbage(t *testing.T) {
	garbage := [][]byte{
		{0xc1},             // reserved/never-used msgpack tag
		{0x91},             // array header claiming 1 element, then EOF
		{0xdd, 0x7f, 0xff, 0xff, 0xff}, // implausible 32-bit array length, then EOF
		{},
	}
	for _, g := range garbage {
		dec := msgpack.NewDecoder(bytes.NewReader(g))
		assert.NotPanics(t, func() {
			_, _ = DecodePackedValue(dec)
		})
	}
}

func TestUnpackShortReadIsClassified(t *testing.T) {
	var out any
	err := Unpack(bytes.NewReader(nil), &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
}
