package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWriteReadCommandRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, &buf)

	require.NoError(t, s.WriteCommand(CommandProtocol, 9))

	cmd, err := s.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CommandProtocol, cmd.Name)
	require.Len(t, cmd.Args, 1)

	v, err := cmd.Arg(0)
	require.NoError(t, err)
	n, err := v.Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
}

func TestStreamCommandArgOutOfRange(t *testing.T) {
	cmd := Command{Name: "quit"}
	_, err := cmd.Arg(0)
	require.Error(t, err)
}

func TestStreamWriteReadReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, &buf)

	require.NoError(t, s.WriteReply(9))

	vals, err := s.ReadReply()
	require.NoError(t, err)
	require.Len(t, vals, 1)

	n, err := vals[0].Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
}

// TestStreamSequentialCommandsDoNotLeakFraming checks that decoding one
// well-formed frame never consumes bytes belonging to the next.
func TestStreamSequentialCommandsDoNotLeakFraming(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, &buf)

	require.NoError(t, s.WriteCommand(CommandIdle))
	require.NoError(t, s.WriteCommand(CommandQuit))

	first, err := s.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CommandIdle, first.Name)

	second, err := s.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CommandQuit, second.Name)
}

func TestStreamReadCommandRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, &buf)

	require.NoError(t, s.enc.EncodeArrayLen(0))

	_, err := s.ReadCommand()
	require.Error(t, err)
}
