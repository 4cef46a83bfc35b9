package wire

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Stream is a bidirectional framed command channel: each message is a
// single packed array whose first element names a command and whose
// remaining elements are that command's arguments (§4.2). There is no
// length envelope beyond the codec's own array framing.
//
// A Stream owns exactly one reader and one writer for the lifetime of a
// session; it is never shared across goroutines, matching the
// single-threaded, strictly-ordered request/response discipline of the
// endpoint driver.
type Stream struct {
	dec *msgpack.Decoder
	enc *msgpack.Encoder
}

// NewStream wraps r/w (typically a peer's stdin/stdout) as a framed
// command channel.
func NewStream(r io.Reader, w io.Writer) *Stream {
	return &Stream{
		dec: msgpack.NewDecoder(r),
		enc: msgpack.NewEncoder(w),
	}
}

// Command is one decoded request or, for a reply, response frame: a
// command name (empty for a reply frame) plus its packed arguments.
type Command struct {
	Name string
	Args []PackedValue
}

// Arg returns the i-th argument, or an error if the frame carries fewer
// than i+1 arguments.
func (c Command) Arg(i int) (PackedValue, error) {
	if i < 0 || i >= len(c.Args) {
		return PackedValue{}, typeMismatch(fmt.Sprintf("command %q: missing argument %d", c.Name, i))
	}
	return c.Args[i], nil
}

// ReadCommand blocks until one full request frame arrives and decodes it.
// EOF before any bytes of the frame arrive is reported as io.EOF so
// callers can distinguish "peer hung up cleanly between messages" from a
// frame torn mid-flight (ErrShortRead).
func (s *Stream) ReadCommand() (Command, error) {
	pv, err := DecodePackedValue(s.dec)
	if err != nil {
		return Command{}, err
	}
	arr, err := pv.Array()
	if err != nil {
		return Command{}, fmt.Errorf("command frame: %w", err)
	}
	if len(arr) == 0 {
		return Command{}, typeMismatch("empty command frame")
	}
	nameBytes, err := arr[0].Bytes()
	if err != nil {
		return Command{}, fmt.Errorf("command name: %w", err)
	}
	return Command{Name: string(nameBytes), Args: arr[1:]}, nil
}

// WriteCommand sends a request frame naming a command and its arguments.
// Arguments may be plain Go values (string, int, []byte, ...) or a
// PackedValue, which implements msgpack.CustomEncoder.
func (s *Stream) WriteCommand(name string, args ...any) error {
	frame := make([]any, 0, len(args)+1)
	frame = append(frame, name)
	frame = append(frame, args...)
	if err := s.enc.Encode(frame); err != nil {
		return fmt.Errorf("wire: write command %q: %w", name, err)
	}
	return nil
}

// WriteReply sends a response frame: a bare packed array of return
// values, with no command-name element.
func (s *Stream) WriteReply(values ...any) error {
	if err := s.enc.Encode(values); err != nil {
		return fmt.Errorf("wire: write reply: %w", err)
	}
	return nil
}

// ReadReply blocks until one full response frame arrives and returns its
// values.
func (s *Stream) ReadReply() ([]PackedValue, error) {
	pv, err := DecodePackedValue(s.dec)
	if err != nil {
		return nil, err
	}
	arr, err := pv.Array()
	if err != nil {
		return nil, fmt.Errorf("reply frame: %w", err)
	}
	return arr, nil
}
