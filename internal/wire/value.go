package wire

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// maxElements caps how many entries a decoded array or map may hold; a
// larger one is reported as MalformedLength. The check runs on the value
// the library has already decoded, so it does not prevent the allocation
// itself, and byte strings are not checked.
const maxElements = 64 << 20 // 64 Mi entries/bytes

// Kind names the decoded shape of a PackedValue, mirroring the codec's
// supported value kinds (§4.1).
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindBytes
	KindArray
	KindMap
)

// KV is one (key, value) pair of a decoded map.
type KV struct {
	Key   PackedValue
	Value PackedValue
}

// PackedValue is a decoded-but-uninterpreted value from the wire: the
// carrier used for row cells, whose concrete meaning is learned from the
// schema rather than from the stream itself.
type PackedValue struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	bytes []byte
	arr   []PackedValue
	m     []KV
}

func NilValue() PackedValue             { return PackedValue{kind: KindNil} }
func BoolValue(v bool) PackedValue      { return PackedValue{kind: KindBool, b: v} }
func IntValue(v int64) PackedValue      { return PackedValue{kind: KindInt, i: v} }
func UintValue(v uint64) PackedValue    { return PackedValue{kind: KindUint, u: v} }
func FloatValue(v float64) PackedValue  { return PackedValue{kind: KindFloat, f: v} }
func BytesValue(v []byte) PackedValue   { return PackedValue{kind: KindBytes, bytes: v} }
func ArrayValue(v []PackedValue) PackedValue {
	return PackedValue{kind: KindArray, arr: v}
}
func MapValue(v []KV) PackedValue { return PackedValue{kind: KindMap, m: v} }

func (v PackedValue) Kind() Kind  { return v.kind }
func (v PackedValue) IsNil() bool { return v.kind == KindNil }

func (v PackedValue) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, typeMismatch(fmt.Sprintf("expected bool, got kind %d", v.kind))
	}
	return v.b, nil
}

// Int64 returns the value as a signed integer, accepting either a signed
// or unsigned decoded integer as long as it fits.
func (v PackedValue) Int64() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindUint:
		if v.u > math.MaxInt64 {
			return 0, typeMismatch("unsigned value overflows int64")
		}
		return int64(v.u), nil
	default:
		return 0, typeMismatch(fmt.Sprintf("expected integer, got kind %d", v.kind))
	}
}

func (v PackedValue) Uint64() (uint64, error) {
	switch v.kind {
	case KindUint:
		return v.u, nil
	case KindInt:
		if v.i < 0 {
			return 0, typeMismatch("signed value is negative")
		}
		return uint64(v.i), nil
	default:
		return 0, typeMismatch(fmt.Sprintf("expected integer, got kind %d", v.kind))
	}
}

func (v PackedValue) Float64() (float64, error) {
	if v.kind != KindFloat {
		return 0, typeMismatch(fmt.Sprintf("expected float, got kind %d", v.kind))
	}
	return v.f, nil
}

func (v PackedValue) Bytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, typeMismatch(fmt.Sprintf("expected byte string, got kind %d", v.kind))
	}
	return v.bytes, nil
}

func (v PackedValue) String() string {
	if v.kind == KindBytes {
		return string(v.bytes)
	}
	return fmt.Sprintf("%v", v.raw())
}

func (v PackedValue) Array() ([]PackedValue, error) {
	if v.kind != KindArray {
		return nil, typeMismatch(fmt.Sprintf("expected array, got kind %d", v.kind))
	}
	return v.arr, nil
}

func (v PackedValue) Map() ([]KV, error) {
	if v.kind != KindMap {
		return nil, typeMismatch(fmt.Sprintf("expected map, got kind %d", v.kind))
	}
	return v.m, nil
}

// MapGet looks up the string-keyed entry name within a KindMap value's
// pairs, reporting false when no key matches.
func MapGet(pairs []KV, name string) (PackedValue, bool) {
	for _, kv := range pairs {
		if kv.Key.kind == KindBytes && string(kv.Key.bytes) == name {
			return kv.Value, true
		}
	}
	return PackedValue{}, false
}

func (v PackedValue) raw() any {
	switch v.kind {
	case KindNil:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindBytes:
		return v.bytes
	case KindArray:
		return v.arr
	case KindMap:
		return v.m
	default:
		return nil
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder so a PackedValue can be
// passed directly wherever the library expects an Encode-able value (in
// particular, as a row cell inside a "rows"/"hash" command argument).
func (v PackedValue) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt64(v.i)
	case KindUint:
		return enc.EncodeUint64(v.u)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindBytes:
		return enc.EncodeBytes(v.bytes)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.m)); err != nil {
			return err
		}
		for _, kv := range v.m {
			if err := kv.Key.EncodeMsgpack(enc); err != nil {
				return err
			}
			if err := kv.Value.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("wire: cannot encode PackedValue with unknown kind %d", v.kind)
	}
}

// DecodePackedValue reads one self-describing value from dec. It never
// panics: malformed input is always reported as an error so a caller
// reading random bytes can re-synchronize at the next frame boundary
// rather than crash.
func DecodePackedValue(dec *msgpack.Decoder) (pv PackedValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			pv, err = PackedValue{}, shortRead(fmt.Sprintf("panic decoding value: %v", r))
		}
	}()
	return decodePackedValue(dec)
}

func decodePackedValue(dec *msgpack.Decoder) (PackedValue, error) {
	// EOF before the value's first byte is a clean hang-up between frames;
	// EOF after it is a torn frame.
	if _, err := dec.PeekCode(); err != nil {
		return PackedValue{}, classifyDecodeErr(err)
	}
	raw, err := dec.DecodeInterface()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return PackedValue{}, shortRead(err.Error())
		}
		return PackedValue{}, classifyDecodeErr(err)
	}
	return fromInterface(raw)
}

func fromInterface(raw any) (PackedValue, error) {
	switch x := raw.(type) {
	case nil:
		return NilValue(), nil
	case bool:
		return BoolValue(x), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case uint8:
		return UintValue(uint64(x)), nil
	case uint16:
		return UintValue(uint64(x)), nil
	case uint32:
		return UintValue(uint64(x)), nil
	case uint64:
		return UintValue(x), nil
	case uint:
		return UintValue(uint64(x)), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return BytesValue([]byte(x)), nil
	case []byte:
		return BytesValue(x), nil
	case []any:
		if len(x) > maxElements {
			return PackedValue{}, malformedLength("array length exceeds sanity limit")
		}
		out := make([]PackedValue, len(x))
		for i, e := range x {
			v, err := fromInterface(e)
			if err != nil {
				return PackedValue{}, err
			}
			out[i] = v
		}
		return ArrayValue(out), nil
	case map[string]any:
		if len(x) > maxElements {
			return PackedValue{}, malformedLength("map length exceeds sanity limit")
		}
		out := make([]KV, 0, len(x))
		for k, e := range x {
			v, err := fromInterface(e)
			if err != nil {
				return PackedValue{}, err
			}
			out = append(out, KV{Key: BytesValue([]byte(k)), Value: v})
		}
		return MapValue(out), nil
	default:
		return PackedValue{}, typeMismatch(fmt.Sprintf("unsupported decoded type %T", raw))
	}
}

func classifyDecodeErr(err error) error {
	if err == nil {
		return nil
	}
	// A clean io.EOF at a frame boundary means the peer hung up between
	// messages, not mid-frame: preserve its identity so callers can
	// errors.Is(err, io.EOF) to distinguish that from a torn frame.
	// io.ErrUnexpectedEOF (EOF after some but not all of a value's bytes
	// arrived) is always a short read.
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return shortRead(err.Error())
	}
	return &CodecError{Kind: ErrShortRead, Msg: err.Error()}
}

// Pack writes v, any Go value msgpack knows how to encode (including a
// PackedValue), to out. This is the codec's pack(out, v: T) operation.
func Pack(out io.Writer, v any) error {
	enc := msgpack.NewEncoder(out)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("wire: pack: %w", err)
	}
	return nil
}

// Unpack reads exactly one value from in into v, any pointer msgpack
// knows how to decode into. This is the codec's unpack(in, &v: T)
// operation; see DecodePackedValue for the schema-free variant.
func Unpack(in io.Reader, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = shortRead(fmt.Sprintf("panic decoding value: %v", r))
		}
	}()
	dec := msgpack.NewDecoder(in)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return shortRead(err.Error())
		}
		return classifyDecodeErr(err)
	}
	return nil
}
