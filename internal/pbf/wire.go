package pbf

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf key/value pair. Varint and fixed values are
// kept in varint, length-delimited payloads in bytes (aliasing the input).
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func wireError(n int) error {
	return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
}

// forEachField walks the top-level fields of a message in wire order.
func forEachField(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(data)
			f.varint = uint64(v)
		case protowire.Fixed64Type:
			f.varint, n = protowire.ConsumeFixed64(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return wireError(n)
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// decodePacked appends the values of a repeated scalar field. Both the
// packed and the unpacked encodings are accepted.
func decodePacked[T any](dst []T, f field, conv func(uint64) T) ([]T, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, conv(f.varint)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, wireError(n)
			}
			dst = append(dst, conv(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, fmt.Errorf("%w: field %d has wire type %d", ErrTruncated, f.num, f.typ)
	}
}

func toInt32(v uint64) int32 { return int32(v) }
func toUint32(v uint64) uint32 { return uint32(v) }
func toSint32(v uint64) int32 { return int32(protowire.DecodeZigZag(v)) }
func toSint64(v uint64) int64 { return protowire.DecodeZigZag(v) }
func toBool(v uint64) bool { return v != 0 }
func toMemberType(v uint64) MemberType { return MemberType(v) }

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint64Field(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(v))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendVarintField(b, num, protowire.EncodeBool(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendPacked writes a packed repeated scalar field. Empty slices are
// omitted entirely.
func appendPacked[T any](b []byte, num protowire.Number, vs []T, conv func(T) uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	size := 0
	for _, v := range vs {
		size += protowire.SizeVarint(conv(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	for _, v := range vs {
		b = protowire.AppendVarint(b, conv(v))
	}
	return b
}

func fromInt32(v int32) uint64 { return uint64(int64(v)) }
func fromUint32(v uint32) uint64 { return uint64(v) }
func fromSint32(v int32) uint64 { return protowire.EncodeZigZag(int64(v)) }
func fromSint64(v int64) uint64 { return protowire.EncodeZigZag(v) }
func fromBool(v bool) uint64 { return protowire.EncodeBool(v) }
func fromMemberType(v MemberType) uint64 { return uint64(v) }
