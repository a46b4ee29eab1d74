package cellcrypt

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// StandardType identifies a Go type with a fixed encoding independent of any
// SQL column type. Standard serializers back the EncryptWithKey overloads.
type StandardType uint8

const (
	StandardBool StandardType = iota + 1
	StandardByte
	StandardInt16
	StandardInt32
	StandardInt64
	StandardFloat32
	StandardFloat64
	StandardString
	StandardBytes
	StandardUUID
)

var standardTypeNames = [...]string{
	StandardBool:    "bool",
	StandardByte:    "uint8",
	StandardInt16:   "int16",
	StandardInt32:   "int32",
	StandardInt64:   "int64",
	StandardFloat32: "float32",
	StandardFloat64: "float64",
	StandardString:  "string",
	StandardBytes:   "[]byte",
	StandardUUID:    "uuid",
}

func (t StandardType) String() string {
	if int(t) < len(standardTypeNames) && standardTypeNames[t] != "" {
		return standardTypeNames[t]
	}
	return "unknown"
}

// ParseStandardType resolves a name returned by StandardType.String.
func ParseStandardType(name string) (StandardType, error) {
	for t, n := range standardTypeNames {
		if n != "" && n == name {
			return StandardType(t), nil
		}
	}
	return 0, newError(ErrUnknownSerializer, "there is no standard serializer for type %q", name)
}

// StandardTypeOf returns the standard type of value.
func StandardTypeOf(value any) (StandardType, error) {
	switch value.(type) {
	case bool:
		return StandardBool, nil
	case uint8:
		return StandardByte, nil
	case int16:
		return StandardInt16, nil
	case int32:
		return StandardInt32, nil
	case int64, int:
		return StandardInt64, nil
	case float32:
		return StandardFloat32, nil
	case float64:
		return StandardFloat64, nil
	case string:
		return StandardString, nil
	case []byte:
		return StandardBytes, nil
	case uuid.UUID:
		return StandardUUID, nil
	}
	return 0, newError(ErrUnknownSerializer, "encryption and decryption of data type %T is not supported", value)
}

// standardSerializer implements Serializer for every StandardType:
//   bool: 1 byte; uint8: 1 byte; int16/int32/int64: little-endian
//   float32/float64: little-endian IEEE 754; string: UTF-16LE
//   []byte: raw; uuid: SQL Server GUID byte order
type standardSerializer struct {
	typ StandardType
}

var standardSerializers = func() map[StandardType]*standardSerializer {
	m := make(map[StandardType]*standardSerializer, len(standardTypeNames))
	for t := range standardTypeNames {
		if t != 0 {
			m[StandardType(t)] = &standardSerializer{typ: StandardType(t)}
		}
	}
	return m
}()

// standardSizes holds the encoded length of fixed-size standard types.
var standardSizes = map[StandardType]int{
	StandardBool:    1,
	StandardByte:    1,
	StandardInt16:   2,
	StandardInt32:   4,
	StandardInt64:   8,
	StandardFloat32: 4,
	StandardFloat64: 8,
	StandardUUID:    16,
}

// NewStandardSerializer returns the serializer for t.
func NewStandardSerializer(t StandardType) (Serializer, error) {
	s, ok := standardSerializers[t]
	if !ok {
		return nil, newError(ErrUnknownSerializer, "there is no standard serializer for type %d", uint8(t))
	}
	return s, nil
}

// TypeID implements Serializer.
func (s *standardSerializer) TypeID() string {
	return s.typ.String()
}

// Serialize implements Serializer.
func (s *standardSerializer) Serialize(value any) ([]byte, error) {
	value, err := indirect(value)
	if err != nil || value == nil {
		return nil, err
	}

	switch v := value.(type) {
	case bool:
		if s.typ == StandardBool {
			if v {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		}
	case uint8:
		if s.typ == StandardByte {
			return []byte{v}, nil
		}
	case int16:
		if s.typ == StandardInt16 {
			return binary.LittleEndian.AppendUint16(nil, uint16(v)), nil
		}
	case int32:
		if s.typ == StandardInt32 {
			return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil
		}
	case int64:
		if s.typ == StandardInt64 {
			return binary.LittleEndian.AppendUint64(nil, uint64(v)), nil
		}
	case int:
		if s.typ == StandardInt64 {
			return binary.LittleEndian.AppendUint64(nil, uint64(v)), nil
		}
	case float32:
		if s.typ == StandardFloat32 {
			return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)), nil
		}
	case float64:
		if s.typ == StandardFloat64 {
			return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), nil
		}
	case string:
		if s.typ == StandardString {
			out, err := encodeUTF16LE(v)
			if err != nil {
				return nil, wrapError(ErrInvalidValue, err, "encoding string")
			}
			return out, nil
		}
	case []byte:
		if s.typ == StandardBytes {
			return append([]byte{}, v...), nil
		}
	case uuid.UUID:
		if s.typ == StandardUUID {
			return serializeGUID(v)
		}
	}
	return nil, newError(ErrInvalidValue, "the given value of type %T cannot be converted to type %s", value, s.typ)
}

// Deserialize implements Serializer.
func (s *standardSerializer) Deserialize(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if want := standardSizes[s.typ]; want != 0 && len(data) != want {
		return nil, newError(ErrInvalidValue, "decryption of the data type %s failed: %d bytes is not a valid encoding", s.typ, len(data))
	}

	switch s.typ {
	case StandardBool:
		return data[0] != 0, nil
	case StandardByte:
		return data[0], nil
	case StandardInt16:
		return int16(binary.LittleEndian.Uint16(data)), nil
	case StandardInt32:
		return int32(binary.LittleEndian.Uint32(data)), nil
	case StandardInt64:
		return int64(binary.LittleEndian.Uint64(data)), nil
	case StandardFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case StandardFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case StandardString:
		return deserializeNChar(data)
	case StandardBytes:
		return bytes.Clone(data), nil
	case StandardUUID:
		return deserializeGUID(data)
	}
	return nil, newError(ErrUnknownSerializer, "there is no standard serializer for type %d", uint8(s.typ))
}

// serializeGUID writes a GUID in SQL Server byte order: the first three
// groups little-endian, the last two as-is.
func serializeGUID(value any) ([]byte, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case uuid.UUID:
		id = v
	case [16]byte:
		id = v
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, wrapError(ErrInvalidValue, err, "the given value %q cannot be converted to type uniqueidentifier", v)
		}
		id = parsed
	case []byte:
		parsed, err := uuid.FromBytes(v)
		if err != nil {
			return nil, wrapError(ErrInvalidValue, err, "the given value cannot be converted to type uniqueidentifier")
		}
		id = parsed
	default:
		return nil, newError(ErrInvalidValue, "the given value of type %T cannot be converted to type uniqueidentifier", value)
	}
	out := id
	swapGUID(out[:])
	return out[:], nil
}

func deserializeGUID(data []byte) (any, error) {
	if len(data) != 16 {
		return nil, newError(ErrInvalidValue, "decryption of the data type uniqueidentifier failed: %d bytes is not a valid encoding", len(data))
	}
	var id uuid.UUID
	copy(id[:], data)
	swapGUID(id[:])
	return id, nil
}

// swapGUID converts between RFC 4122 and SQL Server byte order in place.
func swapGUID(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
}
