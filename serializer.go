package cellcrypt

import (
	"bytes"
	"database/sql/driver"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
)

// SQLType identifies a SQL Server column type.
type SQLType uint8

const (
	TypeBit SQLType = iota + 1
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeFloat
	TypeReal
	TypeDecimal
	TypeMoney
	TypeSmallMoney
	TypeChar
	TypeVarChar
	TypeNChar
	TypeNVarChar
	TypeBinary
	TypeVarBinary
	TypeUniqueIdentifier
	TypeDate
	TypeTime
	TypeDateTime2
	TypeDateTimeOffset
	TypeDateTime
	TypeSmallDateTime
)

const (
	// DefaultDecimalPrecision is the precision of a decimal declared without one.
	DefaultDecimalPrecision = 18
	// MaxDecimalPrecision is the largest decimal precision.
	MaxDecimalPrecision = 38
	// DefaultTimeScale is the scale of time, datetime2 and datetimeoffset declared without one.
	DefaultTimeScale = 7
)

var sqlTypeNames = [...]string{
	TypeBit:              "bit",
	TypeTinyInt:          "tinyint",
	TypeSmallInt:         "smallint",
	TypeInt:              "int",
	TypeBigInt:           "bigint",
	TypeFloat:            "float",
	TypeReal:             "real",
	TypeDecimal:          "decimal",
	TypeMoney:            "money",
	TypeSmallMoney:       "smallmoney",
	TypeChar:             "char",
	TypeVarChar:          "varchar",
	TypeNChar:            "nchar",
	TypeNVarChar:         "nvarchar",
	TypeBinary:           "binary",
	TypeVarBinary:        "varbinary",
	TypeUniqueIdentifier: "uniqueidentifier",
	TypeDate:             "date",
	TypeTime:             "time",
	TypeDateTime2:        "datetime2",
	TypeDateTimeOffset:   "datetimeoffset",
	TypeDateTime:         "datetime",
	TypeSmallDateTime:    "smalldatetime",
}

var sqlTypeAliases = map[string]SQLType{
	"integer": TypeInt,
	"numeric": TypeDecimal,
	"guid":    TypeUniqueIdentifier,
}

func (t SQLType) String() string {
	if int(t) < len(sqlTypeNames) && sqlTypeNames[t] != "" {
		return sqlTypeNames[t]
	}
	return "unknown"
}

// ParseSQLType resolves a type identifier, case-insensitively.
func ParseSQLType(id string) (SQLType, error) {
	name := lowerTrim(id)
	for t, n := range sqlTypeNames {
		if n != "" && n == name {
			return SQLType(t), nil
		}
	}
	if t, ok := sqlTypeAliases[name]; ok {
		return t, nil
	}
	return 0, newError(ErrUnknownSerializer, "there is no serializer that maps to the type %q", id)
}

// Serializer converts column values to and from the SQL Server wire encoding.
// Serialize(nil) returns nil. Deserialize returns nil for nil or empty
// data, so an empty string or byte slice reads back as NULL.
type Serializer interface {
	// Serialize encodes value. Nil values encode to nil.
	Serialize(value any) ([]byte, error)

	// Deserialize decodes data. Nil or empty data decodes to nil.
	Deserialize(data []byte) (any, error)

	// TypeID returns the canonical type identifier.
	TypeID() string
}

// sqlSerializer implements Serializer for every SQLType. Dispatch is a
// switch on typ; there are no other implementations of the SQL codecs.
type sqlSerializer struct {
	typ       SQLType
	precision int
	scale     int
	codePage  encoding.Encoding // char and varchar only
}

func newSQLSerializer(typ SQLType, precision, scale int, codePage encoding.Encoding) (*sqlSerializer, error) {
	switch typ {
	case TypeDecimal:
		if precision == 0 {
			precision = DefaultDecimalPrecision
		}
		if precision < 1 || precision > MaxDecimalPrecision || scale < 0 || scale > precision {
			return nil, newError(ErrInvalidPrecisionScale,
				"precision %d and scale %d are invalid for decimal", precision, scale)
		}
	case TypeTime, TypeDateTime2, TypeDateTimeOffset:
		if scale < 0 || scale > DefaultTimeScale {
			return nil, newError(ErrInvalidPrecisionScale, "scale %d is invalid for %s", scale, typ)
		}
	case TypeChar, TypeVarChar, TypeNChar, TypeNVarChar, TypeBinary, TypeVarBinary:
		if precision < 0 {
			return nil, newError(ErrInvalidPrecisionScale, "length %d is invalid for %s", precision, typ)
		}
	case TypeBit, TypeTinyInt, TypeSmallInt, TypeInt, TypeBigInt, TypeFloat, TypeReal,
		TypeMoney, TypeSmallMoney, TypeUniqueIdentifier, TypeDate, TypeDateTime, TypeSmallDateTime:
	default:
		return nil, newError(ErrUnknownSerializer, "there is no serializer that maps to the type %d", uint8(typ))
	}
	return &sqlSerializer{typ: typ, precision: precision, scale: scale, codePage: codePage}, nil
}

// TypeID implements Serializer.
func (s *sqlSerializer) TypeID() string {
	return s.typ.String()
}

// Serialize implements Serializer.
func (s *sqlSerializer) Serialize(value any) ([]byte, error) {
	value, err := indirect(value)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	switch s.typ {
	case TypeBit:
		return s.serializeBit(value)
	case TypeTinyInt, TypeSmallInt, TypeInt, TypeBigInt:
		return s.serializeInteger(value)
	case TypeFloat:
		return s.serializeFloat(value)
	case TypeReal:
		return s.serializeReal(value)
	case TypeDecimal:
		return s.serializeDecimal(value)
	case TypeMoney, TypeSmallMoney:
		return s.serializeMoney(value)
	case TypeChar, TypeVarChar:
		return s.serializeChar(value)
	case TypeNChar, TypeNVarChar:
		return s.serializeNChar(value)
	case TypeBinary, TypeVarBinary:
		return s.serializeBinary(value)
	case TypeUniqueIdentifier:
		return serializeGUID(value)
	case TypeDate, TypeTime, TypeDateTime2, TypeDateTimeOffset, TypeDateTime, TypeSmallDateTime:
		return s.serializeTemporal(value)
	}
	return nil, newError(ErrUnknownSerializer, "there is no serializer that maps to the type %s", s.typ)
}

// Deserialize implements Serializer.
func (s *sqlSerializer) Deserialize(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch s.typ {
	case TypeBit:
		return s.deserializeBit(data)
	case TypeTinyInt, TypeSmallInt, TypeInt, TypeBigInt:
		return s.deserializeInteger(data)
	case TypeFloat:
		return s.deserializeFloat(data)
	case TypeReal:
		return s.deserializeReal(data)
	case TypeDecimal:
		return s.deserializeDecimal(data)
	case TypeMoney, TypeSmallMoney:
		return s.deserializeMoney(data)
	case TypeChar, TypeVarChar:
		return s.deserializeChar(data)
	case TypeNChar, TypeNVarChar:
		return deserializeNChar(data)
	case TypeBinary, TypeVarBinary:
		return bytes.Clone(data), nil
	case TypeUniqueIdentifier:
		return deserializeGUID(data)
	case TypeDate, TypeTime, TypeDateTime2, TypeDateTimeOffset, TypeDateTime, TypeSmallDateTime:
		return s.deserializeTemporal(data)
	}
	return nil, newError(ErrUnknownSerializer, "there is no serializer that maps to the type %s", s.typ)
}

// invalidValue reports a value that cannot be converted to the serializer's type.
func (s *sqlSerializer) invalidValue(value any) error {
	return newError(ErrInvalidValue, "the given value of type %T cannot be converted to type %s", value, s.typ)
}

// outOfRange reports a value outside the range of the serializer's type.
func (s *sqlSerializer) outOfRange() error {
	return newError(ErrValueOutOfRange, "one or more values is out of range of values for the %s data type", s.typ)
}

// malformed reports serialized data of the wrong shape.
func (s *sqlSerializer) malformed(data []byte) error {
	return newError(ErrInvalidValue, "decryption of the data type %s failed: %d bytes is not a valid encoding", s.typ, len(data))
}

// serializerCacheKey identifies a cached serializer.
type serializerCacheKey struct {
	typ       SQLType
	precision int
	scale     int
}

// indirect unwraps driver.Valuer values and pointers. A nil pointer, or a
// Valuer reporting NULL, yields nil.
func indirect(value any) (any, error) {
	for value != nil {
		switch value.(type) {
		case decimal.Decimal, uuid.UUID, time.Time:
			return value, nil
		}
		if v, ok := value.(driver.Valuer); ok {
			rv := reflect.ValueOf(value)
			if rv.Kind() == reflect.Pointer && rv.IsNil() {
				return nil, nil
			}
			inner, err := v.Value()
			if err != nil {
				return nil, wrapError(ErrInvalidValue, err, "reading value of type %T", value)
			}
			if reflect.TypeOf(inner) == reflect.TypeOf(value) {
				return inner, nil
			}
			value = inner
			continue
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Pointer {
			return value, nil
		}
		if rv.IsNil() {
			return nil, nil
		}
		value = rv.Elem().Interface()
	}
	return nil, nil
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
