package cellcrypt

import (
	"encoding/binary"
	"errors"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric encodings:
//   bit, tinyint, smallint, int, bigint: 8-byte little-endian int64
//   float: 8-byte little-endian IEEE 754; real: 4-byte little-endian IEEE 754
//   decimal: [sign:1 (1 positive, 0 negative)][unscaled magnitude:16 LE]
//   money, smallmoney: value*10^4 as int64, written as [high int32 LE][low uint32 LE]

const (
	decimalMagnitudeSize = 16
	decimalSize          = 1 + decimalMagnitudeSize
	moneyScale           = 4
	moneySize            = 8
)

var (
	minMoney      = decimal.NewFromInt(math.MinInt64)
	maxMoney      = decimal.NewFromInt(math.MaxInt64)
	minSmallMoney = decimal.NewFromInt(math.MinInt32)
	maxSmallMoney = decimal.NewFromInt(math.MaxInt32)
)

func (s *sqlSerializer) serializeBit(value any) ([]byte, error) {
	var bit bool
	switch v := value.(type) {
	case bool:
		bit = v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, s.invalidValue(value)
		}
		bit = b
	default:
		n, err := s.toInt64(value)
		if err != nil {
			return nil, err
		}
		bit = n != 0
	}
	var n int64
	if bit {
		n = 1
	}
	return binary.LittleEndian.AppendUint64(nil, uint64(n)), nil
}

func (s *sqlSerializer) deserializeBit(data []byte) (any, error) {
	if len(data) != 8 {
		return nil, s.malformed(data)
	}
	return binary.LittleEndian.Uint64(data) != 0, nil
}

func (s *sqlSerializer) serializeInteger(value any) ([]byte, error) {
	n, err := s.toInt64(value)
	if err != nil {
		return nil, err
	}
	if !s.integerInRange(n) {
		return nil, s.outOfRange()
	}
	return binary.LittleEndian.AppendUint64(nil, uint64(n)), nil
}

func (s *sqlSerializer) deserializeInteger(data []byte) (any, error) {
	if len(data) != 8 {
		return nil, s.malformed(data)
	}
	n := int64(binary.LittleEndian.Uint64(data))
	if !s.integerInRange(n) {
		return nil, s.outOfRange()
	}
	switch s.typ {
	case TypeTinyInt:
		return uint8(n), nil
	case TypeSmallInt:
		return int16(n), nil
	case TypeInt:
		return int32(n), nil
	default:
		return n, nil
	}
}

func (s *sqlSerializer) integerInRange(n int64) bool {
	switch s.typ {
	case TypeTinyInt:
		return n >= 0 && n <= math.MaxUint8
	case TypeSmallInt:
		return n >= math.MinInt16 && n <= math.MaxInt16
	case TypeInt:
		return n >= math.MinInt32 && n <= math.MaxInt32
	default:
		return true
	}
}

// toInt64 converts any Go integer, or a decimal string, to int64.
func (s *sqlSerializer) toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return s.fromUint64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return s.fromUint64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, s.outOfRange()
			}
			return 0, s.invalidValue(value)
		}
		return n, nil
	}
	return 0, s.invalidValue(value)
}

func (s *sqlSerializer) fromUint64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, s.outOfRange()
	}
	return int64(v), nil
}

func (s *sqlSerializer) serializeFloat(value any) ([]byte, error) {
	f, err := s.toFloat64(value)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)), nil
}

func (s *sqlSerializer) deserializeFloat(data []byte) (any, error) {
	if len(data) != 8 {
		return nil, s.malformed(data)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

func (s *sqlSerializer) serializeReal(value any) ([]byte, error) {
	if f, ok := value.(float32); ok {
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(f)), nil
	}
	f, err := s.toFloat64(value)
	if err != nil {
		return nil, err
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return nil, s.outOfRange()
	}
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))), nil
}

func (s *sqlSerializer) deserializeReal(data []byte) (any, error) {
	if len(data) != 4 {
		return nil, s.malformed(data)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
}

func (s *sqlSerializer) toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, s.invalidValue(value)
		}
		return f, nil
	}
	n, err := s.toInt64(value)
	if err != nil {
		return 0, s.invalidValue(value)
	}
	return float64(n), nil
}

func (s *sqlSerializer) serializeDecimal(value any) ([]byte, error) {
	d, err := s.toDecimal(value)
	if err != nil {
		return nil, err
	}

	// Round half away from zero to the declared scale.
	unscaled := d.Round(int32(s.scale)).Shift(int32(s.scale)).BigInt()
	negative := unscaled.Sign() < 0
	unscaled.Abs(unscaled)

	if len(unscaled.String()) > s.precision {
		return nil, newError(ErrValueOutOfRange,
			"value %s of type decimal is invalid for the expected precision of %d and scale of %d",
			d.String(), s.precision, s.scale)
	}

	magnitude := unscaled.Bytes() // big-endian
	if len(magnitude) > decimalMagnitudeSize {
		return nil, s.outOfRange()
	}
	slices.Reverse(magnitude)

	out := make([]byte, decimalSize)
	out[0] = 1
	if negative {
		out[0] = 0
	}
	copy(out[1:], magnitude)
	return out, nil
}

func (s *sqlSerializer) deserializeDecimal(data []byte) (any, error) {
	if len(data) < 2 || len(data) > decimalSize {
		return nil, s.malformed(data)
	}
	magnitude := slices.Clone(data[1:])
	slices.Reverse(magnitude)

	unscaled := new(big.Int).SetBytes(magnitude)
	if data[0] == 0 {
		unscaled.Neg(unscaled)
	}
	return decimal.NewFromBigInt(unscaled, -int32(s.scale)), nil
}

func (s *sqlSerializer) serializeMoney(value any) ([]byte, error) {
	d, err := s.toDecimal(value)
	if err != nil {
		return nil, err
	}

	scaled := d.Shift(moneyScale).Round(0)
	lo, hi := minMoney, maxMoney
	if s.typ == TypeSmallMoney {
		lo, hi = minSmallMoney, maxSmallMoney
	}
	if scaled.LessThan(lo) || scaled.GreaterThan(hi) {
		return nil, s.outOfRange()
	}

	v := scaled.IntPart()
	out := make([]byte, 0, moneySize)
	out = binary.LittleEndian.AppendUint32(out, uint32(v>>32))
	out = binary.LittleEndian.AppendUint32(out, uint32(v))
	return out, nil
}

func (s *sqlSerializer) deserializeMoney(data []byte) (any, error) {
	if len(data) != moneySize {
		return nil, s.malformed(data)
	}
	high := int32(binary.LittleEndian.Uint32(data[:4]))
	low := binary.LittleEndian.Uint32(data[4:])
	v := int64(high)<<32 | int64(low)
	return decimal.New(v, -moneyScale), nil
}

// toDecimal converts decimals, numeric strings, floats and integers.
func (s *sqlSerializer) toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, s.invalidValue(value)
		}
		return d, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, s.invalidValue(value)
		}
		return decimal.NewFromFloat(v), nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, s.invalidValue(value)
		}
		return decimal.NewFromFloat32(v), nil
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), nil
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0), nil
	}
	n, err := s.toInt64(value)
	if err != nil {
		return decimal.Decimal{}, s.invalidValue(value)
	}
	return decimal.NewFromInt(n), nil
}
