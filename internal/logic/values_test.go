package logic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ai8future/cellcrypt"
)

func TestParseValue(t *testing.T) {
	v, err := ParseValue(cellcrypt.TypeNVarChar, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	v, err = ParseValue(cellcrypt.TypeVarBinary, "0xDEAD")
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, v)

	for _, null := range []string{"NULL", "null", " Null "} {
		v, err = ParseValue(cellcrypt.TypeInt, null)
		require.NoError(t, err)
		require.Nil(t, v)
	}

	_, err = ParseValue(cellcrypt.TypeBinary, "0xZZ")
	require.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 15, 12, 30, 45, 123400000, time.FixedZone("", 2*3600))

	tests := []struct {
		name string
		typ  cellcrypt.SQLType
		v    any
		want string
	}{
		{"null", cellcrypt.TypeInt, nil, "NULL"},
		{"int", cellcrypt.TypeInt, int32(42), "42"},
		{"bit", cellcrypt.TypeBit, true, "true"},
		{"binary", cellcrypt.TypeVarBinary, []byte{0x0a, 0xff}, "0x0AFF"},
		{"decimal", cellcrypt.TypeDecimal, decimal.RequireFromString("123.45"), "123.45"},
		{"guid", cellcrypt.TypeUniqueIdentifier, uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"),
			"00112233-4455-6677-8899-aabbccddeeff"},
		{"date", cellcrypt.TypeDate, ts, "2024-01-15"},
		{"time", cellcrypt.TypeTime, ts, "12:30:45.1234"},
		{"datetime2", cellcrypt.TypeDateTime2, ts, "2024-01-15 12:30:45.1234"},
		{"datetimeoffset", cellcrypt.TypeDateTimeOffset, ts, "2024-01-15 12:30:45.1234 +02:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatValue(tt.typ, tt.v))
		})
	}
}

func TestCiphertextText(t *testing.T) {
	require.Equal(t, "NULL", FormatCiphertext(nil))
	require.Equal(t, "0x01FF", FormatCiphertext([]byte{0x01, 0xff}))

	ct, err := ParseCiphertext("NULL")
	require.NoError(t, err)
	require.Nil(t, ct)

	ct, err = ParseCiphertext("0x01ff")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0xff}, ct)

	_, err = ParseCiphertext("not hex")
	require.Error(t, err)
}

func TestProcess_PreservesOrder(t *testing.T) {
	inputs := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	got, err := process(inputs, 3, func(s string) (string, error) {
		return s + s, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh"}, got)
}

func TestProcess_Error(t *testing.T) {
	_, err := process([]string{"ok", "bad", "ok"}, 1, func(s string) (string, error) {
		if s == "bad" {
			return "", cellcrypt.ErrInvalidValue
		}
		return s, nil
	})
	require.ErrorIs(t, err, cellcrypt.ErrInvalidValue)
	require.Contains(t, err.Error(), "value 2")
}

func TestProcess_Empty(t *testing.T) {
	got, err := process(nil, 4, func(s string) (string, error) { return s, nil })
	require.NoError(t, err)
	require.Empty(t, got)
}
