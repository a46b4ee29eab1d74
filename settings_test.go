package cellcrypt

import (
	"database/sql"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testSettings(t testing.TB, s *Session, typeID string, mode EncryptionMode) *EncryptionSettings {
	t.Helper()
	ser, err := s.Serializer(typeID, 0, 0)
	require.NoError(t, err)
	es, err := NewEncryptionSettings("col", testDEK(t, "cek"), mode, ser)
	require.NoError(t, err)
	return es
}

func TestNewEncryptionSettings(t *testing.T) {
	ser := testSerializer(t, "int", 0, 0)
	key := testDEK(t, "cek")

	es, err := NewEncryptionSettings("age", key, Deterministic, ser)
	require.NoError(t, err)
	require.Equal(t, "age", es.Column())
	require.Same(t, key, es.Key())
	require.Equal(t, Deterministic, es.Mode())
	require.Same(t, ser, es.Serializer())

	plain, err := NewEncryptionSettings("age", nil, Plaintext, ser)
	require.NoError(t, err)
	require.Nil(t, plain.Key())
}

func TestNewEncryptionSettings_Validation(t *testing.T) {
	ser := testSerializer(t, "int", 0, 0)
	key := testDEK(t, "cek")
	var nilKey *ProtectedDataEncryptionKey

	_, err := NewEncryptionSettings("c", key, Randomized, nil)
	require.ErrorIs(t, err, ErrUnknownSerializer)

	_, err = NewEncryptionSettings("c", key, EncryptionMode(7), ser)
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = NewEncryptionSettings("c", nil, Deterministic, ser)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = NewEncryptionSettings("c", nilKey, Randomized, ser)
	require.ErrorIs(t, err, ErrNullColumnKey)
	require.ErrorContains(t, err, `"c"`)

	es, err := NewEncryptionSettings("c", nilKey, Plaintext, ser)
	require.NoError(t, err)
	require.Nil(t, es.Key())
}

func TestNewDefaultEncryptionSettings(t *testing.T) {
	ser := testSerializer(t, "int", 0, 0)

	es, err := NewDefaultEncryptionSettings("c", testDEK(t, "cek"), ser)
	require.NoError(t, err)
	require.Equal(t, Randomized, es.Mode())

	es, err = NewDefaultEncryptionSettings("c", nil, ser)
	require.NoError(t, err)
	require.Equal(t, Plaintext, es.Mode())
}

func TestEncryptionSettings_Equal(t *testing.T) {
	intSer := testSerializer(t, "int", 0, 0)
	strSer := testSerializer(t, "nvarchar", 0, 0)

	a, _ := NewEncryptionSettings("a", testDEK(t, "cek"), Deterministic, intSer)
	b, _ := NewEncryptionSettings("b", testDEK(t, "cek"), Deterministic, intSer)
	c, _ := NewEncryptionSettings("a", testDEK(t, "cek"), Randomized, intSer)
	d, _ := NewEncryptionSettings("a", testDEK(t, "cek"), Deterministic, strSer)
	e, _ := NewEncryptionSettings("a", testDEK(t, "other"), Deterministic, intSer)
	p, _ := NewEncryptionSettings("a", nil, Plaintext, intSer)
	q, _ := NewEncryptionSettings("a", nil, Plaintext, intSer)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(d))
	require.False(t, a.Equal(e))
	require.False(t, a.Equal(p))
	require.False(t, p.Equal(a))
	require.True(t, p.Equal(q))
	require.False(t, a.Equal(nil))
}

func TestSession_EncryptDecrypt(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tests := []struct {
		typeID string
		value  any
		want   any
	}{
		{"bit", true, true},
		{"tinyint", 7, uint8(7)},
		{"smallint", -7, int16(-7)},
		{"int", 42, int32(42)},
		{"bigint", int64(1) << 40, int64(1) << 40},
		{"float", 2.5, 2.5},
		{"real", float32(0.5), float32(0.5)},
		{"nvarchar", "héllo", "héllo"},
		{"varchar", "hello", "hello"},
		{"varbinary", []byte{0, 1, 2}, []byte{0, 1, 2}},
		{"uniqueidentifier", id, id},
		{"date", time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC), time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"datetime2", time.Date(2020, time.February, 29, 1, 2, 3, 0, time.UTC), time.Date(2020, time.February, 29, 1, 2, 3, 0, time.UTC)},
	}

	s := NewSession()
	for _, mode := range []EncryptionMode{Deterministic, Randomized} {
		for _, tt := range tests {
			t.Run(mode.String()+"/"+tt.typeID, func(t *testing.T) {
				es := testSettings(t, s, tt.typeID, mode)

				ct, err := s.Encrypt(tt.value, es)
				require.NoError(t, err)
				require.Equal(t, byte(0x01), ct[0])

				got, err := s.Decrypt(ct, es)
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			})
		}
	}
}

func TestSession_EncryptDecimal(t *testing.T) {
	s := NewSession()
	ser, err := s.Serializer("decimal", 10, 3)
	require.NoError(t, err)
	es, err := NewEncryptionSettings("price", testDEK(t, "cek"), Deterministic, ser)
	require.NoError(t, err)

	ct, err := s.Encrypt("19.995", es)
	require.NoError(t, err)
	got, err := s.Decrypt(ct, es)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("19.995").Equal(got.(decimal.Decimal)))
}

func TestSession_DeterministicEquality(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "nvarchar", Deterministic)

	a, err := s.Encrypt("alice@example.com", es)
	require.NoError(t, err)
	b, err := s.Encrypt("alice@example.com", es)
	require.NoError(t, err)
	c, err := s.Encrypt("bob@example.com", es)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestSession_NullPreservation(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "nvarchar", Randomized)

	var nilStr *string
	for _, v := range []any{nil, nilStr, sql.NullString{}} {
		ct, err := s.Encrypt(v, es)
		require.NoError(t, err)
		require.Nil(t, ct)
	}

	v, err := s.Decrypt(nil, es)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSession_EmptyEncryptsButDecryptsToNull(t *testing.T) {
	s := NewSession()

	es := testSettings(t, s, "nvarchar", Randomized)
	ct, err := s.Encrypt("", es)
	require.NoError(t, err)
	require.Len(t, ct, minCellSize)
	got, err := s.Decrypt(ct, es)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = DecryptAs[string](s, ct, es)
	require.ErrorIs(t, err, ErrWasNull)

	ptr, err := DecryptPtr[string](s, ct, es)
	require.NoError(t, err)
	require.Nil(t, ptr)

	es = testSettings(t, s, "varbinary", Deterministic)
	ct, err = s.Encrypt([]byte{}, es)
	require.NoError(t, err)
	require.Len(t, ct, minCellSize)
	got, err = s.Decrypt(ct, es)
	require.NoError(t, err)
	require.Nil(t, got)

	ct, err = s.EncryptWithKey("", testDEK(t, "cek"))
	require.NoError(t, err)
	got, err = s.DecryptWithKey(ct, testDEK(t, "cek"), StandardString)
	require.NoError(t, err)
	require.Nil(t, got)
	_, err = DecryptWithKeyAs[string](s, ct, testDEK(t, "cek"))
	require.ErrorIs(t, err, ErrWasNull)
}

func TestSession_CrossKeyDecryptFails(t *testing.T) {
	s := NewSession()
	ser := testSerializer(t, "int", 0, 0)
	a, err := NewEncryptionSettings("c", testDEK(t, "a"), Randomized, ser)
	require.NoError(t, err)
	b, err := NewEncryptionSettings("c", testDEK(t, "b"), Randomized, ser)
	require.NoError(t, err)

	ct, err := s.Encrypt(1, a)
	require.NoError(t, err)
	_, err = s.Decrypt(ct, b)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSession_ValidationOrder(t *testing.T) {
	s := NewSession()
	ser := testSerializer(t, "int", 0, 0)
	plain, err := NewEncryptionSettings("c", nil, Plaintext, ser)
	require.NoError(t, err)
	plainWithKey, err := NewEncryptionSettings("c", testDEK(t, "cek"), Plaintext, ser)
	require.NoError(t, err)

	// Settings are checked before the value, so NULL values still fail.
	_, err = s.Encrypt(nil, nil)
	require.ErrorIs(t, err, ErrNullSettings)
	_, err = s.Decrypt(nil, nil)
	require.ErrorIs(t, err, ErrNullSettings)

	_, err = s.Encrypt(1, plain)
	require.ErrorIs(t, err, ErrNullColumnKey)
	_, err = s.Decrypt(nil, plain)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.Encrypt(1, plainWithKey)
	require.ErrorIs(t, err, ErrPlaintextNotAllowed)
	require.ErrorContains(t, err, `"c"`)
}

func TestSession_SerializationErrorsPropagate(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "tinyint", Randomized)

	_, err := s.Encrypt(300, es)
	require.ErrorIs(t, err, ErrValueOutOfRange)

	// Ciphertext of a value of another type fails to deserialize.
	strSettings := testSettings(t, s, "nvarchar", Randomized)
	ct, err := s.Encrypt("abc", strSettings)
	require.NoError(t, err)
	_, err = s.Decrypt(ct, es)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestSession_EncryptAll(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "int", Deterministic)
	values := []any{1, nil, 3}

	seq, err := s.EncryptAll(slices.Values(values), es)
	require.NoError(t, err)

	var cts [][]byte
	for ct, err := range seq {
		require.NoError(t, err)
		cts = append(cts, ct)
	}
	require.Len(t, cts, 3)
	require.Nil(t, cts[1])

	want, err := s.Encrypt(3, es)
	require.NoError(t, err)
	require.Equal(t, want, cts[2])

	dseq, err := s.DecryptAll(slices.Values(cts), es)
	require.NoError(t, err)
	var got []any
	for v, err := range dseq {
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, []any{int32(1), nil, int32(3)}, got)
}

func TestSession_EncryptAllStopsAtFirstError(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "tinyint", Randomized)

	seq, err := s.EncryptAll(slices.Values([]any{1, 1000, 2}), es)
	require.NoError(t, err)

	var n int
	var lastErr error
	for _, err := range seq {
		n++
		lastErr = err
	}
	require.Equal(t, 2, n)
	require.ErrorIs(t, lastErr, ErrValueOutOfRange)
}

func TestSession_EncryptAllIsLazy(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "int", Randomized)

	var pulled int
	values := func(yield func(any) bool) {
		for i := range 10 {
			pulled++
			if !yield(i) {
				return
			}
		}
	}

	seq, err := s.EncryptAll(values, es)
	require.NoError(t, err)
	require.Zero(t, pulled)

	for range seq {
		break
	}
	require.Equal(t, 1, pulled)
}

func TestSession_BatchValidatesSettingsUpFront(t *testing.T) {
	s := NewSession()

	_, err := s.EncryptAll(slices.Values([]any{1}), nil)
	require.ErrorIs(t, err, ErrNullSettings)

	_, err = s.DecryptAll(slices.Values([][]byte{nil}), nil)
	require.ErrorIs(t, err, ErrNullSettings)
}

func TestSession_DecryptAllStopsAtFirstError(t *testing.T) {
	s := NewSession()
	es := testSettings(t, s, "int", Randomized)
	good, err := s.Encrypt(5, es)
	require.NoError(t, err)

	seq, err := s.DecryptAll(slices.Values([][]byte{good, {0x01, 0x02}, good}), es)
	require.NoError(t, err)

	var results []any
	var errs []error
	for v, err := range seq {
		results = append(results, v)
		errs = append(errs, err)
	}
	require.Len(t, results, 2)
	require.Equal(t, int32(5), results[0])
	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], ErrCiphertextTooShort)
}

func TestSession_EncryptWithKey(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")
	id := uuid.New()

	tests := []struct {
		value any
		typ   StandardType
	}{
		{true, StandardBool},
		{uint8(9), StandardByte},
		{int16(-9), StandardInt16},
		{int32(9), StandardInt32},
		{int64(9), StandardInt64},
		{float32(9.5), StandardFloat32},
		{9.5, StandardFloat64},
		{"nine", StandardString},
		{[]byte("nine"), StandardBytes},
		{id, StandardUUID},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			ct, err := s.EncryptWithKey(tt.value, key)
			require.NoError(t, err)

			got, err := s.DecryptWithKey(ct, key, tt.typ)
			require.NoError(t, err)
			require.Equal(t, tt.value, got)
		})
	}
}

func TestSession_EncryptWithKeyIsRandomized(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	a, err := s.EncryptWithKey("x", key)
	require.NoError(t, err)
	b, err := s.EncryptWithKey("x", key)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSession_EncryptWithKeyErrors(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	_, err := s.EncryptWithKey(1, nil)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.EncryptWithKey(uint32(1), key)
	require.ErrorIs(t, err, ErrUnknownSerializer)

	ct, err := s.EncryptWithKey(nil, key)
	require.NoError(t, err)
	require.Nil(t, ct)

	v, err := s.DecryptWithKey(nil, key, StandardString)
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = s.DecryptWithKey([]byte{1}, nil, StandardString)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.DecryptWithKey([]byte{1}, key, StandardType(0))
	require.ErrorIs(t, err, ErrUnknownSerializer)
}

func TestSession_EncryptAllWithKey(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	seq, err := s.EncryptAllWithKey(slices.Values([]any{"a", nil, "c"}), key)
	require.NoError(t, err)

	var cts [][]byte
	for ct, err := range seq {
		require.NoError(t, err)
		cts = append(cts, ct)
	}
	require.Len(t, cts, 3)
	require.Nil(t, cts[1])
	require.NotEqual(t, cts[0], cts[2])

	dseq, err := s.DecryptAllWithKey(slices.Values(cts), key, StandardString)
	require.NoError(t, err)
	var got []any
	for v, err := range dseq {
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, []any{"a", nil, "c"}, got)
}

func TestSession_EncryptAllWithKeyMixedTypes(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	seq, err := s.EncryptAllWithKey(slices.Values([]any{int32(7), "seven"}), key)
	require.NoError(t, err)

	var cts [][]byte
	for ct, err := range seq {
		require.NoError(t, err)
		cts = append(cts, ct)
	}
	require.Len(t, cts, 2)

	n, err := s.DecryptWithKey(cts[0], key, StandardInt32)
	require.NoError(t, err)
	require.Equal(t, int32(7), n)

	str, err := s.DecryptWithKey(cts[1], key, StandardString)
	require.NoError(t, err)
	require.Equal(t, "seven", str)
}

func TestSession_EncryptAllWithKeyStopsAtFirstError(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	seq, err := s.EncryptAllWithKey(slices.Values([]any{"a", uint32(1), "c"}), key)
	require.NoError(t, err)

	var n int
	var lastErr error
	for _, err := range seq {
		n++
		lastErr = err
	}
	require.Equal(t, 2, n)
	require.ErrorIs(t, lastErr, ErrUnknownSerializer)

	good, err := s.EncryptWithKey("a", key)
	require.NoError(t, err)

	dseq, err := s.DecryptAllWithKey(slices.Values([][]byte{good, {0x01}, good}), key, StandardString)
	require.NoError(t, err)

	var results []any
	var errs []error
	for v, err := range dseq {
		results = append(results, v)
		errs = append(errs, err)
	}
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0])
	require.ErrorIs(t, errs[1], ErrCiphertextTooShort)
}

func TestSession_BatchWithKeyValidatesUpFront(t *testing.T) {
	s := NewSession()
	key := testDEK(t, "cek")

	var pulled int
	values := func(yield func(any) bool) {
		pulled++
		yield("a")
	}

	_, err := s.EncryptAllWithKey(values, nil)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.EncryptAllWithKey(values, (*DataEncryptionKey)(nil))
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.DecryptAllWithKey(slices.Values([][]byte{nil}), nil, StandardString)
	require.ErrorIs(t, err, ErrNullColumnKey)

	_, err = s.DecryptAllWithKey(slices.Values([][]byte{nil}), key, StandardType(0))
	require.ErrorIs(t, err, ErrUnknownSerializer)

	seq, err := s.EncryptAllWithKey(values, key)
	require.NoError(t, err)
	require.NotNil(t, seq)
	require.Zero(t, pulled)
}
