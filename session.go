package cellcrypt

import (
	"log/slog"
	"sort"
	"sync"
)

// Session is a caller-owned crypto context. It caches engines and
// serializers so repeated operations on the same column reuse them.
// A Session is safe for concurrent use; create one per process or per
// tenant and share it.
type Session struct {
	config *config

	engines     sync.Map // engineCacheKey -> *AeadEngine
	serializers sync.Map // serializerCacheKey -> *sqlSerializer
}

// engineCacheKey identifies a cached engine by key identity and mode.
type engineCacheKey struct {
	name string
	root [KeySize]byte
	mode EncryptionMode
}

// NewSession creates a Session with the given options.
//
// Example:
//
//	session := cellcrypt.NewSession(
//	    cellcrypt.WithLogger(slog.Default()),
//	)
func NewSession(opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Session{config: cfg}
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.config.logger
}

// Engine returns the engine for key and mode, creating it on first use.
// Keys with equal name and root key material share an engine, which stays
// usable after any of those keys is destroyed until Forget drops it.
func (s *Session) Engine(key ColumnKey, mode EncryptionMode) (*AeadEngine, error) {
	if isNilKey(key) {
		return nil, ErrNullColumnKey
	}
	dk := key.dataKey()
	if dk == nil || dk.keys == nil {
		return nil, ErrNullColumnKey
	}

	cacheKey := engineCacheKey{name: dk.name, mode: mode}
	copy(cacheKey.root[:], dk.root)
	if e, ok := s.engines.Load(cacheKey); ok {
		return e.(*AeadEngine), nil
	}

	engine, err := NewAeadEngine(key, mode)
	if err != nil {
		return nil, err
	}
	// Cached engines serve every key with the same identity, so they own
	// their sub-keys rather than sharing the ones Destroy zeros.
	owned := *engine.keys
	engine.keys = &owned

	actual, loaded := s.engines.LoadOrStore(cacheKey, engine)
	if !loaded {
		s.config.logger.Debug("created engine", "key", dk.name, "mode", mode.String())
	}
	return actual.(*AeadEngine), nil
}

// Forget drops the cached engines for key in every mode and zeros their
// sub-keys. Engines previously returned for key must not be used
// afterwards. Call it before key.Destroy, since a destroyed key no longer
// identifies its engines.
func (s *Session) Forget(key ColumnKey) {
	if isNilKey(key) {
		return
	}
	dk := key.dataKey()
	if dk == nil {
		return
	}

	cacheKey := engineCacheKey{name: dk.name}
	copy(cacheKey.root[:], dk.root)
	for _, mode := range []EncryptionMode{Plaintext, Deterministic, Randomized} {
		cacheKey.mode = mode
		if e, ok := s.engines.LoadAndDelete(cacheKey); ok {
			e.(*AeadEngine).keys.zero()
			s.config.logger.Debug("dropped engine", "key", dk.name, "mode", mode.String())
		}
	}
	clear(cacheKey.root[:])
}

// Serializer returns the serializer for a SQL type identifier such as
// "nvarchar" or "decimal", creating it on first use. Identifiers are
// case-insensitive. Precision is the length of char and binary types and
// the digit count of decimal; scale is the fractional digits of decimal and
// temporal types.
func (s *Session) Serializer(typeID string, precision, scale int) (Serializer, error) {
	typ, err := ParseSQLType(typeID)
	if err != nil {
		return nil, err
	}
	return s.SerializerFor(typ, precision, scale)
}

// SerializerFor is Serializer for an already parsed SQLType.
func (s *Session) SerializerFor(typ SQLType, precision, scale int) (Serializer, error) {
	cacheKey := serializerCacheKey{typ: typ, precision: precision, scale: scale}
	if ser, ok := s.serializers.Load(cacheKey); ok {
		return ser.(*sqlSerializer), nil
	}

	ser, err := newSQLSerializer(typ, precision, scale, s.config.codePage)
	if err != nil {
		return nil, err
	}
	actual, loaded := s.serializers.LoadOrStore(cacheKey, ser)
	if !loaded {
		s.config.logger.Debug("created serializer", "type", typ.String(), "precision", precision, "scale", scale)
	}
	return actual.(*sqlSerializer), nil
}

// sortedMapKeys returns map keys sorted alphabetically.
func sortedMapKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
