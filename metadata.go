package cellcrypt

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
)

// CryptoMetadata describes how a set of columns is encrypted: for each
// encrypted column its key, mode and type, for each column key its wrapped
// value, and for each master key its provider and path. It holds no key
// material in plaintext and can be stored next to the data.
type CryptoMetadata struct {
	Columns    []ColumnEncryptionMetadata `json:"columns"`
	Keys       []ColumnKeyMetadata        `json:"columnKeys"`
	MasterKeys []MasterKeyMetadata        `json:"columnMasterKeys"`
}

// ColumnEncryptionMetadata describes one encrypted column.
type ColumnEncryptionMetadata struct {
	Name      string `json:"name"`
	Ordinal   int    `json:"ordinal"`
	KeyName   string `json:"columnKeyName"`
	Mode      string `json:"encryptionType"`
	Algorithm string `json:"algorithm"`
	Type      string `json:"type"`
	Standard  bool   `json:"standard,omitempty"`
	Precision int    `json:"precision,omitempty"`
	Scale     int    `json:"scale,omitempty"`
}

// ColumnKeyMetadata describes one wrapped column encryption key.
type ColumnKeyMetadata struct {
	Name           string `json:"name"`
	EncryptedValue string `json:"encryptedColumnKey"` // upper-case hex
	MasterKeyName  string `json:"columnMasterKeyName"`
}

// MasterKeyMetadata describes one column master key.
type MasterKeyMetadata struct {
	Name         string `json:"name"`
	Provider     string `json:"keyProvider"`
	Path         string `json:"keyPath"`
	AllowEnclave bool   `json:"allowEnclaveComputations,omitempty"`
	Signature    string `json:"signature,omitempty"` // upper-case hex
}

// IsEmpty reports whether no column is encrypted.
func (m *CryptoMetadata) IsEmpty() bool {
	return len(m.Columns) == 0
}

// CompileMetadata describes the columns named in columns, encrypted with the
// settings at the same index. Plaintext columns are skipped. Encrypted
// columns need a *ProtectedDataEncryptionKey so the wrapped form can be
// recorded. Keys and master keys are listed once per name.
func CompileMetadata(columns []string, settings []*EncryptionSettings) (*CryptoMetadata, error) {
	if len(columns) != len(settings) {
		return nil, newError(ErrInvalidColumnCount,
			"number of columns %d does not match the number of encryption settings %d", len(columns), len(settings))
	}

	md := &CryptoMetadata{}
	seenKeys := make(map[string]bool)
	seenMasterKeys := make(map[string]bool)

	for i, es := range settings {
		if es == nil {
			return nil, newError(ErrNullSettings, "encryption settings for column %q cannot be null", columns[i])
		}
		if es.mode == Plaintext {
			continue
		}
		pdek, ok := es.key.(*ProtectedDataEncryptionKey)
		if !ok || pdek == nil {
			return nil, newError(ErrInvalidDataEncryptionKey,
				"column %q must be encrypted with a protected data encryption key", columns[i])
		}
		kek := pdek.kek

		col := ColumnEncryptionMetadata{
			Name:      columns[i],
			Ordinal:   i,
			KeyName:   pdek.name,
			Mode:      es.mode.String(),
			Algorithm: algorithmName,
			Type:      es.serializer.TypeID(),
		}
		switch ser := es.serializer.(type) {
		case *sqlSerializer:
			col.Precision = ser.precision
			col.Scale = ser.scale
		case *standardSerializer:
			col.Standard = true
		}
		md.Columns = append(md.Columns, col)

		if !seenKeys[pdek.name] {
			seenKeys[pdek.name] = true
			md.Keys = append(md.Keys, ColumnKeyMetadata{
				Name:           pdek.name,
				EncryptedValue: strings.ToUpper(hex.EncodeToString(pdek.encryptedValue)),
				MasterKeyName:  kek.name,
			})
		}
		if !seenMasterKeys[kek.name] {
			seenMasterKeys[kek.name] = true
			md.MasterKeys = append(md.MasterKeys, MasterKeyMetadata{
				Name:         kek.name,
				Provider:     kek.provider.Name(),
				Path:         kek.path,
				AllowEnclave: kek.enclave,
				Signature:    strings.ToUpper(hex.EncodeToString(kek.signature)),
			})
		}
	}
	return md, nil
}

// MarshalMetadata encodes md as JSON behind a one-byte flag, zstd
// compressed when large enough to benefit.
func (s *Session) MarshalMetadata(md *CryptoMetadata) ([]byte, error) {
	if md == nil {
		return nil, newError(ErrInvalidMetadata, "crypto metadata cannot be null")
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, wrapError(ErrInvalidMetadata, err, "encoding crypto metadata")
	}
	data := packMetadata(raw, s.config.compressionThreshold, s.config.compressionDisabled)
	s.config.logger.Debug("marshaled crypto metadata", "columns", len(md.Columns), "bytes", len(data), "compressed", data[0] == flagZstd)
	return data, nil
}

// UnmarshalCryptoMetadata decodes the output of Session.MarshalMetadata.
func UnmarshalCryptoMetadata(data []byte) (*CryptoMetadata, error) {
	raw, err := unpackMetadata(data)
	if err != nil {
		return nil, err
	}
	md := &CryptoMetadata{}
	if err := json.Unmarshal(raw, md); err != nil {
		return nil, wrapError(ErrInvalidMetadata, err, "decoding crypto metadata")
	}
	return md, nil
}

// SettingsFromMetadata rebuilds the encryption settings described by md,
// ordered by column ordinal. Master keys are resolved by provider name
// among providers, their recorded signatures are verified, and column keys
// are unwrapped.
func (s *Session) SettingsFromMetadata(md *CryptoMetadata, providers ...KeyStoreProvider) ([]*EncryptionSettings, error) {
	if md == nil {
		return nil, newError(ErrInvalidMetadata, "crypto metadata cannot be null")
	}

	byName := make(map[string]KeyStoreProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[strings.ToLower(p.Name())] = p
		}
	}

	keks := make(map[string]*KeyEncryptionKey, len(md.MasterKeys))
	for _, mk := range md.MasterKeys {
		provider, ok := byName[strings.ToLower(mk.Provider)]
		if !ok {
			return nil, newError(ErrProviderNotFound,
				"no key store provider named %q was supplied for master key %q", mk.Provider, mk.Name)
		}
		if mk.Signature != "" {
			sig, err := hex.DecodeString(mk.Signature)
			if err != nil {
				return nil, wrapError(ErrInvalidMetadata, err, "decoding signature of master key %q", mk.Name)
			}
			valid, err := provider.Verify(mk.Path, mk.AllowEnclave, sig)
			if err != nil {
				return nil, err
			}
			if !valid {
				return nil, newError(ErrSignatureMismatch,
					"the signature of master key %q does not match the master key in %q", mk.Name, mk.Path)
			}
		}
		kek, err := NewKeyEncryptionKey(mk.Name, mk.Path, provider, mk.AllowEnclave)
		if err != nil {
			return nil, err
		}
		keks[mk.Name] = kek
	}

	keys := make(map[string]*ProtectedDataEncryptionKey, len(md.Keys))
	for _, k := range md.Keys {
		kek, ok := keks[k.MasterKeyName]
		if !ok {
			return nil, newError(ErrInvalidMetadata, "column key %q names unknown master key %q", k.Name, k.MasterKeyName)
		}
		wrapped, err := hex.DecodeString(k.EncryptedValue)
		if err != nil {
			return nil, wrapError(ErrInvalidMetadata, err, "decoding column key %q", k.Name)
		}
		key, err := OpenProtectedDataEncryptionKey(k.Name, kek, wrapped)
		if err != nil {
			return nil, err
		}
		keys[k.Name] = key
	}

	columns := slices.Clone(md.Columns)
	slices.SortStableFunc(columns, func(a, b ColumnEncryptionMetadata) int {
		return a.Ordinal - b.Ordinal
	})

	out := make([]*EncryptionSettings, 0, len(columns))
	for _, col := range columns {
		if col.Algorithm != "" && col.Algorithm != algorithmName {
			return nil, newError(ErrInvalidMetadata, "column %q uses unsupported algorithm %q", col.Name, col.Algorithm)
		}
		key, ok := keys[col.KeyName]
		if !ok {
			return nil, newError(ErrInvalidMetadata, "column %q names unknown column key %q", col.Name, col.KeyName)
		}
		mode, err := ParseEncryptionMode(col.Mode)
		if err != nil {
			return nil, err
		}
		ser, err := s.metadataSerializer(col)
		if err != nil {
			return nil, err
		}
		es, err := NewEncryptionSettings(col.Name, key, mode, ser)
		if err != nil {
			return nil, err
		}
		out = append(out, es)
	}

	s.config.logger.Debug("restored settings from crypto metadata", "columns", len(out), "keys", len(keys))
	return out, nil
}

func (s *Session) metadataSerializer(col ColumnEncryptionMetadata) (Serializer, error) {
	if col.Standard {
		t, err := ParseStandardType(col.Type)
		if err != nil {
			return nil, err
		}
		return NewStandardSerializer(t)
	}
	return s.Serializer(col.Type, col.Precision, col.Scale)
}
