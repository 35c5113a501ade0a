// Package storage provides the key/value blob store consumed by the
// service layer. Callers treat it as opaque bytes; JSON helpers cover the
// common case of structured values.
package storage

import "encoding/json"

// Store is the storage collaborator contract. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Remove(key string) error
	Clear() error
	Keys() []string
}

// GetJSON unmarshals the value at key into out. Returns false when the key
// is absent or the payload does not parse.
func GetJSON(s Store, key string, out any) bool {
	b, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// SetJSON marshals v and stores it at key.
func SetJSON(s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, b)
}
