// Package secretstore abstracts the OS credential facility used as the sole
// durable store for private keys and license records. There is deliberately
// no plaintext filesystem fallback: losing the backing store means losing the
// identity and everything bound to it.
package secretstore

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when no value exists under (service, key).
	ErrNotFound = errors.New("secretstore: entry not found")
	// ErrUnavailable is returned when the backing credential store cannot
	// be reached at all (locked keychain, missing dbus session, ...).
	ErrUnavailable = errors.New("secretstore: store unavailable")
	// ErrCorrupt is returned when an entry exists but cannot be decoded.
	ErrCorrupt = errors.New("secretstore: entry corrupt")
)

// Store is the credential-store contract consumed by the identity and
// license managers. Implementations must return ErrNotFound for absent
// entries so callers can distinguish "no record" from a broken store.
type Store interface {
	Get(service, key string) ([]byte, error)
	Set(service, key string, value []byte) error
	Delete(service, key string) error
}

// Memory is an in-process Store used by tests and by ephemeral setups.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(service, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[service+"\x00"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(service, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service+"\x00"+key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, service+"\x00"+key)
	return nil
}

// Len reports the number of stored entries; test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
