package secretstore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keychain stores entries in the OS credential manager (macOS Keychain,
// Windows Credential Manager, freedesktop Secret Service). Values are
// base64-wrapped because the underlying APIs are string-typed.
type Keychain struct{}

func NewKeychain() *Keychain {
	return &Keychain{}
}

func (k *Keychain) Get(service, key string) ([]byte, error) {
	raw, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	value, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrCorrupt, service, key)
	}
	return value, nil
}

func (k *Keychain) Set(service, key string, value []byte) error {
	if err := keyring.Set(service, key, base64.StdEncoding.EncodeToString(value)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (k *Keychain) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
