package secretstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all entries in a single argon2id/XChaCha20-Poly1305
// encrypted file. It exists for headless hosts and containers where no OS
// credential manager is available; the passphrase takes the place of the
// keychain unlock and must come from outside the data dir.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" || passphrase == "" {
		return nil, errors.New("secretstore: file store requires a path and a passphrase")
	}
	return &FileStore{path: path, passphrase: passphrase}, nil
}

func (f *FileStore) Get(service, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return nil, err
	}
	encoded, ok := entries[entryName(service, key)]
	if !ok {
		return nil, ErrNotFound
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrCorrupt
	}
	return value, nil
}

func (f *FileStore) Set(service, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	entries[entryName(service, key)] = base64.StdEncoding.EncodeToString(value)
	return f.save(entries)
}

func (f *FileStore) Delete(service, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	delete(entries, entryName(service, key))
	return f.save(entries)
}

func (f *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	plaintext, err := openEnvelope(f.passphrase, raw)
	if err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return entries, nil
}

func (f *FileStore) save(entries map[string]string) error {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	sealed, err := sealEnvelope(f.passphrase, plaintext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func entryName(service, key string) string {
	return service + "/" + key
}
