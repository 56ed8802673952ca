package daemon

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"usenet-sync/go-core/internal/config"
	"usenet-sync/go-core/internal/identity"
	"usenet-sync/go-core/internal/license"
	"usenet-sync/go-core/internal/metrics"
	"usenet-sync/go-core/internal/platform/privacylog"
	"usenet-sync/go-core/internal/secretstore"
	"usenet-sync/go-core/internal/sysattr"
)

// Build wires the full daemon service from configuration.
func Build(cfg config.Config) (*Service, *metrics.Metrics, error) {
	logger := NewLogger()
	slog.SetDefault(logger)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	stats := metrics.New()
	ids := identity.NewManager(cfg.Store.Service, store, sysattr.NewSystem())
	lics := license.NewManager(cfg.Store.Service, store, ids)
	return NewService(ids, lics, stats, logger), stats, nil
}

// NewLogger builds the sanitized JSON logger every daemon component shares.
func NewLogger() *slog.Logger {
	return slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stdout, nil)))
}

func buildStore(cfg config.Config) (secretstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendKeychain:
		return secretstore.NewKeychain(), nil
	case config.BackendMemory:
		slog.Default().Warn("memory secret store selected; nothing will survive restart")
		return secretstore.NewMemory(), nil
	case config.BackendFile:
		path := cfg.Store.FilePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "secrets.enc")
		}
		passphrase, err := storePassphrase(cfg)
		if err != nil {
			return nil, err
		}
		return secretstore.NewFileStore(path, passphrase)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Store.Backend)
	}
}

// storePassphrase resolves the file-backend passphrase: configured value
// first, then the data-dir key file, generating one on first run. A
// generated key file protects only against casual inspection; hosts that
// can run a keychain should use the keychain backend.
func storePassphrase(cfg config.Config) (string, error) {
	if secret := strings.TrimSpace(cfg.Store.Passphrase); secret != "" {
		return secret, nil
	}
	keyPath := filepath.Join(cfg.DataDir, "storage.key")
	existing, err := os.ReadFile(keyPath)
	if err == nil {
		if secret := strings.TrimSpace(string(existing)); secret != "" {
			return secret, nil
		}
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := base64.RawStdEncoding.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(keyPath, []byte(secret), 0o600); err != nil {
		return "", err
	}
	return secret, nil
}
