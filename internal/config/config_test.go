package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("explicit missing config path must fail")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}
	if cfg.RPCAddr != DefaultRPCAddr {
		t.Fatalf("unexpected default rpc addr %q", cfg.RPCAddr)
	}
	if cfg.Store.Backend != BackendKeychain || cfg.Store.Service != DefaultService {
		t.Fatal("default store must be the OS keychain under the UsenetSync service")
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
rpcAddr: "127.0.0.1:9999"
store:
  backend: file
  filePath: /tmp/secrets.enc
  passphrase: file-pass
rateLimit:
  rps: 5
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("USN_RPC_ADDR", "127.0.0.1:7777")
	t.Setenv("USN_STORE_PASSPHRASE", "env-pass")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPCAddr != "127.0.0.1:7777" {
		t.Fatalf("env must override file, got %q", cfg.RPCAddr)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.FilePath != "/tmp/secrets.enc" {
		t.Fatal("file settings must merge over defaults")
	}
	if cfg.Store.Passphrase != "env-pass" {
		t.Fatalf("env passphrase must win, got %q", cfg.Store.Passphrase)
	}
	if cfg.RateLimit.RPS != 5 || cfg.RateLimit.Burst != 20 {
		t.Fatal("unset rate-limit fields must keep defaults")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  backend: etcd\n"), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidBackend) {
		t.Fatalf("expected ErrInvalidBackend, got %v", err)
	}
}
