// Package config loads daemon configuration: YAML file, then environment
// overrides, then flag overrides applied by cmd/daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCAddr = "127.0.0.1:8765"
	DefaultService = "UsenetSync"

	envRPCAddr         = "USN_RPC_ADDR"
	envRPCToken        = "USN_RPC_TOKEN"
	envDataDir         = "USN_DATA_DIR"
	envStoreBackend    = "USN_STORE_BACKEND"
	envStoreService    = "USN_STORE_SERVICE"
	envStorePassphrase = "USN_STORE_PASSPHRASE"
	envRateLimitRPS    = "USN_RPC_RATE_LIMIT_RPS"
	envRateLimitBurst  = "USN_RPC_RATE_LIMIT_BURST"
)

// Store backends.
const (
	BackendKeychain = "keychain"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

var ErrInvalidBackend = errors.New("config: unknown store backend")

type Config struct {
	RPCAddr   string    `yaml:"rpcAddr"`
	RPCToken  string    `yaml:"rpcToken"`
	DataDir   string    `yaml:"dataDir"`
	Store     Store     `yaml:"store"`
	RateLimit RateLimit `yaml:"rateLimit"`
}

type Store struct {
	// Backend selects where secrets live: "keychain" (OS credential
	// manager, default), "file" (encrypted file for headless hosts), or
	// "memory" (ephemeral, tests only).
	Backend string `yaml:"backend"`
	Service string `yaml:"service"`
	// FilePath and Passphrase apply to the file backend only.
	FilePath   string `yaml:"filePath"`
	Passphrase string `yaml:"passphrase"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		RPCAddr: DefaultRPCAddr,
		DataDir: defaultDataDir(),
		Store: Store{
			Backend: BackendKeychain,
			Service: DefaultService,
		},
		RateLimit: RateLimit{RPS: 10, Burst: 20},
	}
}

// Load reads configPath (or the default candidates when empty), merges it
// over defaults and applies environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{
			"configs/config.yaml",
			filepath.Join(cfg.DataDir, "config.yaml"),
		}
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.RPCAddr != "" {
		dst.RPCAddr = src.RPCAddr
	}
	if src.RPCToken != "" {
		dst.RPCToken = src.RPCToken
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Store.Backend != "" {
		dst.Store.Backend = src.Store.Backend
	}
	if src.Store.Service != "" {
		dst.Store.Service = src.Store.Service
	}
	if src.Store.FilePath != "" {
		dst.Store.FilePath = src.Store.FilePath
	}
	if src.Store.Passphrase != "" {
		dst.Store.Passphrase = src.Store.Passphrase
	}
	if src.RateLimit.RPS > 0 {
		dst.RateLimit.RPS = src.RateLimit.RPS
	}
	if src.RateLimit.Burst > 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envRPCAddr)); v != "" {
		cfg.RPCAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(envRPCToken)); v != "" {
		cfg.RPCToken = v
	}
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envStoreBackend)); v != "" {
		cfg.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv(envStoreService)); v != "" {
		cfg.Store.Service = v
	}
	if v := strings.TrimSpace(os.Getenv(envStorePassphrase)); v != "" {
		cfg.Store.Passphrase = v
	}
	if v := strings.TrimSpace(os.Getenv(envRateLimitRPS)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			cfg.RateLimit.RPS = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv(envRateLimitBurst)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RateLimit.Burst = parsed
		}
	}
}

func validate(cfg Config) error {
	switch cfg.Store.Backend {
	case BackendKeychain, BackendFile, BackendMemory:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Store.Backend)
	}
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".usenet-sync"
	}
	return filepath.Join(base, "usenet-sync")
}
