package license

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58/base58"
)

func encodeKeyPayload(raw []byte) string {
	return base58.Encode(raw)
}

func TestKeyRoundTrip(t *testing.T) {
	token, err := GenerateKey(TypeFull, nil, 3)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	key, err := DecodeKey(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if key.Type != TypeFull {
		t.Fatalf("expected full key, got %q", key.Type)
	}
	if key.PriceUSD != 29.99 {
		t.Fatalf("full key must carry the $29.99 price, got %v", key.PriceUSD)
	}
	if key.DurationDays == nil || *key.DurationDays != 365 {
		t.Fatal("full key must default to a 365-day duration")
	}
	if key.MaxActivations != 3 {
		t.Fatalf("expected 3 activations, got %d", key.MaxActivations)
	}
	if len(key.Key) < 32 {
		t.Fatalf("key material too short: %d", len(key.Key))
	}
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not base58":   "0OIl+/=",
		"empty":        "",
		"not json":     encodeKeyPayload([]byte("plain text")),
		"json non-key": encodeKeyPayload([]byte(`{"foo":1}`)),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeKey(token); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestDecodeKeyPolicyChecks(t *testing.T) {
	days := int64(365)
	negDays := int64(-1)
	base := Key{
		Key:            "0123456789abcdef0123456789abcdef",
		Type:           TypeFull,
		DurationDays:   &days,
		PriceUSD:       29.99,
		MaxActivations: 1,
	}
	cases := map[string]func(Key) Key{
		"short key material": func(k Key) Key { k.Key = "abc"; return k },
		"unknown tier":       func(k Key) Key { k.Type = "platinum"; return k },
		"wrong price":        func(k Key) Key { k.PriceUSD = 0; return k },
		"negative duration":  func(k Key) Key { k.DurationDays = &negDays; return k },
		"zero activations":   func(k Key) Key { k.MaxActivations = 0; return k },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := json.Marshal(mutate(base))
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if _, err := DecodeKey(encodeKeyPayload(raw)); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("expected ErrInvalidKey, got %v", err)
			}
		})
	}

	raw, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if _, err := DecodeKey(encodeKeyPayload(raw)); err != nil {
		t.Fatalf("valid key must decode, got %v", err)
	}
}

func TestFeatureTableTiers(t *testing.T) {
	table := FeatureTable()
	trial, ok := table[TypeTrial]
	if !ok {
		t.Fatal("trial tier missing")
	}
	if trial.MaxConnections != 2 || trial.PrivateShares {
		t.Fatal("trial tier numbers drifted")
	}
	full, ok := table[TypeFull]
	if !ok {
		t.Fatal("full tier missing")
	}
	if full.MaxStorageGB == nil || *full.MaxStorageGB != 1000 {
		t.Fatal("full tier storage cap drifted")
	}
	if !full.EncryptionEnabled || !trial.EncryptionEnabled {
		t.Fatal("encryption is granted on every tier")
	}
}
