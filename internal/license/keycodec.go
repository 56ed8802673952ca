package license

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// Token format: base58(JSON(Key)). The encoding is opaque to callers and
// not a contract for external parties; only this program mints and decodes
// tokens.

var ErrInvalidKey = errors.New("license: invalid license key")

const minKeyTokenLen = 32 // hex chars of embedded entropy

// DecodeKey parses and validates a transport token. Any malformed or
// policy-violating token maps to ErrInvalidKey; the caller never learns
// which field failed, only that the key is unusable.
func DecodeKey(token string) (Key, error) {
	raw, err := base58.Decode(token)
	if err != nil {
		return Key{}, fmt.Errorf("%w: not a valid token", ErrInvalidKey)
	}
	var key Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return Key{}, fmt.Errorf("%w: malformed payload", ErrInvalidKey)
	}
	if len(key.Key) < minKeyTokenLen {
		return Key{}, fmt.Errorf("%w: short key material", ErrInvalidKey)
	}
	switch key.Type {
	case TypeTrial, TypeFull:
	default:
		return Key{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidKey, key.Type)
	}
	if key.Type == TypeFull && key.PriceUSD != fullPriceUSD {
		return Key{}, fmt.Errorf("%w: price mismatch", ErrInvalidKey)
	}
	if key.DurationDays != nil && *key.DurationDays <= 0 {
		return Key{}, fmt.Errorf("%w: non-positive duration", ErrInvalidKey)
	}
	if key.MaxActivations == 0 {
		return Key{}, fmt.Errorf("%w: zero activation limit", ErrInvalidKey)
	}
	return key, nil
}

// GenerateKey mints a full-license token. Admin-side tooling only; the
// desktop application never calls this on behalf of a user.
func GenerateKey(typ Type, durationDays *int64, maxActivations uint32) (string, error) {
	switch typ {
	case TypeTrial, TypeFull:
	default:
		return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidKey, typ)
	}
	if maxActivations == 0 {
		maxActivations = 1
	}
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", err
	}
	key := Key{
		Key:            hex.EncodeToString(entropy),
		Type:           typ,
		DurationDays:   durationDays,
		MaxActivations: maxActivations,
	}
	if typ == TypeFull {
		key.PriceUSD = fullPriceUSD
		if key.DurationDays == nil {
			days := int64(fullDays)
			key.DurationDays = &days
		}
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}
