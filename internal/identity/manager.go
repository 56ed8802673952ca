// Package identity owns the single device-bound cryptographic identity of
// this installation: creation, fingerprinting, signing and verification.
//
// There are no recovery, backup, cloud-sync or password-reset paths in this
// package. That is a policy decision, not an omission: once the secret store
// loses the private key, the identity and everything bound to it is gone.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"usenet-sync/go-core/internal/secretstore"
	"usenet-sync/go-core/internal/sysattr"
)

const (
	identityRecordKey = "Identity"
	identityVersion   = 1
	userIDPrefix      = "USN-"
	proofNonceSize    = 32
)

var (
	ErrStore         = errors.New("identity: secret store failed")
	ErrCorruptRecord = errors.New("identity: stored identity record is corrupt")
	ErrKeyNotFound   = errors.New("identity: private key missing from secret store")
	ErrClock         = errors.New("identity: cannot read system time")
)

// Manager guards the cached identity and all secret-store access behind one
// mutex; every public operation is synchronous and self-contained.
type Manager struct {
	mu      sync.Mutex
	service string
	store   secretstore.Store
	system  sysattr.Provider
	cached  *Identity
}

func NewManager(service string, store secretstore.Store, system sysattr.Provider) *Manager {
	return &Manager{
		service: service,
		store:   store,
		system:  system,
	}
}

// Initialize returns the stored identity, or creates one if none exists.
// The bool result reports whether a new identity was created. A stored
// public record whose private key is gone is surfaced as ErrCorruptRecord
// rather than silently regenerated: a half-written identity must never be
// reused.
func (m *Manager) Initialize() (Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked()
}

func (m *Manager) initializeLocked() (Identity, bool, error) {
	raw, err := m.store.Get(m.service, identityRecordKey)
	switch {
	case err == nil:
		var id Identity
		if jsonErr := json.Unmarshal(raw, &id); jsonErr != nil {
			return Identity{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, jsonErr)
		}
		if id.UserID == "" || len(id.PublicKey) != ed25519.PublicKeySize {
			return Identity{}, false, ErrCorruptRecord
		}
		if _, keyErr := m.store.Get(m.service, privateKeyName(id.UserID)); keyErr != nil {
			if errors.Is(keyErr, secretstore.ErrNotFound) {
				return Identity{}, false, fmt.Errorf("%w: record present but private key missing", ErrCorruptRecord)
			}
			return Identity{}, false, fmt.Errorf("%w: %v", ErrStore, keyErr)
		}
		m.cached = &id
		return cloneIdentity(id), false, nil
	case errors.Is(err, secretstore.ErrNotFound):
		// First run: generate the one identity this install will ever have.
	default:
		return Identity{}, false, fmt.Errorf("%w: %v", ErrStore, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, false, err
	}
	attrs, err := m.system.Attributes()
	if err != nil {
		return Identity{}, false, err
	}
	fingerprint := Fingerprint(attrs)
	now, err := m.system.Now()
	if err != nil {
		return Identity{}, false, fmt.Errorf("%w: %v", ErrClock, err)
	}

	id := Identity{
		UserID:            deriveUserID(pub, fingerprint),
		PublicKey:         append([]byte(nil), pub...),
		CreatedAt:         now.Unix(),
		DeviceFingerprint: fingerprint,
		Version:           identityVersion,
	}

	// Private key first: a record without its key is fatal on next start,
	// a key without its record is invisible and harmless.
	if err := m.store.Set(m.service, privateKeyName(id.UserID), priv.Seed()); err != nil {
		return Identity{}, false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	record, err := json.Marshal(id)
	if err != nil {
		return Identity{}, false, err
	}
	if err := m.store.Set(m.service, identityRecordKey, record); err != nil {
		return Identity{}, false, fmt.Errorf("%w: %v", ErrStore, err)
	}

	m.cached = &id
	return cloneIdentity(id), true, nil
}

// Current returns the cached identity, initializing it on first use.
// Repeated calls return the same user ID for the life of the stored record.
func (m *Manager) Current() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return cloneIdentity(*m.cached), nil
	}
	id, _, err := m.initializeLocked()
	return id, err
}

// CurrentFingerprint recomputes the device fingerprint from live attributes.
func (m *Manager) CurrentFingerprint() (string, error) {
	attrs, err := m.system.Attributes()
	if err != nil {
		return "", err
	}
	return Fingerprint(attrs), nil
}

// VerifyDevice reports whether the machine still matches the fingerprint
// recorded at identity creation. Attribute-read failures read as false.
func (m *Manager) VerifyDevice(id Identity) bool {
	current, err := m.CurrentFingerprint()
	if err != nil {
		return false
	}
	return current == id.DeviceFingerprint
}

// Sign signs data with the identity's private key fetched from the secret
// store. ErrKeyNotFound means the user cleared the credential store; there
// is no way back from that.
func (m *Manager) Sign(id Identity, data []byte) ([]byte, error) {
	seed, err := m.store.Get(m.service, privateKeyName(id.UserID))
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: bad private key length %d", ErrCorruptRecord, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), id.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match identity", ErrCorruptRecord)
	}
	return ed25519.Sign(priv, data), nil
}

// Verify is a pure public-key check; malformed input reads as false, never
// as an error, so it is safe on attacker-controlled data.
func (m *Manager) Verify(id Identity, data, signature []byte) bool {
	if len(id.PublicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(id.PublicKey), data, signature)
}

// CreateProof builds a signed nonce+timestamp assertion of key possession.
func (m *Manager) CreateProof(id Identity) (Proof, error) {
	now, err := m.system.Now()
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrClock, err)
	}
	nonce := make([]byte, proofNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Proof{}, err
	}
	signature, err := m.Sign(id, proofSigningBytes(id.UserID, now.Unix(), nonce))
	if err != nil {
		return Proof{}, err
	}
	return Proof{
		UserID:    id.UserID,
		Timestamp: now.Unix(),
		Nonce:     nonce,
		Signature: signature,
	}, nil
}

// VerifyProof checks a proof against the identity it claims.
func (m *Manager) VerifyProof(id Identity, proof Proof) bool {
	if proof.UserID != id.UserID || len(proof.Nonce) < proofNonceSize {
		return false
	}
	return m.Verify(id, proofSigningBytes(proof.UserID, proof.Timestamp, proof.Nonce), proof.Signature)
}

// ExportPublic encodes the public half of an identity as an opaque string.
// It never contains private key material.
func (m *Manager) ExportPublic(id Identity) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"user_id":    id.UserID,
		"public_key": hex.EncodeToString(id.PublicKey),
		"created_at": id.CreatedAt,
		"version":    id.Version,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Destroy permanently deletes the identity: private key, public record and
// in-memory cache. Irreversible. Callers must gate this behind explicit
// user confirmation.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID := ""
	if m.cached != nil {
		userID = m.cached.UserID
	} else {
		raw, err := m.store.Get(m.service, identityRecordKey)
		switch {
		case errors.Is(err, secretstore.ErrNotFound):
			return nil // nothing to destroy
		case err != nil:
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		var id Identity
		if jsonErr := json.Unmarshal(raw, &id); jsonErr == nil {
			userID = id.UserID
		}
	}

	if userID != "" {
		if err := m.store.Delete(m.service, privateKeyName(userID)); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	if err := m.store.Delete(m.service, identityRecordKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.cached = nil
	return nil
}

func deriveUserID(pub ed25519.PublicKey, fingerprint string) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte(fingerprint))
	return userIDPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

func privateKeyName(userID string) string {
	return userID + "_private"
}

func proofSigningBytes(userID string, timestamp int64, nonce []byte) []byte {
	b := make([]byte, 0, len(userID)+8+len(nonce))
	b = append(b, []byte(userID)...)
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(timestamp))
	b = append(b, le[:]...)
	b = append(b, nonce...)
	return b
}
