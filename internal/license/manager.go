// Package license issues, validates and stores entitlement records bound to
// the local identity and device. Validation is fully offline: the signature
// on a record is tamper-evidence against casual local edits, not proof of
// purchase, since the signing constant ships inside the binary.
package license

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"usenet-sync/go-core/internal/identity"
	"usenet-sync/go-core/internal/secretstore"
)

const (
	licenseIDPrefix = "LIC-"
	signingDomain   = "UsenetSync-License-v1"
)

var (
	ErrTrialAlreadyUsed   = errors.New("license: trial already used for this identity")
	ErrDeviceVerification = errors.New("license: device verification failed")
	ErrActivationLimit    = errors.New("license: activation limit reached")
	ErrNoLicense          = errors.New("license: no license stored")
	ErrStore              = errors.New("license: secret store failed")
)

// Manager performs all entitlement operations. One mutex serializes every
// read-modify-write against the store so a concurrent deactivate cannot
// race an activation into a lost update.
type Manager struct {
	mu       sync.Mutex
	service  string
	store    secretstore.Store
	ids      *identity.Manager
	features map[Type]Features
	now      func() time.Time
}

func NewManager(service string, store secretstore.Store, ids *identity.Manager) *Manager {
	return &Manager{
		service:  service,
		store:    store,
		ids:      ids,
		features: FeatureTable(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newManagerWithClock(service string, store secretstore.Store, ids *identity.Manager, now func() time.Time) *Manager {
	m := NewManager(service, store, ids)
	m.now = now
	return m
}

// ActivateTrial grants the 30-day trial, once per identity. The trial-used
// marker is a separate record keyed by user ID, so destroying and recreating
// an identity does not reset eligibility for an unchanged user ID.
func (m *Manager) ActivateTrial() (License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.ids.Current()
	if err != nil {
		return License{}, err
	}
	used, err := m.trialUsed(id.UserID)
	if err != nil {
		return License{}, err
	}
	if used {
		return License{}, ErrTrialAlreadyUsed
	}
	if !m.ids.VerifyDevice(id) {
		return License{}, ErrDeviceVerification
	}

	now := m.now()
	expires := now.Add(trialDays * 24 * time.Hour)
	lic := m.buildLicense(id, TypeTrial, now, &expires, m.features[TypeTrial], 1, 1)

	if err := m.storeLicense(lic); err != nil {
		return License{}, err
	}
	if err := m.markTrialUsed(id.UserID); err != nil {
		return License{}, err
	}
	return lic, nil
}

// ActivateFull redeems a license key token for a full license. Decode
// failures, price mismatches and format violations all surface as
// ErrInvalidKey; the device must still match the identity's fingerprint.
func (m *Manager) ActivateFull(token string) (License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.ids.Current()
	if err != nil {
		return License{}, err
	}
	key, err := DecodeKey(token)
	if err != nil {
		return License{}, err
	}
	if key.Type != TypeFull {
		return License{}, fmt.Errorf("%w: not a full-license key", ErrInvalidKey)
	}
	if !m.ids.VerifyDevice(id) {
		return License{}, ErrDeviceVerification
	}

	count, err := m.activationCount(key.Key)
	if err != nil {
		return License{}, err
	}
	if count >= key.MaxActivations {
		return License{}, ErrActivationLimit
	}

	now := m.now()
	var expires *time.Time
	if key.DurationDays != nil {
		t := now.Add(time.Duration(*key.DurationDays) * 24 * time.Hour)
		expires = &t
	}
	lic := m.buildLicense(id, TypeFull, now, expires, m.features[TypeFull], count+1, key.MaxActivations)

	if err := m.storeLicense(lic); err != nil {
		return License{}, err
	}
	if err := m.recordActivation(key.Key, count); err != nil {
		return License{}, err
	}
	return lic, nil
}

// Validate answers "is this install entitled right now". It fails closed:
// every failure mode, from a missing record to a tampered signature,
// collapses to (false, nil) and never to an error, so callers can gate
// behavior without exception paths. The caller also never learns which
// check failed.
func (m *Manager) Validate() (bool, *License) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.ids.Current()
	if err != nil {
		return false, nil
	}
	lic, err := m.loadLicense(id.UserID)
	if err != nil {
		return false, nil
	}
	if lic.UserID != id.UserID {
		return false, nil
	}
	current, err := m.ids.CurrentFingerprint()
	if err != nil || lic.DeviceFingerprint != current {
		return false, nil
	}
	if lic.ExpiresAt != nil && m.now().After(*lic.ExpiresAt) {
		return false, nil
	}
	if signLicense(lic.LicenseID, lic.UserID) != lic.Signature {
		return false, nil
	}
	if !lic.IsActive {
		return false, nil
	}
	out := lic
	return true, &out
}

// Deactivate flips the stored license inactive. Soft revocation: the record
// stays in the store for audit.
func (m *Manager) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.ids.Current()
	if err != nil {
		return err
	}
	lic, err := m.loadLicense(id.UserID)
	if err != nil {
		return err
	}
	lic.IsActive = false
	return m.storeLicense(lic)
}

// RemainingDays reports whole days until expiry, negative once expired, and
// (0, false) for non-expiring licenses.
func (m *Manager) RemainingDays(lic License) (int64, bool) {
	if lic.ExpiresAt == nil {
		return 0, false
	}
	return int64(lic.ExpiresAt.Sub(m.now()).Hours() / 24), true
}

func (m *Manager) buildLicense(id identity.Identity, typ Type, now time.Time, expires *time.Time, features Features, activation, maxActivations uint32) License {
	licenseID := deriveLicenseID(id.UserID, typ, now)
	return License{
		LicenseID:         licenseID,
		UserID:            id.UserID,
		Type:              typ,
		ActivatedAt:       now,
		ExpiresAt:         expires,
		DeviceFingerprint: id.DeviceFingerprint,
		Features:          features,
		Signature:         signLicense(licenseID, id.UserID),
		IsActive:          true,
		ActivationCount:   activation,
		MaxActivations:    maxActivations,
	}
}

func (m *Manager) storeLicense(lic License) error {
	raw, err := json.Marshal(lic)
	if err != nil {
		return err
	}
	if err := m.store.Set(m.service, licenseKeyName(lic.UserID), raw); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (m *Manager) loadLicense(userID string) (License, error) {
	raw, err := m.store.Get(m.service, licenseKeyName(userID))
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return License{}, ErrNoLicense
		}
		return License{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	var lic License
	if err := json.Unmarshal(raw, &lic); err != nil {
		return License{}, fmt.Errorf("%w: corrupt record: %v", ErrStore, err)
	}
	return lic, nil
}

func (m *Manager) trialUsed(userID string) (bool, error) {
	_, err := m.store.Get(m.service, trialMarkerName(userID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, secretstore.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrStore, err)
	}
}

func (m *Manager) markTrialUsed(userID string) error {
	if err := m.store.Set(m.service, trialMarkerName(userID), []byte("true")); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (m *Manager) activationCount(keyMaterial string) (uint32, error) {
	raw, err := m.store.Get(m.service, activationKeyName(keyMaterial))
	switch {
	case errors.Is(err, secretstore.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	count, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, nil
	}
	return uint32(count), nil
}

func (m *Manager) recordActivation(keyMaterial string, previous uint32) error {
	value := strconv.FormatUint(uint64(previous+1), 10)
	if err := m.store.Set(m.service, activationKeyName(keyMaterial), []byte(value)); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func deriveLicenseID(userID string, typ Type, now time.Time) string {
	h := sha3.New256()
	h.Write([]byte(userID))
	h.Write([]byte(typ))
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(now.Unix()))
	h.Write(le[:])
	return licenseIDPrefix + hex.EncodeToString(h.Sum(nil)[:12])
}

// signLicense is a fixed-constant integrity hash, not a cryptographic proof
// of purchase. A determined attacker with binary access can forge it; the
// design accepts that and only defends against casual edits of the stored
// record.
func signLicense(licenseID, userID string) string {
	h := sha3.New256()
	h.Write([]byte(licenseID))
	h.Write([]byte(userID))
	h.Write([]byte(signingDomain))
	return hex.EncodeToString(h.Sum(nil))
}

func licenseKeyName(userID string) string  { return "license_" + userID }
func trialMarkerName(userID string) string { return "trial_used_" + userID }
func activationKeyName(key string) string  { return "activations_" + key }
