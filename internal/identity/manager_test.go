package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"usenet-sync/go-core/internal/secretstore"
	"usenet-sync/go-core/internal/sysattr"
)

func testProvider() *sysattr.Static {
	return &sysattr.Static{
		Attrs: sysattr.Attributes{
			CPUBrand:        "TestCPU 3000",
			CPUFrequencyMHz: 3000,
			TotalMemory:     16 << 30,
			Hostname:        "workstation-1",
			Interfaces: []sysattr.NetInterface{
				{Name: "eth0", MAC: "aa:bb:cc:dd:ee:01"},
				{Name: "wlan0", MAC: "aa:bb:cc:dd:ee:02"},
			},
			OSName:        "linux",
			KernelVersion: "6.8.0",
		},
		Clock: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestInitializeCreatesOnceAndIsStable(t *testing.T) {
	store := secretstore.NewMemory()
	m := NewManager("UsenetSync", store, testProvider())

	id, created, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !created {
		t.Fatal("first initialize must create an identity")
	}
	if !strings.HasPrefix(id.UserID, "USN-") {
		t.Fatalf("user id %q must carry the USN- prefix", id.UserID)
	}
	if len(id.PublicKey) != 32 {
		t.Fatalf("public key must be 32 bytes, got %d", len(id.PublicKey))
	}
	if id.Version != 1 || id.CreatedAt == 0 || id.DeviceFingerprint == "" {
		t.Fatal("identity record is incomplete")
	}

	again, created, err := m.Initialize()
	if err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if created {
		t.Fatal("second initialize must not create a new identity")
	}
	if again.UserID != id.UserID {
		t.Fatal("user id must be stable across calls")
	}

	// Fresh manager over the same store simulates a process restart.
	restarted := NewManager("UsenetSync", store, testProvider())
	afterRestart, err := restarted.Current()
	if err != nil {
		t.Fatalf("current after restart failed: %v", err)
	}
	if afterRestart.UserID != id.UserID {
		t.Fatal("user id must survive process restart")
	}
}

func TestFingerprintDeterministicAndDeviceSensitive(t *testing.T) {
	p := testProvider()
	attrs, _ := p.Attributes()
	if Fingerprint(attrs) != Fingerprint(attrs) {
		t.Fatal("fingerprint must be deterministic")
	}

	renamed := attrs
	renamed.Hostname = "workstation-2"
	if Fingerprint(attrs) == Fingerprint(renamed) {
		t.Fatal("hostname change must change the fingerprint")
	}

	// Interface enumeration order must not matter.
	reversed := attrs
	reversed.Interfaces = []sysattr.NetInterface{attrs.Interfaces[1], attrs.Interfaces[0]}
	if Fingerprint(attrs) != Fingerprint(reversed) {
		t.Fatal("fingerprint must not depend on interface order")
	}
}

func TestVerifyDeviceDetectsRebinding(t *testing.T) {
	p := testProvider()
	m := NewManager("UsenetSync", secretstore.NewMemory(), p)
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !m.VerifyDevice(id) {
		t.Fatal("unchanged machine must verify")
	}
	p.Attrs.Hostname = "cloned-vm"
	if m.VerifyDevice(id) {
		t.Fatal("changed hostname must fail device verification")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	m := NewManager("UsenetSync", secretstore.NewMemory(), testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	data := []byte("share manifest payload")
	sig, err := m.Sign(id, data)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !m.Verify(id, data, sig) {
		t.Fatal("valid signature must verify")
	}

	sig[0] ^= 0x01
	if m.Verify(id, data, sig) {
		t.Fatal("flipped signature bit must not verify")
	}
	if m.Verify(id, data, []byte("short")) {
		t.Fatal("malformed signature must read as false, not panic")
	}
}

func TestSignFailsWhenKeyCleared(t *testing.T) {
	store := secretstore.NewMemory()
	m := NewManager("UsenetSync", store, testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := store.Delete("UsenetSync", id.UserID+"_private"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := m.Sign(id, []byte("data")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestHalfWrittenIdentityIsFatal(t *testing.T) {
	store := secretstore.NewMemory()
	m := NewManager("UsenetSync", store, testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	// Drop only the private key; the public record survives.
	if err := store.Delete("UsenetSync", id.UserID+"_private"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	restarted := NewManager("UsenetSync", store, testProvider())
	if _, _, err := restarted.Initialize(); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord for half-written identity, got %v", err)
	}
}

func TestProofCreateAndVerify(t *testing.T) {
	m := NewManager("UsenetSync", secretstore.NewMemory(), testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	proof, err := m.CreateProof(id)
	if err != nil {
		t.Fatalf("create proof failed: %v", err)
	}
	if len(proof.Nonce) < 32 {
		t.Fatalf("nonce must be at least 32 bytes, got %d", len(proof.Nonce))
	}
	if !m.VerifyProof(id, proof) {
		t.Fatal("fresh proof must verify")
	}
	proof.Timestamp++
	if m.VerifyProof(id, proof) {
		t.Fatal("altered proof must not verify")
	}
}

func TestExportPublicOmitsPrivateMaterial(t *testing.T) {
	store := secretstore.NewMemory()
	m := NewManager("UsenetSync", store, testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	exported, err := m.ExportPublic(id)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(exported)
	if err != nil {
		t.Fatalf("export is not base64: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	for _, want := range []string{"user_id", "public_key", "created_at", "version"} {
		if _, ok := fields[want]; !ok {
			t.Fatalf("export missing field %q", want)
		}
	}
	seed, err := store.Get("UsenetSync", id.UserID+"_private")
	if err != nil {
		t.Fatalf("reading private key for the check failed: %v", err)
	}
	if strings.Contains(string(raw), base64.StdEncoding.EncodeToString(seed)) {
		t.Fatal("export must never contain private key material")
	}
}

func TestDestroyIsIrreversible(t *testing.T) {
	store := secretstore.NewMemory()
	m := NewManager("UsenetSync", store, testProvider())
	id, _, err := m.Initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("destroy must remove all identity entries, %d left", store.Len())
	}

	// The next initialize mints a different identity.
	fresh, created, err := m.Initialize()
	if err != nil {
		t.Fatalf("re-initialize failed: %v", err)
	}
	if !created || fresh.UserID == id.UserID {
		t.Fatal("destroyed identity must not come back")
	}

	if err := m.Destroy(); err != nil {
		t.Fatalf("destroy of fresh identity failed: %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("destroy with nothing stored must be a no-op, got %v", err)
	}
}

func TestStoreUnavailableSurfacedOnInitialize(t *testing.T) {
	m := NewManager("UsenetSync", failingStore{}, testProvider())
	if _, _, err := m.Initialize(); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Get(service, key string) ([]byte, error) {
	return nil, secretstore.ErrUnavailable
}

func (failingStore) Set(service, key string, value []byte) error {
	return secretstore.ErrUnavailable
}

func (failingStore) Delete(service, key string) error {
	return secretstore.ErrUnavailable
}
