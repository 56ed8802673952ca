package identity

// Identity is the one unrecoverable cryptographic identity of this
// installation. Private key material is never part of this record; it lives
// only in the secret store under the user ID.
type Identity struct {
	UserID            string `json:"user_id"`
	PublicKey         []byte `json:"public_key"`
	CreatedAt         int64  `json:"created_at"`
	DeviceFingerprint string `json:"device_fingerprint"`
	Version           uint32 `json:"version"`
}

// Proof is a one-time assertion of private-key possession. It is created on
// demand and never persisted.
type Proof struct {
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
	Nonce     []byte `json:"nonce"`
	Signature []byte `json:"signature"`
}

func cloneIdentity(id Identity) Identity {
	id.PublicKey = append([]byte(nil), id.PublicKey...)
	return id
}
