package license

import "time"

// Type is the entitlement tier. The product ships exactly two: a 30-day
// trial and the $29.99/year full license.
type Type string

const (
	TypeTrial Type = "trial"
	TypeFull  Type = "full"
)

// Features is the capability set granted by a license. Nil limits mean
// unlimited. The numbers per tier are policy data, not algorithm; see
// FeatureTable.
type Features struct {
	MaxStorageGB      *uint64 `json:"max_storage_gb"`
	MaxFolders        *uint32 `json:"max_folders"`
	MaxFiles          *uint32 `json:"max_files"`
	MaxConnections    uint32  `json:"max_connections"`
	ParallelUploads   uint32  `json:"parallel_uploads"`
	ParallelDownloads uint32  `json:"parallel_downloads"`
	EncryptionEnabled bool    `json:"encryption_enabled"`
	PrivateShares     bool    `json:"private_shares"`
	PasswordShares    bool    `json:"password_shares"`
	AutoResume        bool    `json:"auto_resume"`
	ScheduledSync     bool    `json:"scheduled_sync"`
	APIAccess         bool    `json:"api_access"`
	PrioritySupport   bool    `json:"priority_support"`
}

// FeatureTable maps each tier to its capability set.
func FeatureTable() map[Type]Features {
	return map[Type]Features{
		TypeTrial: {
			MaxStorageGB:      uintPtr64(10),
			MaxFolders:        uintPtr32(100),
			MaxFiles:          uintPtr32(1000),
			MaxConnections:    2,
			ParallelUploads:   1,
			ParallelDownloads: 2,
			EncryptionEnabled: true,
		},
		TypeFull: {
			MaxStorageGB:      uintPtr64(1000),
			MaxFolders:        uintPtr32(10000),
			MaxFiles:          uintPtr32(100000),
			MaxConnections:    10,
			ParallelUploads:   4,
			ParallelDownloads: 8,
			EncryptionEnabled: true,
			PrivateShares:     true,
			PasswordShares:    true,
			AutoResume:        true,
			ScheduledSync:     true,
		},
	}
}

// License is an entitlement record bound to one identity and one device.
// Records are never hard-deleted; deactivation flips IsActive.
type License struct {
	LicenseID         string     `json:"license_id"`
	UserID            string     `json:"user_id"`
	Type              Type       `json:"license_type"`
	ActivatedAt       time.Time  `json:"activated_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	Features          Features   `json:"features"`
	Signature         string     `json:"signature"`
	IsActive          bool       `json:"is_active"`
	ActivationCount   uint32     `json:"activation_count"`
	MaxActivations    uint32     `json:"max_activations"`
}

// Key is an out-of-band-issued credential, decoded from its transport token
// before activation. Never persisted as-is.
type Key struct {
	Key            string  `json:"key"`
	Type           Type    `json:"license_type"`
	DurationDays   *int64  `json:"duration_days"`
	PriceUSD       float64 `json:"price_usd"`
	MaxActivations uint32  `json:"max_activations"`
}

const (
	trialDays    = 30
	fullDays     = 365
	fullPriceUSD = 29.99
)

func uintPtr64(v uint64) *uint64 { return &v }
func uintPtr32(v uint32) *uint32 { return &v }
