package model

import "time"

// BlockType says which value column a manual block matches against.
type BlockType string

const (
	BlockTypeIP          BlockType = "ip"
	BlockTypeFingerprint BlockType = "fingerprint"
)

// IsValid checks if the block type is one of the known values.
func (t BlockType) IsValid() bool {
	return t == BlockTypeIP || t == BlockTypeFingerprint
}

// TrialAbuseReason is the reason recorded on blocks created automatically
// by the trial-abuse detector. The idempotency constraint keys on it.
const TrialAbuseReason = "trial abuse: multiple emails"

// ManualBlock is an explicit deny rule for a tenant, keyed by IP or
// fingerprint. Exactly one of IP / FingerprintHash is set.
type ManualBlock struct {
	ID              string     `json:"id"`
	SiteKey         string     `json:"site_key"`
	IP              string     `json:"-"`
	FingerprintHash string     `json:"-"`
	Reason          string     `json:"reason"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at"` // nil means indefinite
}

// Type is inferred from which value column is populated.
func (b *ManualBlock) Type() BlockType {
	if b.FingerprintHash != "" {
		return BlockTypeFingerprint
	}
	return BlockTypeIP
}

// Value returns the blocked IP or fingerprint hash.
func (b *ManualBlock) Value() string {
	if b.FingerprintHash != "" {
		return b.FingerprintHash
	}
	return b.IP
}

// IsActive reports whether the block applies at the given instant.
// Expiry is evaluated at query time; nothing reaps expired rows.
func (b *ManualBlock) IsActive(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
