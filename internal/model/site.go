package model

import "time"

// DefaultTrialAbuseThreshold is the minimum distinct-email count that
// triggers the trial-abuse detector when a site has no explicit setting.
const DefaultTrialAbuseThreshold = 2

// Site is tenant configuration. The core reads it; only dashboard
// collaborators mutate the policy fields.
type Site struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"` // the tenant's public site key
	UserID string `json:"user_id"` // owning account

	// Auto-block policy.
	AutoBlock     bool `json:"auto_block"`
	RiskThreshold int  `json:"risk_threshold"` // 0-100

	// Trial-abuse policy.
	AutoBlockTrialAbuse bool `json:"auto_block_trial_abuse"`
	TrialAbuseThreshold int  `json:"trial_abuse_threshold"`

	ShareReputation bool `json:"share_reputation"`

	// Argon2id hash of the management secret gating block mutations.
	SecretHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// EffectiveTrialAbuseThreshold clamps the configured threshold to the
// documented minimum of 2 distinct emails.
func (s *Site) EffectiveTrialAbuseThreshold() int {
	if s.TrialAbuseThreshold < DefaultTrialAbuseThreshold {
		return DefaultTrialAbuseThreshold
	}
	return s.TrialAbuseThreshold
}
