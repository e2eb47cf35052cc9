package model

import "time"

// UsageRecord tracks an account's API usage against its billing cycle.
// Quota of zero means no cap has been assigned yet: the account is
// unlimited until billing writes a real quota.
type UsageRecord struct {
	UserID     string    `json:"user_id"`
	Used       int64     `json:"used"`
	Quota      int64     `json:"quota"`
	CycleStart time.Time `json:"cycle_start"`
	CycleEnd   time.Time `json:"cycle_end"`
}

// Exceeded reports whether further requests must be rejected: the cycle
// has lapsed, or a positive quota is spent.
func (u *UsageRecord) Exceeded(now time.Time) bool {
	if now.After(u.CycleEnd) {
		return true
	}
	return u.Quota > 0 && u.Used >= u.Quota
}
