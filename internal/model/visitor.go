// Package model defines domain entities for the application.
package model

import "time"

// Visitor represents a stable identity for a device/browser fingerprint
// within a single site. There is exactly one row per (site, fingerprint)
// pair; the ID is derived deterministically from the fingerprint so
// repeated visits always resolve to the same row.
type Visitor struct {
	ID          string `json:"id"` // deterministic UUID (v5) of the fingerprint
	SiteID      string `json:"site_id"`
	Fingerprint string `json:"fingerprint"`

	// Request context, last-known values.
	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
	IPAddress        string `json:"ip_address"`

	// IP geolocation enrichment, last-known values.
	Country string `json:"country"`
	City    string `json:"city"`
	Region  string `json:"region"`
	ISP     string `json:"isp"`

	// Contact details when the visitor identified themselves.
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Name  *string `json:"name,omitempty"`

	// Detection flags, last-known values.
	IsTor       bool `json:"is_tor"`
	IsProxy     bool `json:"is_proxy"`
	IsTempEmail bool `json:"is_temp_email"`

	VisitCount int64     `json:"visit_count"`
	RiskScore  int       `json:"risk_score"`
	LastSeen   time.Time `json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
}
