package model

import "time"

// IPPrivacy holds the privacy flags a geolocation provider reports for
// an address.
type IPPrivacy struct {
	VPN     bool `json:"vpn"`
	Hosting bool `json:"hosting"`
	Proxy   bool `json:"proxy"`
	Tor     bool `json:"tor"`
	Relay   bool `json:"relay"`
}

// IPInfo is the geolocation/ASN enrichment for a client IP. A nil IPInfo
// means the provider was unavailable; policy treats that as a timezone
// mismatch rather than trusting the visitor.
type IPInfo struct {
	Org      string    `json:"org"`
	City     string    `json:"city"`
	Region   string    `json:"region"`
	Country  string    `json:"country"`
	Timezone string    `json:"timezone"`
	Privacy  IPPrivacy `json:"privacy"`
	ASN      string    `json:"asn,omitempty"`

	// Lat/Lon parsed from the provider's "lat,lon" loc field.
	// HasLoc distinguishes a real 0,0 from an absent location.
	Lat    float64 `json:"lat,omitempty"`
	Lon    float64 `json:"lon,omitempty"`
	HasLoc bool    `json:"has_loc"`
}

// VPNOrHosting reports whether the address belongs to a VPN or a hosting
// provider, the two privacy flags the risk engine scores together.
func (i *IPInfo) VPNOrHosting() bool {
	if i == nil {
		return false
	}
	return i.Privacy.VPN || i.Privacy.Hosting
}

// AbuseResult is the outcome of an abuse-reputation check. Provider
// failures degrade to blocklisted=false.
type AbuseResult struct {
	Blocklisted bool `json:"blocklisted"`
}

// GlobalReputation is the cross-tenant reputation entry shared when a
// site opts in and a visitor scores a high verdict.
type GlobalReputation struct {
	FingerprintHash string    `json:"fingerprint_hash"`
	IP              string    `json:"ip"`
	AbuseCount      int64     `json:"abuse_count"`
	LastSeen        time.Time `json:"last_seen"`
}

// VisitorEmail records one distinct email observed for a (site,
// fingerprint) pair. Emails are lower-cased before insert.
type VisitorEmail struct {
	SiteID      string    `json:"site_id"`
	Fingerprint string    `json:"fingerprint"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}
