package model

import "time"

// Verdict is the coarse risk bucket derived from the numeric score.
type Verdict string

const (
	VerdictLow    Verdict = "low"
	VerdictMedium Verdict = "medium"
	VerdictHigh   Verdict = "high"
)

// Action is the decision returned to the caller for an ingested event.
type Action string

const (
	ActionManualReview Action = "manual_review"
	ActionAutoBlock    Action = "auto_block"
)

// GPSLocation is a device-reported position.
type GPSLocation struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// BotdResult is the normalized output of the client-side bot detector.
type BotdResult struct {
	Result string `json:"result"`
}

// EventProperties is the structured enrichment record persisted with each
// event. Every signal family has an explicit field; consumers never have to
// probe an untyped map.
type EventProperties struct {
	FingerprintHash string `json:"fingerprint_hash"`

	// Final decision. The event is written only after all overrides
	// (manual block, trial abuse, auto-block policy) are applied.
	RiskScore int     `json:"risk_score"`
	Verdict   Verdict `json:"verdict"`
	Action    Action  `json:"action"`

	// Network signals.
	IP          string `json:"ip"`
	IPCity      string `json:"ip_city"`
	IPCountry   string `json:"ip_country"`
	IPOrg       string `json:"ip_org"`
	VPNDetected bool   `json:"vpnDetected"`
	AbuseListed bool   `json:"abuse_listed"`
	IsTor       bool   `json:"is_tor"`
	IsProxy     bool   `json:"is_proxy"`

	// Device/browser signals.
	Browser          string `json:"browser,omitempty"`
	OS               string `json:"os,omitempty"`
	Resolution       string `json:"resolution"`
	Timezone         string `json:"timezone"`
	UserAgent        string `json:"userAgent"`
	TimezoneMismatch bool   `json:"timezone_mismatch"`
	Incognito        bool   `json:"incognito"`
	Webdriver        bool   `json:"webdriver"`

	// Detection flags.
	IsBot       bool        `json:"is_bot"`
	IsTempEmail bool        `json:"is_temp_email"`
	BotdResult  *BotdResult `json:"botd_result,omitempty"`

	Email string `json:"email,omitempty"`

	// Advanced/geo signals.
	GPSLocation      *GPSLocation `json:"gps_location,omitempty"`
	GPSPermission    string       `json:"gps_permission,omitempty"`
	EmulatorDetected bool         `json:"emulator_detected"`
	EmulatorReasons  []string     `json:"emulator_reasons,omitempty"`
	GeoMismatch      bool         `json:"geo_mismatch"`
	LocationSpoofed  bool         `json:"location_spoofed"`

	// Trial-abuse flagging (set when the threshold is crossed but the
	// site has auto-block disabled).
	Suspicious       bool   `json:"suspicious,omitempty"`
	SuspiciousReason string `json:"suspiciousReason,omitempty"`

	// Counters captured at decision time.
	VisitCount    int64 `json:"visit_count"`
	VelocityCount int   `json:"velocity_count"`
}

// Event is one immutable record per ingestion call. Events are append-only;
// the core never mutates or deletes them.
type Event struct {
	ID         string          `json:"id"` // ULID, time-sortable
	SiteID     string          `json:"site_id"`
	VisitorID  string          `json:"visitor_id"`
	Referrer   string          `json:"referrer,omitempty"`
	Properties EventProperties `json:"properties"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NormalizeBotdResult maps the open-source BotD shape {bot: false} onto the
// canonical {result: "notDetected"} form. A nil input stays nil.
func NormalizeBotdResult(raw map[string]any) *BotdResult {
	if raw == nil {
		return nil
	}
	if bot, ok := raw["bot"].(bool); ok && !bot {
		return &BotdResult{Result: "notDetected"}
	}
	if result, ok := raw["result"].(string); ok {
		return &BotdResult{Result: result}
	}
	return &BotdResult{Result: "unknown"}
}
