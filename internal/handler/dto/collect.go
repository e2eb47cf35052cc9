// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"

	"github.com/sentra/sentra/internal/service"
)

// GeoPayload is the device-reported position block of the ingest payload.
type GeoPayload struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Accuracy   float64 `json:"accuracy,omitempty"`
	Permission string  `json:"permission,omitempty"`
}

// EmulatorPayload is the client-side emulator heuristic block.
type EmulatorPayload struct {
	IsEmulator bool     `json:"isEmulator"`
	Reasons    []string `json:"reasons,omitempty"`
}

// CollectRequest is the ingestion payload produced by the signal
// extractor. Field names mirror the client SDK wire format, which mixes
// camelCase and snake_case.
type CollectRequest struct {
	SiteKey         string `json:"siteKey" validate:"required"`
	FingerprintHash string `json:"fingerprint_hash" validate:"required"`
	UserAgent       string `json:"userAgent" validate:"required"`
	Language        string `json:"language" validate:"required"`
	Timezone        string `json:"timezone" validate:"required"`
	Resolution      string `json:"resolution" validate:"required"`

	Referrer  string `json:"referrer,omitempty"`
	Incognito bool   `json:"incognito,omitempty"`
	Webdriver bool   `json:"webdriver,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
	Name      string `json:"name,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`

	BotdResult map[string]any   `json:"botd_result,omitempty"`
	Geo        *GeoPayload      `json:"geo,omitempty"`
	Emulator   *EmulatorPayload `json:"emulator,omitempty"`

	// Accepted for forward compatibility with the SDK; not scored.
	ThumbmarkSignals json.RawMessage `json:"thumbmark_signals,omitempty"`
	ThumbmarkDetails json.RawMessage `json:"thumbmark_details,omitempty"`
}

// ToCollectInput converts the request plus the resolved client IP into
// the service input.
func (r *CollectRequest) ToCollectInput(ip string) service.CollectInput {
	in := service.CollectInput{
		SiteKey:         r.SiteKey,
		FingerprintHash: r.FingerprintHash,
		IP:              ip,
		UserAgent:       r.UserAgent,
		Language:        r.Language,
		Timezone:        r.Timezone,
		Resolution:      r.Resolution,
		Referrer:        r.Referrer,
		Incognito:       r.Incognito,
		Webdriver:       r.Webdriver,
		Email:           r.Email,
		Phone:           r.Phone,
		Name:            r.Name,
		Browser:         r.Browser,
		OS:              r.OS,
		BotdResult:      r.BotdResult,
	}
	if r.Geo != nil {
		in.GPS = &service.GPSInput{
			Lat:        r.Geo.Lat,
			Lon:        r.Geo.Lon,
			Accuracy:   r.Geo.Accuracy,
			Permission: r.Geo.Permission,
		}
	}
	if r.Emulator != nil {
		in.Emulator = &service.EmulatorInput{
			IsEmulator: r.Emulator.IsEmulator,
			Reasons:    r.Emulator.Reasons,
		}
	}
	return in
}
