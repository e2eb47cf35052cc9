package dto

// VerifyTrialRequest asks whether a signup should be allowed to start a
// trial, based on the visitor's most recent scored event.
type VerifyTrialRequest struct {
	SiteKey         string `json:"siteKey" validate:"required"`
	FingerprintHash string `json:"fingerprint_hash" validate:"required"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
}
