// Package risk implements the additive visitor risk scorer.
package risk

import "github.com/sentra/sentra/internal/model"

// Signal weights. Scoring is additive; a true signal can only raise the
// score, never lower it.
const (
	WeightIncognito        = 20
	WeightVPN              = 20
	WeightTimezoneMismatch = 15
	WeightWebdriver        = 10
	WeightAbuseListed      = 10
	WeightVelocity         = 5

	// VelocityThreshold is the event count above which burst activity
	// contributes to the score.
	VelocityThreshold = 3

	// MaxScore is the clamp ceiling and the value forced by block overrides.
	MaxScore = 100
)

// Verdict boundaries: score <= 30 is low, <= 70 is medium, above is high.
const (
	verdictLowMax    = 30
	verdictMediumMax = 70
)

// Signals are the boolean/numeric inputs the engine combines. Manual and
// automatic block decisions are a hard override layered on top of this
// score, not an input to it.
type Signals struct {
	Incognito        bool
	VPN              bool // VPN or hosting-provider IP
	TimezoneMismatch bool
	Webdriver        bool
	AbuseListed      bool
	VelocityCount    int
}

// Compute returns the 0-100 score and its verdict. Pure and deterministic.
func Compute(s Signals) (int, model.Verdict) {
	score := 0
	if s.Incognito {
		score += WeightIncognito
	}
	if s.VPN {
		score += WeightVPN
	}
	if s.TimezoneMismatch {
		score += WeightTimezoneMismatch
	}
	if s.Webdriver {
		score += WeightWebdriver
	}
	if s.AbuseListed {
		score += WeightAbuseListed
	}
	if s.VelocityCount > VelocityThreshold {
		score += WeightVelocity
	}

	if score > MaxScore {
		score = MaxScore
	}

	return score, VerdictFor(score)
}

// VerdictFor maps a score onto its risk bucket.
func VerdictFor(score int) model.Verdict {
	switch {
	case score <= verdictLowMax:
		return model.VerdictLow
	case score <= verdictMediumMax:
		return model.VerdictMedium
	default:
		return model.VerdictHigh
	}
}
