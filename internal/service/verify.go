package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentra/sentra/internal/identity"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/repository"
)

// ErrNoRecentEvent indicates the visitor has no event inside the
// verification lookback window.
var ErrNoRecentEvent = errors.New("no recent event for visitor")

// trialLookback is how far back the verifier searches for the visitor's
// latest decision.
const trialLookback = 10 * time.Minute

// VerifyStore is the persistence surface for trial verification.
type VerifyStore interface {
	GetSiteByKey(ctx context.Context, apiKey string) (*model.Site, error)
	LatestEvent(ctx context.Context, siteID, visitorID string, since time.Time) (*model.Event, error)
	AddVisitorEmail(ctx context.Context, siteID, fingerprint, email string) error
	CountDistinctEmails(ctx context.Context, siteID, fingerprint string) (int, error)
}

// VerifyService answers "may this visitor start a trial?" using the most
// recent ingestion decision plus a fresh trial-abuse recheck. Backends call
// it at signup time, after the client has already gone through collection.
type VerifyService struct {
	store  VerifyStore
	logger *slog.Logger
	now    func() time.Time
}

// NewVerifyService creates a VerifyService.
func NewVerifyService(store VerifyStore, logger *slog.Logger) *VerifyService {
	return &VerifyService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// VerifyInput identifies the visitor being checked. Email is optional;
// when present it is recorded so the trial-abuse count stays current.
type VerifyInput struct {
	SiteKey         string
	FingerprintHash string
	Email           string
}

// VerifyResult is the trial decision.
type VerifyResult struct {
	Allow   bool          `json:"allow"`
	Reason  string        `json:"reason,omitempty"`
	Score   int           `json:"score"`
	Verdict model.Verdict `json:"verdict"`
}

// VerifyTrial checks the visitor's latest decision within the lookback
// window and re-evaluates the trial-abuse threshold with the signup email.
func (s *VerifyService) VerifyTrial(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	site, err := s.store.GetSiteByKey(ctx, in.SiteKey)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			return nil, ErrInvalidSiteKey
		}
		return nil, fmt.Errorf("site lookup: %w", err)
	}

	visitorID := identity.Resolve(in.FingerprintHash)

	event, err := s.store.LatestEvent(ctx, site.ID, visitorID, s.now().Add(-trialLookback))
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, ErrNoRecentEvent
		}
		return nil, fmt.Errorf("latest event lookup: %w", err)
	}

	result := &VerifyResult{
		Allow:   true,
		Score:   event.Properties.RiskScore,
		Verdict: event.Properties.Verdict,
	}

	if event.Properties.Action == model.ActionAutoBlock {
		result.Allow = false
		result.Reason = "visitor is blocked"
		return result, nil
	}

	if in.Email != "" {
		if err := s.store.AddVisitorEmail(ctx, site.ID, in.FingerprintHash, in.Email); err != nil {
			return nil, fmt.Errorf("visitor email insert: %w", err)
		}
		emailCount, err := s.store.CountDistinctEmails(ctx, site.ID, in.FingerprintHash)
		if err != nil {
			return nil, fmt.Errorf("visitor email count: %w", err)
		}
		if emailCount >= site.EffectiveTrialAbuseThreshold() {
			result.Allow = false
			result.Reason = fmt.Sprintf("multiple emails detected (%d distinct emails)", emailCount)
			s.logger.Warn("trial verification denied",
				slog.String("site_id", site.ID),
				slog.String("visitor_id", visitorID),
				slog.Int("email_count", emailCount),
			)
			return result, nil
		}
	}

	if event.Properties.Suspicious {
		result.Allow = false
		result.Reason = event.Properties.SuspiciousReason
	}

	return result, nil
}
