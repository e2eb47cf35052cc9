package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentra/sentra/internal/identity"
	"github.com/sentra/sentra/internal/model"
)

func seedEvent(store *fakeStore, siteID, fingerprint string, props model.EventProperties, age time.Duration) {
	store.events = append(store.events, &model.Event{
		ID:         "event-seed",
		SiteID:     siteID,
		VisitorID:  identity.Resolve(fingerprint),
		Properties: props,
		Timestamp:  time.Now().UTC().Add(-age),
	})
}

func TestVerifyTrial_AllowsCleanVisitor(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	seedEvent(store, "site-1", "fp-verify", model.EventProperties{
		RiskScore: 20,
		Verdict:   model.VerdictLow,
		Action:    model.ActionManualReview,
	}, time.Minute)

	svc := NewVerifyService(store, testLogger())

	result, err := svc.VerifyTrial(context.Background(), VerifyInput{
		SiteKey:         store.site.APIKey,
		FingerprintHash: "fp-verify",
		Email:           "signup@example.com",
	})
	if err != nil {
		t.Fatalf("VerifyTrial failed: %v", err)
	}

	if !result.Allow {
		t.Errorf("Allow = false, want true (reason %q)", result.Reason)
	}
	if result.Score != 20 || result.Verdict != model.VerdictLow {
		t.Errorf("score/verdict = %d/%s", result.Score, result.Verdict)
	}
}

func TestVerifyTrial_DeniesBlockedVisitor(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	seedEvent(store, "site-1", "fp-blocked", model.EventProperties{
		RiskScore: 100,
		Verdict:   model.VerdictHigh,
		Action:    model.ActionAutoBlock,
	}, time.Minute)

	svc := NewVerifyService(store, testLogger())

	result, err := svc.VerifyTrial(context.Background(), VerifyInput{
		SiteKey:         store.site.APIKey,
		FingerprintHash: "fp-blocked",
	})
	if err != nil {
		t.Fatalf("VerifyTrial failed: %v", err)
	}

	if result.Allow {
		t.Error("blocked visitor must be denied")
	}
	if result.Reason == "" {
		t.Error("denial should carry a reason")
	}
}

func TestVerifyTrial_DeniesOnEmailThreshold(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	seedEvent(store, "site-1", "fp-multi", model.EventProperties{
		Verdict: model.VerdictLow,
		Action:  model.ActionManualReview,
	}, time.Minute)

	// One email already on file; the signup email is the second.
	if err := store.AddVisitorEmail(context.Background(), "site-1", "fp-multi", "old@example.com"); err != nil {
		t.Fatal(err)
	}

	svc := NewVerifyService(store, testLogger())

	result, err := svc.VerifyTrial(context.Background(), VerifyInput{
		SiteKey:         store.site.APIKey,
		FingerprintHash: "fp-multi",
		Email:           "new@example.com",
	})
	if err != nil {
		t.Fatalf("VerifyTrial failed: %v", err)
	}

	if result.Allow {
		t.Error("crossing the email threshold must deny the trial")
	}
}

func TestVerifyTrial_NoRecentEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	// Event exists but is older than the lookback window.
	seedEvent(store, "site-1", "fp-stale", model.EventProperties{
		Verdict: model.VerdictLow,
	}, time.Hour)

	svc := NewVerifyService(store, testLogger())

	_, err := svc.VerifyTrial(context.Background(), VerifyInput{
		SiteKey:         store.site.APIKey,
		FingerprintHash: "fp-stale",
	})
	if !errors.Is(err, ErrNoRecentEvent) {
		t.Fatalf("expected ErrNoRecentEvent, got %v", err)
	}
}

func TestVerifyTrial_DeniesSuspiciousEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	seedEvent(store, "site-1", "fp-flagged", model.EventProperties{
		Verdict:          model.VerdictMedium,
		Action:           model.ActionManualReview,
		Suspicious:       true,
		SuspiciousReason: "multiple emails detected (2 distinct emails)",
	}, time.Minute)

	svc := NewVerifyService(store, testLogger())

	result, err := svc.VerifyTrial(context.Background(), VerifyInput{
		SiteKey:         store.site.APIKey,
		FingerprintHash: "fp-flagged",
	})
	if err != nil {
		t.Fatalf("VerifyTrial failed: %v", err)
	}

	if result.Allow {
		t.Error("suspicious event should deny the trial")
	}
	if result.Reason != "multiple emails detected (2 distinct emails)" {
		t.Errorf("Reason = %q", result.Reason)
	}
}
