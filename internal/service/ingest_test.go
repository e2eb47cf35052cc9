package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentra/sentra/internal/identity"
	"github.com/sentra/sentra/internal/intel"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/repository"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeStore struct {
	site  *model.Site
	usage *model.UsageRecord

	velocity    int
	velocityErr error

	emails map[string]map[string]struct{} // fingerprint -> distinct emails

	activeBlock     *model.ManualBlock
	trialBlockCount int
	trialBlockSeen  map[string]bool // fingerprint -> block exists

	events         []*model.Event
	insertEventErr error
	latestEventErr error

	usageIncrements int
	riskUpdates     int
	globalRepCount  int
	visitCount      int64
}

func newFakeStore(site *model.Site) *fakeStore {
	return &fakeStore{
		site:           site,
		emails:         make(map[string]map[string]struct{}),
		trialBlockSeen: make(map[string]bool),
	}
}

func (f *fakeStore) GetSiteByKey(ctx context.Context, apiKey string) (*model.Site, error) {
	if f.site == nil || f.site.APIKey != apiKey {
		return nil, repository.ErrSiteNotFound
	}
	return f.site, nil
}

func (f *fakeStore) GetUsage(ctx context.Context, userID string) (*model.UsageRecord, error) {
	if f.usage == nil {
		return nil, repository.ErrUsageNotFound
	}
	return f.usage, nil
}

func (f *fakeStore) IncrementUsage(ctx context.Context, userID string) error {
	f.usageIncrements++
	return nil
}

func (f *fakeStore) UpsertVisitor(ctx context.Context, v *model.Visitor) (int64, error) {
	f.visitCount++
	return f.visitCount, nil
}

func (f *fakeStore) UpdateVisitorRisk(ctx context.Context, siteID, visitorID string, riskScore int) error {
	f.riskUpdates++
	return nil
}

func (f *fakeStore) VelocityCount(ctx context.Context, siteID, visitorID string, since time.Time) (int, error) {
	if f.velocityErr != nil {
		return 0, f.velocityErr
	}
	return f.velocity, nil
}

func (f *fakeStore) AddVisitorEmail(ctx context.Context, siteID, fingerprint, email string) error {
	if f.emails[fingerprint] == nil {
		f.emails[fingerprint] = make(map[string]struct{})
	}
	f.emails[fingerprint][email] = struct{}{}
	return nil
}

func (f *fakeStore) CountDistinctEmails(ctx context.Context, siteID, fingerprint string) (int, error) {
	return len(f.emails[fingerprint]), nil
}

func (f *fakeStore) ActiveBlock(ctx context.Context, siteKey, ip, fingerprintHash string) (*model.ManualBlock, error) {
	if f.activeBlock != nil && (f.activeBlock.IP == ip || f.activeBlock.FingerprintHash == fingerprintHash) {
		return f.activeBlock, nil
	}
	if f.trialBlockSeen[fingerprintHash] {
		return &model.ManualBlock{
			ID:              "trial-block",
			SiteKey:         siteKey,
			FingerprintHash: fingerprintHash,
			Reason:          model.TrialAbuseReason,
		}, nil
	}
	return nil, repository.ErrBlockNotFound
}

func (f *fakeStore) CreateTrialAbuseBlock(ctx context.Context, block *model.ManualBlock) (bool, error) {
	if f.trialBlockSeen[block.FingerprintHash] {
		return false, nil
	}
	f.trialBlockSeen[block.FingerprintHash] = true
	f.trialBlockCount++
	return true, nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, event *model.Event) error {
	if f.insertEventErr != nil {
		return f.insertEventErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) UpsertGlobalReputation(ctx context.Context, fingerprintHash, ip string, seenAt time.Time) error {
	f.globalRepCount++
	return nil
}

func (f *fakeStore) LatestEvent(ctx context.Context, siteID, visitorID string, since time.Time) (*model.Event, error) {
	if f.latestEventErr != nil {
		return nil, f.latestEventErr
	}
	for i := len(f.events) - 1; i >= 0; i-- {
		ev := f.events[i]
		if ev.SiteID == siteID && ev.VisitorID == visitorID && !ev.Timestamp.Before(since) {
			return ev, nil
		}
	}
	return nil, repository.ErrEventNotFound
}

func (f *fakeStore) ListActiveBlocks(ctx context.Context, siteKey string) ([]*model.ManualBlock, error) {
	if f.activeBlock != nil {
		return []*model.ManualBlock{f.activeBlock}, nil
	}
	return nil, nil
}

func (f *fakeStore) CreateBlock(ctx context.Context, block *model.ManualBlock) error {
	f.activeBlock = block
	return nil
}

func (f *fakeStore) GetBlock(ctx context.Context, id string) (*model.ManualBlock, error) {
	if f.activeBlock != nil && f.activeBlock.ID == id {
		return f.activeBlock, nil
	}
	return nil, repository.ErrBlockNotFound
}

func (f *fakeStore) DeleteBlock(ctx context.Context, id string) error {
	if f.activeBlock != nil && f.activeBlock.ID == id {
		f.activeBlock = nil
		return nil
	}
	return repository.ErrBlockNotFound
}

type fakeIPLookup struct {
	info *model.IPInfo
	err  error
}

func (f *fakeIPLookup) Lookup(ctx context.Context, ip string) (*model.IPInfo, error) {
	return f.info, f.err
}

type fakeAbuseLookup struct {
	result model.AbuseResult
}

func (f *fakeAbuseLookup) Check(ctx context.Context, ip string) model.AbuseResult {
	return f.result
}

// ============================================================================
// Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptyLists(t *testing.T) *intel.Lists {
	t.Helper()
	return intel.Load(intel.Config{}, testLogger())
}

func testSite() *model.Site {
	return &model.Site{
		ID:                  "site-1",
		APIKey:              "sk_test_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
		UserID:              "user-1",
		RiskThreshold:       70,
		TrialAbuseThreshold: 2,
	}
}

func cleanIPInfo() *model.IPInfo {
	return &model.IPInfo{
		Org:      "AS64500 Example Net",
		City:     "New York",
		Country:  "US",
		Timezone: "America/New_York",
	}
}

func cleanInput() CollectInput {
	return CollectInput{
		SiteKey:         "sk_test_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
		FingerprintHash: "fp-clean-visitor",
		IP:              "203.0.113.10",
		UserAgent:       "Mozilla/5.0 (test)",
		Language:        "en-US",
		Timezone:        "America/New_York",
		Resolution:      "1920x1080",
	}
}

func newIngest(t *testing.T, store *fakeStore, ip *fakeIPLookup, ab *fakeAbuseLookup) *IngestService {
	t.Helper()
	return NewIngestService(store, ip, ab, emptyLists(t), metrics.NewNoop(), testLogger(), DefaultVelocityWindow)
}

// ============================================================================
// Pipeline Tests
// ============================================================================

func TestCollect_CleanVisitorScoresZero(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	result, err := svc.Collect(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %d, want 0", result.RiskScore)
	}
	if result.Verdict != model.VerdictLow {
		t.Errorf("Verdict = %q, want low", result.Verdict)
	}
	if result.Action != model.ActionManualReview {
		t.Errorf("Action = %q, want manual_review", result.Action)
	}
	if result.VisitorEventID == "" {
		t.Error("VisitorEventID should be set")
	}
	if len(store.events) != 1 {
		t.Fatalf("event count = %d, want 1", len(store.events))
	}
	if store.events[0].Properties.VisitCount != 1 {
		t.Errorf("VisitCount snapshot = %d, want 1", store.events[0].Properties.VisitCount)
	}
	if store.riskUpdates != 1 {
		t.Errorf("risk updates = %d, want 1", store.riskUpdates)
	}
}

func TestCollect_MediumRiskScenario(t *testing.T) {
	t.Parallel()

	// incognito + VPN + timezone mismatch = 55.
	info := cleanIPInfo()
	info.Timezone = "Europe/Berlin"
	info.Privacy.VPN = true

	store := newFakeStore(testSite())
	svc := newIngest(t, store, &fakeIPLookup{info: info}, &fakeAbuseLookup{})

	in := cleanInput()
	in.Incognito = true

	result, err := svc.Collect(context.Background(), in)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if result.RiskScore != 55 {
		t.Errorf("RiskScore = %d, want 55", result.RiskScore)
	}
	if result.Verdict != model.VerdictMedium {
		t.Errorf("Verdict = %q, want medium", result.Verdict)
	}
	if !result.Signals.VPNDetected || !result.Signals.TimezoneMismatch {
		t.Errorf("signals = %+v", result.Signals)
	}
}

func TestCollect_ReputationFailureFailsTowardSuspicion(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	svc := newIngest(t, store, &fakeIPLookup{err: errors.New("provider down")}, &fakeAbuseLookup{})

	result, err := svc.Collect(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if !result.Signals.TimezoneMismatch {
		t.Error("missing IP info should default timezone mismatch to true")
	}
	if result.RiskScore != 15 {
		t.Errorf("RiskScore = %d, want 15", result.RiskScore)
	}
}

func TestCollect_InvalidSiteKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	in := cleanInput()
	in.SiteKey = "sk_test_wrong"

	if _, err := svc.Collect(context.Background(), in); !errors.Is(err, ErrInvalidSiteKey) {
		t.Fatalf("expected ErrInvalidSiteKey, got %v", err)
	}
	if len(store.events) != 0 {
		t.Error("no event should be written for an invalid site key")
	}
}

func TestCollect_QuotaEnforcement(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tests := []struct {
		name     string
		usage    *model.UsageRecord
		wantDeny bool
	}{
		{
			name:     "no usage record is unlimited",
			usage:    nil,
			wantDeny: false,
		},
		{
			name: "zero quota is unlimited",
			usage: &model.UsageRecord{
				UserID: "user-1", Used: 500, Quota: 0,
				CycleStart: now.Add(-time.Hour), CycleEnd: now.Add(time.Hour),
			},
			wantDeny: false,
		},
		{
			name: "used below quota allowed",
			usage: &model.UsageRecord{
				UserID: "user-1", Used: 99, Quota: 100,
				CycleStart: now.Add(-time.Hour), CycleEnd: now.Add(time.Hour),
			},
			wantDeny: false,
		},
		{
			name: "used at quota rejected",
			usage: &model.UsageRecord{
				UserID: "user-1", Used: 100, Quota: 100,
				CycleStart: now.Add(-time.Hour), CycleEnd: now.Add(time.Hour),
			},
			wantDeny: true,
		},
		{
			name: "lapsed cycle rejected",
			usage: &model.UsageRecord{
				UserID: "user-1", Used: 1, Quota: 100,
				CycleStart: now.Add(-48 * time.Hour), CycleEnd: now.Add(-time.Hour),
			},
			wantDeny: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore(testSite())
			store.usage = tt.usage
			svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

			_, err := svc.Collect(context.Background(), cleanInput())
			if tt.wantDeny {
				if !errors.Is(err, ErrQuotaExceeded) {
					t.Fatalf("expected ErrQuotaExceeded, got %v", err)
				}
				if len(store.events) != 0 {
					t.Error("rejected request must not write an event")
				}
				return
			}
			if err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			if tt.usage != nil && store.usageIncrements != 1 {
				t.Errorf("usage increments = %d, want 1", store.usageIncrements)
			}
		})
	}
}

func TestCollect_ManualBlockOverridesEverything(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	store.activeBlock = &model.ManualBlock{
		ID:      "block-1",
		SiteKey: store.site.APIKey,
		IP:      "203.0.113.10",
		Reason:  "operator block",
	}
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	result, err := svc.Collect(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if result.RiskScore != 100 {
		t.Errorf("RiskScore = %d, want 100", result.RiskScore)
	}
	if result.Verdict != model.VerdictHigh {
		t.Errorf("Verdict = %q, want high", result.Verdict)
	}
	if result.Action != model.ActionAutoBlock {
		t.Errorf("Action = %q, want auto_block", result.Action)
	}
	// The override is persisted, not just returned.
	if store.events[0].Properties.RiskScore != 100 || store.events[0].Properties.Action != model.ActionAutoBlock {
		t.Errorf("persisted decision = %+v", store.events[0].Properties)
	}
}

func TestCollect_PolicyThresholdForcesAutoBlock(t *testing.T) {
	t.Parallel()

	site := testSite()
	site.AutoBlock = true
	site.RiskThreshold = 50

	// incognito + VPN + timezone mismatch = 55 >= 50.
	info := cleanIPInfo()
	info.Timezone = "Europe/Berlin"
	info.Privacy.VPN = true

	store := newFakeStore(site)
	svc := newIngest(t, store, &fakeIPLookup{info: info}, &fakeAbuseLookup{})

	in := cleanInput()
	in.Incognito = true

	result, err := svc.Collect(context.Background(), in)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if result.Action != model.ActionAutoBlock {
		t.Errorf("Action = %q, want auto_block", result.Action)
	}
	// Policy forces the action but does not rewrite the score.
	if result.RiskScore != 55 {
		t.Errorf("RiskScore = %d, want 55", result.RiskScore)
	}
	if result.Verdict != model.VerdictMedium {
		t.Errorf("Verdict = %q, want medium", result.Verdict)
	}
}

func TestCollect_TrialAbuseAutoBlock(t *testing.T) {
	t.Parallel()

	site := testSite()
	site.AutoBlockTrialAbuse = true

	store := newFakeStore(site)
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	first := cleanInput()
	first.Email = "one@example.com"
	if _, err := svc.Collect(context.Background(), first); err != nil {
		t.Fatalf("Collect (first email) failed: %v", err)
	}
	if store.trialBlockCount != 0 {
		t.Fatal("one email must not trigger the detector")
	}

	second := cleanInput()
	second.Email = "two@example.com"
	result, err := svc.Collect(context.Background(), second)
	if err != nil {
		t.Fatalf("Collect (second email) failed: %v", err)
	}

	if result.RiskScore != 100 || result.Verdict != model.VerdictHigh || result.Action != model.ActionAutoBlock {
		t.Errorf("decision = %d/%s/%s, want 100/high/auto_block", result.RiskScore, result.Verdict, result.Action)
	}
	if store.trialBlockCount != 1 {
		t.Errorf("trial block count = %d, want 1", store.trialBlockCount)
	}

	// Third email: detector fires again but block creation is idempotent.
	third := cleanInput()
	third.Email = "three@example.com"
	result, err = svc.Collect(context.Background(), third)
	if err != nil {
		t.Fatalf("Collect (third email) failed: %v", err)
	}
	if result.Action != model.ActionAutoBlock {
		t.Errorf("Action = %q, want auto_block", result.Action)
	}
	if store.trialBlockCount != 1 {
		t.Errorf("trial block count after repeat = %d, want 1", store.trialBlockCount)
	}
}

func TestCollect_TrialAbuseFlagWithoutAutoBlock(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite()) // AutoBlockTrialAbuse=false
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	first := cleanInput()
	first.Email = "one@example.com"
	if _, err := svc.Collect(context.Background(), first); err != nil {
		t.Fatalf("Collect (first email) failed: %v", err)
	}

	second := cleanInput()
	second.Email = "two@example.com"
	result, err := svc.Collect(context.Background(), second)
	if err != nil {
		t.Fatalf("Collect (second email) failed: %v", err)
	}

	if result.Action == model.ActionAutoBlock {
		t.Error("flag-only site must not auto-block")
	}
	if store.trialBlockCount != 0 {
		t.Error("flag-only site must not create a block")
	}

	props := store.events[len(store.events)-1].Properties
	if !props.Suspicious {
		t.Error("event should carry suspicious=true")
	}
	if props.SuspiciousReason == "" {
		t.Error("suspicious reason should cite the email count")
	}
}

func TestCollect_EventWriteFailureFailsCall(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	store.insertEventErr = errors.New("connection reset")
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	if _, err := svc.Collect(context.Background(), cleanInput()); !errors.Is(err, ErrEventWrite) {
		t.Fatalf("expected ErrEventWrite, got %v", err)
	}
}

func TestCollect_VelocityFailureDegradesToZero(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	store.velocityErr = errors.New("query timeout")
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	result, err := svc.Collect(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Signals.VelocityCount != 0 {
		t.Errorf("VelocityCount = %d, want 0", result.Signals.VelocityCount)
	}
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %d, want 0", result.RiskScore)
	}
}

func TestCollect_VelocityAboveThresholdScores(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	store.velocity = 4
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	result, err := svc.Collect(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.RiskScore != 5 {
		t.Errorf("RiskScore = %d, want 5", result.RiskScore)
	}
	if result.Signals.VelocityCount != 4 {
		t.Errorf("VelocityCount = %d, want 4", result.Signals.VelocityCount)
	}
}

func TestCollect_SharesReputationOnHighVerdict(t *testing.T) {
	t.Parallel()

	site := testSite()
	site.ShareReputation = true

	// All signals on: 20+20+15+10+10 = 75 -> high.
	info := cleanIPInfo()
	info.Timezone = "Europe/Berlin"
	info.Privacy.VPN = true

	store := newFakeStore(site)
	svc := newIngest(t, store, &fakeIPLookup{info: info}, &fakeAbuseLookup{result: model.AbuseResult{Blocklisted: true}})

	in := cleanInput()
	in.Incognito = true
	in.Webdriver = true

	result, err := svc.Collect(context.Background(), in)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Verdict != model.VerdictHigh {
		t.Fatalf("Verdict = %q, want high", result.Verdict)
	}
	if store.globalRepCount != 1 {
		t.Errorf("global reputation upserts = %d, want 1", store.globalRepCount)
	}
}

func TestCollect_GeoMismatchAndSpoof(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		gpsLat       float64
		wantMismatch bool
		wantSpoofed  bool
	}{
		{"matching position", 40.71, false, false},
		{"mismatched position", 41.50, true, false},
		{"spoofed position", 45.00, true, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := cleanIPInfo()
			info.Lat, info.Lon, info.HasLoc = 40.71, -74.00, true

			store := newFakeStore(testSite())
			svc := newIngest(t, store, &fakeIPLookup{info: info}, &fakeAbuseLookup{})

			in := cleanInput()
			in.GPS = &GPSInput{Lat: tt.gpsLat, Lon: -74.00, Permission: "granted"}

			if _, err := svc.Collect(context.Background(), in); err != nil {
				t.Fatalf("Collect failed: %v", err)
			}

			props := store.events[0].Properties
			if props.GeoMismatch != tt.wantMismatch {
				t.Errorf("GeoMismatch = %v, want %v", props.GeoMismatch, tt.wantMismatch)
			}
			if props.LocationSpoofed != tt.wantSpoofed {
				t.Errorf("LocationSpoofed = %v, want %v", props.LocationSpoofed, tt.wantSpoofed)
			}
		})
	}
}

func TestCollect_DeterministicVisitorID(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testSite())
	svc := newIngest(t, store, &fakeIPLookup{info: cleanIPInfo()}, &fakeAbuseLookup{})

	if _, err := svc.Collect(context.Background(), cleanInput()); err != nil {
		t.Fatalf("Collect (first) failed: %v", err)
	}
	if _, err := svc.Collect(context.Background(), cleanInput()); err != nil {
		t.Fatalf("Collect (second) failed: %v", err)
	}

	if store.events[0].VisitorID != store.events[1].VisitorID {
		t.Error("same fingerprint should resolve to the same visitor")
	}
	if store.events[0].VisitorID != identity.Resolve("fp-clean-visitor") {
		t.Error("visitor ID should come from deterministic resolution")
	}
}
