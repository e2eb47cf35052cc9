// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sentra/sentra/internal/identity"
	"github.com/sentra/sentra/internal/intel"
	"github.com/sentra/sentra/internal/metrics"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/repository"
	"github.com/sentra/sentra/internal/risk"
)

// Service errors.
var (
	ErrInvalidSiteKey = errors.New("invalid site key")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrEventWrite     = errors.New("failed to record event")
)

// Geo comparison thresholds in degrees. A device reporting GPS more than
// half a degree away from its IP location is mismatched; more than one and
// a half degrees is treated as spoofed.
const (
	geoMismatchDelta   = 0.5
	locationSpoofDelta = 1.5

	// DefaultVelocityWindow is the trailing window the velocity counter
	// scans when config does not override it.
	DefaultVelocityWindow = 60 * time.Minute
)

// IngestStore is the persistence surface the ingestion pipeline needs.
// *repository.Repository implements it.
type IngestStore interface {
	GetSiteByKey(ctx context.Context, apiKey string) (*model.Site, error)
	GetUsage(ctx context.Context, userID string) (*model.UsageRecord, error)
	IncrementUsage(ctx context.Context, userID string) error
	UpsertVisitor(ctx context.Context, v *model.Visitor) (int64, error)
	UpdateVisitorRisk(ctx context.Context, siteID, visitorID string, riskScore int) error
	VelocityCount(ctx context.Context, siteID, visitorID string, since time.Time) (int, error)
	AddVisitorEmail(ctx context.Context, siteID, fingerprint, email string) error
	CountDistinctEmails(ctx context.Context, siteID, fingerprint string) (int, error)
	ActiveBlock(ctx context.Context, siteKey, ip, fingerprintHash string) (*model.ManualBlock, error)
	CreateTrialAbuseBlock(ctx context.Context, block *model.ManualBlock) (bool, error)
	InsertEvent(ctx context.Context, event *model.Event) error
	UpsertGlobalReputation(ctx context.Context, fingerprintHash, ip string, seenAt time.Time) error
}

// IPLookup resolves geolocation/ASN enrichment for an address.
type IPLookup interface {
	Lookup(ctx context.Context, ip string) (*model.IPInfo, error)
}

// AbuseLookup checks an address against an abuse reputation feed.
type AbuseLookup interface {
	Check(ctx context.Context, ip string) model.AbuseResult
}

// IngestService runs the risk-decision pipeline for one visitor event.
type IngestService struct {
	store          IngestStore
	ipLookup       IPLookup
	abuseLookup    AbuseLookup
	lists          *intel.Lists
	metrics        metrics.Recorder
	logger         *slog.Logger
	velocityWindow time.Duration
	now            func() time.Time
}

// NewIngestService creates an IngestService.
func NewIngestService(store IngestStore, ipLookup IPLookup, abuseLookup AbuseLookup, lists *intel.Lists, recorder metrics.Recorder, logger *slog.Logger, velocityWindow time.Duration) *IngestService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if velocityWindow <= 0 {
		velocityWindow = DefaultVelocityWindow
	}
	return &IngestService{
		store:          store,
		ipLookup:       ipLookup,
		abuseLookup:    abuseLookup,
		lists:          lists,
		metrics:        recorder,
		logger:         logger,
		velocityWindow: velocityWindow,
		now:            time.Now,
	}
}

// GPSInput is the device-reported position from the signal extractor.
type GPSInput struct {
	Lat        float64
	Lon        float64
	Accuracy   float64
	Permission string
}

// EmulatorInput is the client-side emulator heuristic result.
type EmulatorInput struct {
	IsEmulator bool
	Reasons    []string
}

// CollectInput is the validated ingestion payload plus the resolved
// client IP.
type CollectInput struct {
	SiteKey         string
	FingerprintHash string
	IP              string
	UserAgent       string
	Language        string
	Timezone        string
	Resolution      string
	Referrer        string
	Incognito       bool
	Webdriver       bool
	Email           string
	Phone           string
	Name            string
	Browser         string
	OS              string
	BotdResult      map[string]any
	GPS             *GPSInput
	Emulator        *EmulatorInput
}

// CollectSignals are the scoring inputs echoed back to the caller.
type CollectSignals struct {
	VPNDetected      bool `json:"vpnDetected"`
	TimezoneMismatch bool `json:"timezoneMismatch"`
	VelocityCount    int  `json:"velocityCount"`
}

// CollectResult is the final decision for one ingested event.
type CollectResult struct {
	RiskScore      int            `json:"risk_score"`
	Verdict        model.Verdict  `json:"verdict"`
	Action         model.Action   `json:"action"`
	VisitorEventID string         `json:"visitor_event_id"`
	Signals        CollectSignals `json:"signals"`
}

// Collect runs the full pipeline: quota, enrichment, identity, velocity,
// scoring, trial-abuse and block overrides, then the durable event write.
// The event record is the source of truth for the decision, so a storage
// failure on that final write fails the whole call.
func (s *IngestService) Collect(ctx context.Context, in CollectInput) (*CollectResult, error) {
	start := s.now()

	site, err := s.store.GetSiteByKey(ctx, in.SiteKey)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			return nil, ErrInvalidSiteKey
		}
		return nil, fmt.Errorf("site lookup: %w", err)
	}

	// Quota gate runs before any enrichment so over-quota accounts cost
	// nothing. A missing usage record means billing has not provisioned
	// the account yet; treat as unlimited.
	usage, err := s.store.GetUsage(ctx, site.UserID)
	if err != nil && !errors.Is(err, repository.ErrUsageNotFound) {
		return nil, fmt.Errorf("usage lookup: %w", err)
	}
	if usage != nil && usage.Exceeded(start) {
		s.metrics.IncQuotaRejected()
		s.logger.Warn("quota exceeded",
			slog.String("site_id", site.ID),
			slog.String("user_id", site.UserID),
			slog.Int64("used", usage.Used),
			slog.Int64("quota", usage.Quota),
		)
		return nil, ErrQuotaExceeded
	}

	isTor := s.lists.IsTorExit(in.IP)
	isProxy := s.lists.IsProxy(in.IP)
	isTempEmail := in.Email != "" && s.lists.IsDisposableEmail(in.Email)

	// The two reputation lookups have no ordering dependency; run them
	// concurrently and join before scoring.
	var (
		wg     sync.WaitGroup
		ipInfo *model.IPInfo
		abuse  model.AbuseResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		info, err := s.ipLookup.Lookup(ctx, in.IP)
		if err != nil {
			s.logger.Warn("ip info unavailable",
				slog.String("ip", in.IP),
				slog.String("error", err.Error()),
			)
			return
		}
		ipInfo = info
	}()
	go func() {
		defer wg.Done()
		abuse = s.abuseLookup.Check(ctx, in.IP)
	}()
	wg.Wait()

	visitorID := identity.Resolve(in.FingerprintHash)

	velocityCount, err := s.store.VelocityCount(ctx, site.ID, visitorID, start.Add(-s.velocityWindow))
	if err != nil {
		// Velocity is a scoring input, not a gate; degrade to zero.
		s.logger.Warn("velocity count failed",
			slog.String("site_id", site.ID),
			slog.String("visitor_id", visitorID),
			slog.String("error", err.Error()),
		)
		velocityCount = 0
	}

	// Absent or timezone-less IP data fails toward suspicion.
	timezoneMismatch := true
	if ipInfo != nil && ipInfo.Timezone != "" {
		timezoneMismatch = ipInfo.Timezone != in.Timezone
	}

	score, verdict := risk.Compute(risk.Signals{
		Incognito:        in.Incognito,
		VPN:              ipInfo.VPNOrHosting(),
		TimezoneMismatch: timezoneMismatch,
		Webdriver:        in.Webdriver,
		AbuseListed:      abuse.Blocklisted,
		VelocityCount:    velocityCount,
	})
	action := model.ActionManualReview

	geoMismatch, locationSpoofed := compareGeo(in.GPS, ipInfo)

	visitor := s.buildVisitor(site, visitorID, in, ipInfo, isTor, isProxy, isTempEmail, start)
	visitCount, err := s.store.UpsertVisitor(ctx, visitor)
	if err != nil {
		return nil, fmt.Errorf("visitor upsert: %w", err)
	}

	// Trial-abuse detection resolves before the event write because its
	// outcome changes the persisted score/verdict/action.
	suspicious := false
	suspiciousReason := ""
	if in.Email != "" {
		if err := s.store.AddVisitorEmail(ctx, site.ID, in.FingerprintHash, in.Email); err != nil {
			return nil, fmt.Errorf("visitor email insert: %w", err)
		}
		emailCount, err := s.store.CountDistinctEmails(ctx, site.ID, in.FingerprintHash)
		if err != nil {
			return nil, fmt.Errorf("visitor email count: %w", err)
		}
		if emailCount >= site.EffectiveTrialAbuseThreshold() {
			if site.AutoBlockTrialAbuse {
				created, err := s.store.CreateTrialAbuseBlock(ctx, &model.ManualBlock{
					ID:              ulid.Make().String(),
					SiteKey:         site.APIKey,
					FingerprintHash: in.FingerprintHash,
					Reason:          model.TrialAbuseReason,
					CreatedAt:       start,
				})
				if err != nil {
					return nil, fmt.Errorf("trial-abuse block insert: %w", err)
				}
				if created {
					s.logger.Warn("trial abuse auto-block created",
						slog.String("site_id", site.ID),
						slog.String("fingerprint_hash", in.FingerprintHash),
						slog.Int("email_count", emailCount),
					)
				}
				score, verdict = risk.MaxScore, model.VerdictHigh
				action = model.ActionAutoBlock
				s.metrics.IncAutoBlock("trial_abuse")
			} else {
				suspicious = true
				suspiciousReason = fmt.Sprintf("multiple emails detected (%d distinct emails)", emailCount)
				s.metrics.IncTrialAbuseFlagged()
			}
		}
	}

	// A matching manual block is a hard override on top of everything
	// scored so far.
	block, err := s.store.ActiveBlock(ctx, site.APIKey, in.IP, in.FingerprintHash)
	switch {
	case err == nil:
		score, verdict = risk.MaxScore, model.VerdictHigh
		action = model.ActionAutoBlock
		s.metrics.IncAutoBlock("manual_block")
		s.logger.Info("manual block matched",
			slog.String("site_id", site.ID),
			slog.String("block_id", block.ID),
			slog.String("block_type", string(block.Type())),
		)
	case errors.Is(err, repository.ErrBlockNotFound):
		// no block
	default:
		// Block lookup failure degrades open; the decision still gets a
		// score and the event insert below will surface a dead database.
		s.logger.Error("block lookup failed",
			slog.String("site_id", site.ID),
			slog.String("error", err.Error()),
		)
	}

	// Site policy can force a block from the computed score alone.
	if action != model.ActionAutoBlock && site.AutoBlock && score >= site.RiskThreshold {
		action = model.ActionAutoBlock
		s.metrics.IncAutoBlock("risk_threshold")
	}

	event := &model.Event{
		ID:        ulid.Make().String(),
		SiteID:    site.ID,
		VisitorID: visitorID,
		Referrer:  in.Referrer,
		Properties: model.EventProperties{
			FingerprintHash:  in.FingerprintHash,
			RiskScore:        score,
			Verdict:          verdict,
			Action:           action,
			IP:               in.IP,
			IPCity:           cityOf(ipInfo),
			IPCountry:        countryOf(ipInfo),
			IPOrg:            orgOf(ipInfo),
			VPNDetected:      ipInfo.VPNOrHosting(),
			AbuseListed:      abuse.Blocklisted,
			IsTor:            isTor,
			IsProxy:          isProxy,
			Browser:          in.Browser,
			OS:               in.OS,
			Resolution:       in.Resolution,
			Timezone:         in.Timezone,
			UserAgent:        in.UserAgent,
			TimezoneMismatch: timezoneMismatch,
			Incognito:        in.Incognito,
			Webdriver:        in.Webdriver,
			IsBot:            in.Webdriver,
			IsTempEmail:      isTempEmail,
			BotdResult:       model.NormalizeBotdResult(in.BotdResult),
			Email:            in.Email,
			GPSLocation:      gpsLocationOf(in.GPS),
			GPSPermission:    gpsPermissionOf(in.GPS),
			EmulatorDetected: in.Emulator != nil && in.Emulator.IsEmulator,
			EmulatorReasons:  emulatorReasonsOf(in.Emulator),
			GeoMismatch:      geoMismatch,
			LocationSpoofed:  locationSpoofed,
			Suspicious:       suspicious,
			SuspiciousReason: suspiciousReason,
			VisitCount:       visitCount,
			VelocityCount:    velocityCount,
		},
		Timestamp: start,
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		s.logger.Error("event insert failed",
			slog.String("site_id", site.ID),
			slog.String("visitor_id", visitorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrEventWrite, err)
	}

	s.metrics.IncEventRecorded(string(verdict), string(action))
	s.metrics.ObservePipelineDuration(s.now().Sub(start))

	// Post-decision writes are best-effort: the decision is already
	// durable, so failures here are logged and swallowed.
	if usage != nil {
		if err := s.store.IncrementUsage(ctx, site.UserID); err != nil {
			s.logger.Error("usage increment failed",
				slog.String("user_id", site.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.store.UpdateVisitorRisk(ctx, site.ID, visitorID, score); err != nil {
		s.logger.Error("visitor risk update failed",
			slog.String("site_id", site.ID),
			slog.String("visitor_id", visitorID),
			slog.String("error", err.Error()),
		)
	}
	if site.ShareReputation && verdict == model.VerdictHigh {
		if err := s.store.UpsertGlobalReputation(ctx, in.FingerprintHash, in.IP, start); err != nil {
			s.logger.Error("global reputation upsert failed",
				slog.String("fingerprint_hash", in.FingerprintHash),
				slog.String("error", err.Error()),
			)
		}
	}

	return &CollectResult{
		RiskScore:      score,
		Verdict:        verdict,
		Action:         action,
		VisitorEventID: event.ID,
		Signals: CollectSignals{
			VPNDetected:      ipInfo.VPNOrHosting(),
			TimezoneMismatch: timezoneMismatch,
			VelocityCount:    velocityCount,
		},
	}, nil
}

func (s *IngestService) buildVisitor(site *model.Site, visitorID string, in CollectInput, ipInfo *model.IPInfo, isTor, isProxy, isTempEmail bool, now time.Time) *model.Visitor {
	v := &model.Visitor{
		ID:               visitorID,
		SiteID:           site.ID,
		Fingerprint:      in.FingerprintHash,
		UserAgent:        in.UserAgent,
		ScreenResolution: in.Resolution,
		Timezone:         in.Timezone,
		Language:         in.Language,
		IPAddress:        in.IP,
		Country:          countryOf(ipInfo),
		City:             cityOf(ipInfo),
		Region:           regionOf(ipInfo),
		ISP:              orgOf(ipInfo),
		IsTor:            isTor,
		IsProxy:          isProxy,
		IsTempEmail:      isTempEmail,
		LastSeen:         now,
		CreatedAt:        now,
	}
	if in.Email != "" {
		v.Email = &in.Email
	}
	if in.Phone != "" {
		v.Phone = &in.Phone
	}
	if in.Name != "" {
		v.Name = &in.Name
	}
	return v
}

// compareGeo checks the device-reported GPS position against the IP
// location. Degrees are a crude distance unit but the thresholds are
// generous enough that only clearly inconsistent reports trip them.
func compareGeo(gps *GPSInput, ipInfo *model.IPInfo) (mismatch, spoofed bool) {
	if gps == nil || ipInfo == nil || !ipInfo.HasLoc {
		return false, false
	}
	delta := math.Max(math.Abs(gps.Lat-ipInfo.Lat), math.Abs(gps.Lon-ipInfo.Lon))
	return delta > geoMismatchDelta, delta > locationSpoofDelta
}

func cityOf(info *model.IPInfo) string {
	if info == nil {
		return ""
	}
	return info.City
}

func countryOf(info *model.IPInfo) string {
	if info == nil {
		return ""
	}
	return info.Country
}

func regionOf(info *model.IPInfo) string {
	if info == nil {
		return ""
	}
	return info.Region
}

func orgOf(info *model.IPInfo) string {
	if info == nil {
		return ""
	}
	return info.Org
}

func gpsLocationOf(gps *GPSInput) *model.GPSLocation {
	if gps == nil {
		return nil
	}
	return &model.GPSLocation{Lat: gps.Lat, Lon: gps.Lon, Accuracy: gps.Accuracy}
}

func gpsPermissionOf(gps *GPSInput) string {
	if gps == nil {
		return ""
	}
	return gps.Permission
}

func emulatorReasonsOf(em *EmulatorInput) []string {
	if em == nil {
		return nil
	}
	return em.Reasons
}
