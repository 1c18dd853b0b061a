package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/adserve/adzone/internal/audit"
	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
)

// AdService is the application core: ad selection, event recording, stats
// aggregation and entity administration. Selection and aggregation are
// read-only; safe for concurrent use from any number of request handlers.
type AdService struct {
	store domain.Store
	cache domain.Cache
	clock Clock
	audit *audit.Logger
}

func NewAdService(store domain.Store, cache domain.Cache, clock Clock, auditLog *audit.Logger) *AdService {
	if clock == nil {
		clock = SystemClock()
	}
	return &AdService{store: store, cache: cache, clock: clock, audit: auditLog}
}

func isPrivileged(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), "admin")
}

// requireAdminOrOwner gates advertiser-scoped mutations: admins always pass,
// otherwise the actor must own the advertiser account.
func (s *AdService) requireAdminOrOwner(ctx context.Context, advertiserID, actorID uuid.UUID, role string) error {
	if isPrivileged(role) {
		return nil
	}
	owner, err := s.store.GetAdvertiserOwner(ctx, advertiserID)
	if err != nil {
		return err
	}
	if owner != actorID {
		return domain.ErrForbidden
	}
	return nil
}

// ---- Selection ----

// SelectAd picks one eligible ad for the zone (and category, when given)
// uniformly at random. Returns ErrNoAdAvailable when the eligible set is
// empty; callers degrade to an empty slot. No writes, no shared selection
// state: the outcome is purely a function of current data and the clock.
func (s *AdService) SelectAd(ctx context.Context, zoneID uuid.UUID, categoryID *uuid.UUID) (domain.Ad, error) {
	candidates, err := s.zoneCandidates(ctx, zoneID)
	if err != nil {
		return domain.Ad{}, err
	}

	now := s.clock.Now()
	eligible := candidates[:0:0]
	for _, ad := range candidates {
		if categoryID != nil && ad.CategoryID != *categoryID {
			continue
		}
		if !domain.IsEligible(ad, now) {
			continue
		}
		eligible = append(eligible, ad)
	}

	if len(eligible) == 0 {
		return domain.Ad{}, domain.ErrNoAdAvailable
	}

	chosen := eligible[rand.IntN(len(eligible))]
	if s.audit != nil {
		s.audit.AdServed(ctx, chosen.ID, zoneID)
	}
	return chosen, nil
}

// zoneCandidates returns the zone's enabled ads, preferring the cache.
// Cache failures fall through to the store; a serve must not depend on redis.
func (s *AdService) zoneCandidates(ctx context.Context, zoneID uuid.UUID) ([]domain.Ad, error) {
	if s.cache != nil {
		ads, err := s.cache.GetZoneAds(ctx, zoneID)
		if err == nil {
			return ads, nil
		}
		// miss or redis error: both fall back to the store
	}

	enabled := true
	ads, err := s.store.FindAds(ctx, domain.AdFilter{ZoneID: &zoneID, Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetZoneAds(ctx, zoneID, ads)
	}
	return ads, nil
}

// ---- Event recording ----

// RecordImpression durably appends one impression event and returns its id.
// A zero timestamp takes the service clock. Reloads count again: there is
// deliberately no dedup of distinct user actions.
func (s *AdService) RecordImpression(ctx context.Context, traceID string, adID uuid.UUID, at time.Time, sourceIP string) (uuid.UUID, error) {
	return s.recordEvent(ctx, traceID, adID, domain.EventImpression, at, sourceIP)
}

// RecordClick durably appends one click event; same semantics as
// RecordImpression.
func (s *AdService) RecordClick(ctx context.Context, traceID string, adID uuid.UUID, at time.Time, sourceIP string) (uuid.UUID, error) {
	return s.recordEvent(ctx, traceID, adID, domain.EventClick, at, sourceIP)
}

func (s *AdService) recordEvent(ctx context.Context, traceID string, adID uuid.UUID, typ domain.EventType, at time.Time, sourceIP string) (uuid.UUID, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	ev := domain.TrackingEvent{
		ID:         uuid.New(),
		AdID:       adID,
		Type:       typ,
		OccurredAt: at.UTC(),
		SourceIP:   strings.TrimSpace(sourceIP),
	}
	if err := s.store.RecordEvent(ctx, traceID, &ev); err != nil {
		return uuid.Nil, err
	}
	if s.audit != nil {
		s.audit.EventRecorded(ctx, ev.ID, adID, string(typ))
	}
	return ev.ID, nil
}

// ---- Aggregation ----

// CountImpressions counts impressions for the ad within [from, to], both
// bounds inclusive and optional. No events in range is 0, not an error.
func (s *AdService) CountImpressions(ctx context.Context, adID uuid.UUID, from, to *time.Time) (int64, error) {
	return s.store.CountEvents(ctx, adID, domain.EventImpression, from, to)
}

func (s *AdService) CountClicks(ctx context.Context, adID uuid.UUID, from, to *time.Time) (int64, error) {
	return s.store.CountEvents(ctx, adID, domain.EventClick, from, to)
}

// Stats aggregates impressions, clicks and CTR for one ad over an optional
// window. Unknown ads are surfaced, unlike the raw counts, because a stats
// request names the ad explicitly.
func (s *AdService) Stats(ctx context.Context, adID uuid.UUID, from, to *time.Time) (domain.AdStats, error) {
	if _, err := s.store.GetAd(ctx, adID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AdStats{}, domain.ErrUnknownAd
		}
		return domain.AdStats{}, err
	}

	impressions, err := s.store.CountEvents(ctx, adID, domain.EventImpression, from, to)
	if err != nil {
		return domain.AdStats{}, err
	}
	clicks, err := s.store.CountEvents(ctx, adID, domain.EventClick, from, to)
	if err != nil {
		return domain.AdStats{}, err
	}

	stats := domain.AdStats{AdID: adID, Impressions: impressions, Clicks: clicks, From: from, To: to}
	if impressions > 0 {
		stats.CTR = float64(clicks) / float64(impressions)
	}
	return stats, nil
}

// ---- Administration ----

func (s *AdService) CreateAdvertiser(ctx context.Context, in CreateAdvertiserInput) (domain.Advertiser, error) {
	if err := checkInput(in); err != nil {
		return domain.Advertiser{}, err
	}
	now := s.clock.Now()
	adv := domain.Advertiser{
		ID:          uuid.New(),
		CompanyName: in.CompanyName,
		WebsiteURL:  in.WebsiteURL,
		OwnerUserID: in.OwnerUserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateAdvertiser(ctx, &adv); err != nil {
		return domain.Advertiser{}, err
	}
	if s.audit != nil {
		s.audit.EntityCreated(ctx, "advertiser", adv.ID)
	}
	return adv, nil
}

func (s *AdService) UpdateAdvertiser(ctx context.Context, id uuid.UUID, in UpdateAdvertiserInput, actorID uuid.UUID, role string) (domain.Advertiser, error) {
	if err := checkInput(in); err != nil {
		return domain.Advertiser{}, err
	}
	if err := s.requireAdminOrOwner(ctx, id, actorID, role); err != nil {
		return domain.Advertiser{}, err
	}
	adv, err := s.store.GetAdvertiser(ctx, id)
	if err != nil {
		return domain.Advertiser{}, err
	}
	adv.CompanyName = in.CompanyName
	adv.WebsiteURL = in.WebsiteURL
	adv.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateAdvertiser(ctx, &adv); err != nil {
		return domain.Advertiser{}, err
	}
	return adv, nil
}

func (s *AdService) GetAdvertiser(ctx context.Context, id uuid.UUID) (domain.Advertiser, error) {
	return s.store.GetAdvertiser(ctx, id)
}

func (s *AdService) CreateCategory(ctx context.Context, in CreateCategoryInput) (domain.Category, error) {
	if err := checkInput(in); err != nil {
		return domain.Category{}, err
	}
	cat := domain.Category{
		ID:          uuid.New(),
		Title:       in.Title,
		Slug:        in.Slug,
		Description: in.Description,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateCategory(ctx, &cat); err != nil {
		return domain.Category{}, err
	}
	if s.audit != nil {
		s.audit.EntityCreated(ctx, "category", cat.ID)
	}
	return cat, nil
}

func (s *AdService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateZone does not enforce slug uniqueness: duplicate zone slugs are
// permitted, zones are addressed by id.
func (s *AdService) CreateZone(ctx context.Context, in CreateZoneInput) (domain.Zone, error) {
	if err := checkInput(in); err != nil {
		return domain.Zone{}, err
	}
	zone := domain.Zone{
		ID:          uuid.New(),
		Title:       in.Title,
		Slug:        in.Slug,
		Description: in.Description,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateZone(ctx, &zone); err != nil {
		return domain.Zone{}, err
	}
	if s.audit != nil {
		s.audit.EntityCreated(ctx, "zone", zone.ID)
	}
	return zone, nil
}

func (s *AdService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	return s.store.ListZones(ctx)
}

func (s *AdService) CreateAd(ctx context.Context, in CreateAdInput, actorID uuid.UUID, role string) (domain.Ad, error) {
	if err := checkInput(in); err != nil {
		return domain.Ad{}, err
	}
	kind := domain.AdKind(in.Kind)
	if err := checkCreative(kind, in.Content, in.ImageKey); err != nil {
		return domain.Ad{}, err
	}
	if err := s.requireAdminOrOwner(ctx, in.AdvertiserID, actorID, role); err != nil {
		return domain.Ad{}, err
	}

	now := s.clock.Now()
	since := now
	if in.Since != nil {
		since = in.Since.UTC()
	}
	ad := domain.Ad{
		ID:           uuid.New(),
		Title:        in.Title,
		TargetURL:    in.TargetURL,
		Kind:         kind,
		Content:      in.Content,
		ImageKey:     in.ImageKey,
		Enabled:      in.Enabled,
		Since:        since,
		ExpiresOn:    in.ExpiresOn,
		AdvertiserID: in.AdvertiserID,
		CategoryID:   in.CategoryID,
		ZoneID:       in.ZoneID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAd(ctx, &ad); err != nil {
		return domain.Ad{}, err
	}
	s.invalidateZone(ctx, ad.ZoneID)
	if s.audit != nil {
		s.audit.EntityCreated(ctx, "ad", ad.ID)
	}
	return ad, nil
}

func (s *AdService) GetAd(ctx context.Context, id uuid.UUID) (domain.Ad, error) {
	return s.store.GetAd(ctx, id)
}

func (s *AdService) UpdateAd(ctx context.Context, id uuid.UUID, in UpdateAdInput, actorID uuid.UUID, role string) (domain.Ad, error) {
	if err := checkInput(in); err != nil {
		return domain.Ad{}, err
	}
	ad, err := s.store.GetAd(ctx, id)
	if err != nil {
		return domain.Ad{}, err
	}
	if err := checkCreative(ad.Kind, in.Content, in.ImageKey); err != nil {
		return domain.Ad{}, err
	}
	if err := s.requireAdminOrOwner(ctx, ad.AdvertiserID, actorID, role); err != nil {
		return domain.Ad{}, err
	}

	ad.Title = in.Title
	ad.TargetURL = in.TargetURL
	ad.Content = in.Content
	ad.ImageKey = in.ImageKey
	ad.Enabled = in.Enabled
	if in.Since != nil {
		ad.Since = in.Since.UTC()
	}
	ad.ExpiresOn = in.ExpiresOn
	ad.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateAd(ctx, &ad); err != nil {
		return domain.Ad{}, err
	}
	s.invalidateZone(ctx, ad.ZoneID)
	if s.audit != nil {
		s.audit.AdMutated(ctx, ad.ID, "updated", actorID)
	}
	return ad, nil
}

// SetAdEnabled flips the enabled bit; with ExtendAd this is how an expired
// ad re-enters Active.
func (s *AdService) SetAdEnabled(ctx context.Context, id uuid.UUID, enabled bool, actorID uuid.UUID, role string) error {
	ad, err := s.store.GetAd(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireAdminOrOwner(ctx, ad.AdvertiserID, actorID, role); err != nil {
		return err
	}
	if err := s.store.SetAdEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.invalidateZone(ctx, ad.ZoneID)
	if s.audit != nil {
		action := "disabled"
		if enabled {
			action = "enabled"
		}
		s.audit.AdMutated(ctx, id, action, actorID)
	}
	return nil
}

// ExtendAd moves (or clears) the expiry date.
func (s *AdService) ExtendAd(ctx context.Context, id uuid.UUID, expiresOn *time.Time, actorID uuid.UUID, role string) error {
	ad, err := s.store.GetAd(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireAdminOrOwner(ctx, ad.AdvertiserID, actorID, role); err != nil {
		return err
	}
	if err := s.store.ExtendAd(ctx, id, expiresOn); err != nil {
		return err
	}
	s.invalidateZone(ctx, ad.ZoneID)
	if s.audit != nil {
		s.audit.AdMutated(ctx, id, "extended", actorID)
	}
	return nil
}

func (s *AdService) ListAds(ctx context.Context, f domain.AdFilter, limit int, cursor *domain.KeysetCursor) ([]domain.Ad, *domain.KeysetCursor, error) {
	return s.store.ListAds(ctx, f, limit, cursor)
}

func (s *AdService) invalidateZone(ctx context.Context, zoneID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateZone(ctx, zoneID)
	}
}

// checkCreative enforces the per-kind payload: text ads need body text,
// banner ads need an uploaded image reference.
func checkCreative(kind domain.AdKind, content, imageKey string) error {
	switch kind {
	case domain.AdKindText:
		if strings.TrimSpace(content) == "" {
			return &domain.ValidationError{Field: "content", Reason: "is required for text ads"}
		}
	case domain.AdKindBanner:
		if strings.TrimSpace(imageKey) == "" {
			return &domain.ValidationError{Field: "image_key", Reason: "is required for banner ads"}
		}
	default:
		return &domain.ValidationError{Field: "kind", Reason: "must be one of: text banner"}
	}
	return nil
}
