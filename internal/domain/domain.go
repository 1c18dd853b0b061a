package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type AdKind string

const (
	AdKindText   AdKind = "text"
	AdKindBanner AdKind = "banner"
)

type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
)

var (
	ErrNoAdAvailable = errors.New("no eligible ad for zone") // expected on low-fill zones; caller renders an empty slot
	ErrUnknownAd     = errors.New("unknown ad")
	ErrNotFound      = errors.New("not found")
	ErrSlugTaken     = errors.New("slug already in use")
	ErrForbidden     = errors.New("forbidden")

	ErrCacheMiss = errors.New("cache miss")
)

// ValidationError rejects malformed input before it reaches persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + " " + e.Reason
}

type Advertiser struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"company_name"`
	WebsiteURL  string    `json:"website_url"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Category struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"` // unique
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Zone is a placement slot on a page. Slugs may repeat across zones;
// callers address zones by ID.
type Zone struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ad is the servable unit. Kind selects the creative payload: text ads
// carry Content, banner ads carry ImageKey (a stable media-store reference).
type Ad struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	TargetURL string    `json:"target_url"`
	Kind      AdKind    `json:"kind"`

	Content  string `json:"content,omitempty"`
	ImageKey string `json:"image_key,omitempty"`

	Enabled   bool       `json:"enabled"`
	Since     time.Time  `json:"since"`
	ExpiresOn *time.Time `json:"expires_on,omitempty"`

	AdvertiserID uuid.UUID `json:"advertiser_id"`
	CategoryID   uuid.UUID `json:"category_id"`
	ZoneID       uuid.UUID `json:"zone_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // set on every mutation
}

// TrackingEvent is one recorded impression or click. Append-only.
type TrackingEvent struct {
	ID         uuid.UUID `json:"id"`
	AdID       uuid.UUID `json:"ad_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	SourceIP   string    `json:"source_ip,omitempty"`
}

// AdFilter narrows ad queries. Nil fields match everything.
type AdFilter struct {
	ZoneID       *uuid.UUID
	CategoryID   *uuid.UUID
	AdvertiserID *uuid.UUID
	Enabled      *bool
}

type AdStats struct {
	AdID        uuid.UUID  `json:"ad_id"`
	Impressions int64      `json:"impressions"`
	Clicks      int64      `json:"clicks"`
	CTR         float64    `json:"ctr"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
}

type KeysetCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Store is the persistence collaborator. Implementations own transactional
// boundaries; none of the read methods mutate state.
type Store interface {
	CreateAdvertiser(ctx context.Context, a *Advertiser) error
	GetAdvertiser(ctx context.Context, id uuid.UUID) (Advertiser, error)
	UpdateAdvertiser(ctx context.Context, a *Advertiser) error
	GetAdvertiserOwner(ctx context.Context, advertiserID uuid.UUID) (uuid.UUID, error)

	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id uuid.UUID) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateZone(ctx context.Context, z *Zone) error
	GetZone(ctx context.Context, id uuid.UUID) (Zone, error)
	ListZones(ctx context.Context) ([]Zone, error)

	CreateAd(ctx context.Context, ad *Ad) error
	GetAd(ctx context.Context, id uuid.UUID) (Ad, error)
	UpdateAd(ctx context.Context, ad *Ad) error
	SetAdEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	ExtendAd(ctx context.Context, id uuid.UUID, expiresOn *time.Time) error
	FindAds(ctx context.Context, f AdFilter) ([]Ad, error)
	ListAds(ctx context.Context, f AdFilter, limit int, cursor *KeysetCursor) ([]Ad, *KeysetCursor, error)

	// Event log. RecordEvent appends exactly one row and returns ErrUnknownAd
	// when the referenced ad does not exist. CountEvents treats nil bounds as
	// unbounded on that side; both bounds are inclusive.
	RecordEvent(ctx context.Context, traceID string, ev *TrackingEvent) error
	CountEvents(ctx context.Context, adID uuid.UUID, typ EventType, from, to *time.Time) (int64, error)
}

// Cache holds the per-zone candidate set so the serve path can skip the DB
// on hot zones. Candidates are enabled ads only; eligibility is re-checked
// against the clock on every read, so staleness cannot serve an expired ad.
type Cache interface {
	GetZoneAds(ctx context.Context, zoneID uuid.UUID) ([]Ad, error)
	SetZoneAds(ctx context.Context, zoneID uuid.UUID, ads []Ad) error
	InvalidateZone(ctx context.Context, zoneID uuid.UUID) error
}
