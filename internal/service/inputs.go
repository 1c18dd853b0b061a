package service

import (
	"time"

	"github.com/google/uuid"
)

type CreateAdvertiserInput struct {
	CompanyName string    `validate:"required,max=255"`
	WebsiteURL  string    `validate:"required,url"`
	OwnerUserID uuid.UUID `validate:"required"`
}

// UpdateAdvertiserInput covers the only mutable advertiser fields.
type UpdateAdvertiserInput struct {
	CompanyName string `validate:"required,max=255"`
	WebsiteURL  string `validate:"required,url"`
}

type CreateCategoryInput struct {
	Title       string `validate:"required,max=255"`
	Slug        string `validate:"required,slug,max=255"`
	Description string
}

type CreateZoneInput struct {
	Title       string `validate:"required,max=255"`
	Slug        string `validate:"required,slug,max=255"`
	Description string
}

type CreateAdInput struct {
	Title     string `validate:"required,max=255"`
	TargetURL string `validate:"required,url"`
	Kind      string `validate:"required,oneof=text banner"`

	// Content for text ads, ImageKey for banner ads; cross-checked in
	// CreateAd since validator tags cannot express the either/or.
	Content  string
	ImageKey string

	Enabled   bool
	Since     *time.Time // nil = active immediately
	ExpiresOn *time.Time

	AdvertiserID uuid.UUID `validate:"required"`
	CategoryID   uuid.UUID `validate:"required"`
	ZoneID       uuid.UUID `validate:"required"`
}

type UpdateAdInput struct {
	Title     string `validate:"required,max=255"`
	TargetURL string `validate:"required,url"`
	Content   string
	ImageKey  string
	Enabled   bool
	Since     *time.Time
	ExpiresOn *time.Time
}
