package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/adserve/adzone/internal/media"
	"github.com/adserve/adzone/internal/service"
	"github.com/adserve/adzone/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

// CreativePresigner issues direct-to-storage upload URLs for banner images.
type CreativePresigner interface {
	PresignCreativeUpload(ctx context.Context, advertiserID uuid.UUID, contentType string) (media.UploadTicket, error)
}

// ---- Advertisers ----

func (h *Handler) CreateAdvertiser(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		CompanyName string `json:"company_name"`
		WebsiteURL  string `json:"website_url"`
		OwnerUserID string `json:"owner_user_id"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	// advertisers default to self-owned; only admins assign other owners
	owner := auth.UserID
	if strings.TrimSpace(req.OwnerUserID) != "" {
		id, err := uuid.Parse(req.OwnerUserID)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid owner_user_id", nil)
			return
		}
		if id != auth.UserID && !strings.EqualFold(auth.Role, "admin") {
			fail(w, r, http.StatusForbidden, "auth.forbidden", "cannot assign another owner", nil)
			return
		}
		owner = id
	}

	adv, err := h.svc.CreateAdvertiser(r.Context(), service.CreateAdvertiserInput{
		CompanyName: req.CompanyName,
		WebsiteURL:  req.WebsiteURL,
		OwnerUserID: owner,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, adv)
}

func (h *Handler) GetAdvertiser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "advertiserID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid advertiserID", nil)
		return
	}
	adv, err := h.svc.GetAdvertiser(r.Context(), id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, adv)
}

func (h *Handler) UpdateAdvertiser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "advertiserID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid advertiserID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		CompanyName string `json:"company_name"`
		WebsiteURL  string `json:"website_url"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	adv, err := h.svc.UpdateAdvertiser(r.Context(), id, service.UpdateAdvertiserInput{
		CompanyName: req.CompanyName,
		WebsiteURL:  req.WebsiteURL,
	}, auth.UserID, auth.Role)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, adv)
}

// ---- Categories / Zones ----

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	cat, err := h.svc.CreateCategory(r.Context(), service.CreateCategoryInput{
		Title: req.Title, Slug: req.Slug, Description: req.Description,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, cat)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{"items": cats})
}

func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	zone, err := h.svc.CreateZone(r.Context(), service.CreateZoneInput{
		Title: req.Title, Slug: req.Slug, Description: req.Description,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, zone)
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.svc.ListZones(r.Context())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{"items": zones})
}

// ---- Ads ----

type adRequest struct {
	Title     string  `json:"title"`
	TargetURL string  `json:"target_url"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	ImageKey  string  `json:"image_key"`
	Enabled   bool    `json:"enabled"`
	Since     *string `json:"since"`      // RFC3339 optional
	ExpiresOn *string `json:"expires_on"` // RFC3339 optional

	AdvertiserID string `json:"advertiser_id"`
	CategoryID   string `json:"category_id"`
	ZoneID       string `json:"zone_id"`
}

func parseOptionalTime(s *string) (*time.Time, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*s))
	if err != nil {
		return nil, false
	}
	tt := t.UTC()
	return &tt, true
}

func (h *Handler) CreateAd(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req adRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	advertiserID, err := uuid.Parse(req.AdvertiserID)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid advertiser_id", nil)
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid category_id", nil)
		return
	}
	zoneID, err := uuid.Parse(req.ZoneID)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid zone_id", nil)
		return
	}
	since, ok2 := parseOptionalTime(req.Since)
	if !ok2 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid since", nil)
		return
	}
	expiresOn, ok2 := parseOptionalTime(req.ExpiresOn)
	if !ok2 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid expires_on", nil)
		return
	}

	ad, err := h.svc.CreateAd(r.Context(), service.CreateAdInput{
		Title:        req.Title,
		TargetURL:    req.TargetURL,
		Kind:         req.Kind,
		Content:      req.Content,
		ImageKey:     req.ImageKey,
		Enabled:      req.Enabled,
		Since:        since,
		ExpiresOn:    expiresOn,
		AdvertiserID: advertiserID,
		CategoryID:   categoryID,
		ZoneID:       zoneID,
	}, auth.UserID, auth.Role)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, ad)
}

func (h *Handler) GetAd(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", nil)
		return
	}
	ad, err := h.svc.GetAd(r.Context(), id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, ad)
}

func (h *Handler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req adRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	since, ok2 := parseOptionalTime(req.Since)
	if !ok2 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid since", nil)
		return
	}
	expiresOn, ok2 := parseOptionalTime(req.ExpiresOn)
	if !ok2 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid expires_on", nil)
		return
	}

	ad, err := h.svc.UpdateAd(r.Context(), id, service.UpdateAdInput{
		Title:     req.Title,
		TargetURL: req.TargetURL,
		Content:   req.Content,
		ImageKey:  req.ImageKey,
		Enabled:   req.Enabled,
		Since:     since,
		ExpiresOn: expiresOn,
	}, auth.UserID, auth.Role)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, ad)
}

func (h *Handler) SetAdEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	if err := h.svc.SetAdEnabled(r.Context(), id, req.Enabled, auth.UserID, auth.Role); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *Handler) ExtendAd(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		ExpiresOn *string `json:"expires_on"` // null clears the expiry
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	expiresOn, ok2 := parseOptionalTime(req.ExpiresOn)
	if !ok2 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid expires_on", nil)
		return
	}

	if err := h.svc.ExtendAd(r.Context(), id, expiresOn, auth.UserID, auth.Role); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{"expires_on": expiresOn})
}

func (h *Handler) ListAds(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	var f domain.AdFilter
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("zone")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid zone", nil)
			return
		}
		f.ZoneID = &id
	}
	if s := strings.TrimSpace(q.Get("category")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid category", nil)
			return
		}
		f.CategoryID = &id
	}
	if s := strings.TrimSpace(q.Get("advertiser")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid advertiser", nil)
			return
		}
		f.AdvertiserID = &id
	}
	if s := strings.TrimSpace(q.Get("enabled")); s != "" {
		v := strings.EqualFold(s, "true") || s == "1"
		f.Enabled = &v
	}

	items, next, err := h.svc.ListAds(r.Context(), f, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       items,
		"next_cursor": encodeCursor(next),
	})
}

// ---- Stats ----

func (h *Handler) AdStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "adID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid adID", nil)
		return
	}
	from, to, err := parseWindow(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid from/to", nil)
		return
	}

	stats, err := h.svc.Stats(r.Context(), id, from, to)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, stats)
}

// ---- Creative uploads ----

func (h *Handler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		fail(w, r, http.StatusNotImplemented, "uploads.disabled", "creative uploads are not configured", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		AdvertiserID string `json:"advertiser_id"`
		ContentType  string `json:"content_type"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	advertiserID, err := uuid.Parse(req.AdvertiserID)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid advertiser_id", nil)
		return
	}
	// advertisers upload only into their own prefix
	if !strings.EqualFold(auth.Role, "admin") {
		adv, err := h.svc.GetAdvertiser(r.Context(), advertiserID)
		if err != nil {
			handleErr(w, r, err)
			return
		}
		if adv.OwnerUserID != auth.UserID {
			fail(w, r, http.StatusForbidden, "auth.forbidden", "not the advertiser owner", nil)
			return
		}
	}

	ticket, err := h.uploads.PresignCreativeUpload(r.Context(), advertiserID, req.ContentType)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedContentType) {
			fail(w, r, http.StatusBadRequest, "creative.unsupported_type", err.Error(), nil)
			return
		}
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, ticket)
}
