package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/adserve/adzone/internal/security"
	"github.com/adserve/adzone/internal/service"
	"github.com/adserve/adzone/internal/transport/rest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory domain.Store for end-to-end handler tests.
type memStore struct {
	mu          sync.Mutex
	advertisers map[uuid.UUID]domain.Advertiser
	categories  map[uuid.UUID]domain.Category
	zones       map[uuid.UUID]domain.Zone
	ads         map[uuid.UUID]domain.Ad
	events      []domain.TrackingEvent
}

func newMemStore() *memStore {
	return &memStore{
		advertisers: map[uuid.UUID]domain.Advertiser{},
		categories:  map[uuid.UUID]domain.Category{},
		zones:       map[uuid.UUID]domain.Zone{},
		ads:         map[uuid.UUID]domain.Ad{},
	}
}

func (s *memStore) CreateAdvertiser(_ context.Context, a *domain.Advertiser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertisers[a.ID] = *a
	return nil
}

func (s *memStore) GetAdvertiser(_ context.Context, id uuid.UUID) (domain.Advertiser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.advertisers[id]
	if !ok {
		return domain.Advertiser{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memStore) UpdateAdvertiser(_ context.Context, a *domain.Advertiser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.advertisers[a.ID]; !ok {
		return domain.ErrNotFound
	}
	s.advertisers[a.ID] = *a
	return nil
}

func (s *memStore) GetAdvertiserOwner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.advertisers[id]
	if !ok {
		return uuid.UUID{}, domain.ErrNotFound
	}
	return a.OwnerUserID, nil
}

func (s *memStore) CreateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Slug == c.Slug {
			return domain.ErrSlugTaken
		}
	}
	s.categories[c.ID] = *c
	return nil
}

func (s *memStore) GetCategory(_ context.Context, id uuid.UUID) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *memStore) CreateZone(_ context.Context, z *domain.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[z.ID] = *z
	return nil
}

func (s *memStore) GetZone(_ context.Context, id uuid.UUID) (domain.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[id]
	if !ok {
		return domain.Zone{}, domain.ErrNotFound
	}
	return z, nil
}

func (s *memStore) ListZones(_ context.Context) ([]domain.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	return out, nil
}

func (s *memStore) CreateAd(_ context.Context, ad *domain.Ad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads[ad.ID] = *ad
	return nil
}

func (s *memStore) GetAd(_ context.Context, id uuid.UUID) (domain.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[id]
	if !ok {
		return domain.Ad{}, domain.ErrNotFound
	}
	return ad, nil
}

func (s *memStore) UpdateAd(_ context.Context, ad *domain.Ad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ads[ad.ID]; !ok {
		return domain.ErrNotFound
	}
	s.ads[ad.ID] = *ad
	return nil
}

func (s *memStore) SetAdEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[id]
	if !ok {
		return domain.ErrNotFound
	}
	ad.Enabled = enabled
	s.ads[id] = ad
	return nil
}

func (s *memStore) ExtendAd(_ context.Context, id uuid.UUID, expiresOn *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[id]
	if !ok {
		return domain.ErrNotFound
	}
	ad.ExpiresOn = expiresOn
	s.ads[id] = ad
	return nil
}

func matches(ad domain.Ad, f domain.AdFilter) bool {
	if f.ZoneID != nil && ad.ZoneID != *f.ZoneID {
		return false
	}
	if f.CategoryID != nil && ad.CategoryID != *f.CategoryID {
		return false
	}
	if f.AdvertiserID != nil && ad.AdvertiserID != *f.AdvertiserID {
		return false
	}
	if f.Enabled != nil && ad.Enabled != *f.Enabled {
		return false
	}
	return true
}

func (s *memStore) FindAds(_ context.Context, f domain.AdFilter) ([]domain.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ad
	for _, ad := range s.ads {
		if matches(ad, f) {
			out = append(out, ad)
		}
	}
	return out, nil
}

func (s *memStore) ListAds(_ context.Context, f domain.AdFilter, limit int, cursor *domain.KeysetCursor) ([]domain.Ad, *domain.KeysetCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Ad
	for _, ad := range s.ads {
		if matches(ad, f) {
			all = append(all, ad)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})
	if cursor != nil {
		trimmed := all[:0]
		for _, ad := range all {
			if ad.CreatedAt.Before(cursor.CreatedAt) ||
				(ad.CreatedAt.Equal(cursor.CreatedAt) && ad.ID.String() < cursor.ID.String()) {
				trimmed = append(trimmed, ad)
			}
		}
		all = trimmed
	}
	if limit <= 0 {
		limit = 20
	}
	var next *domain.KeysetCursor
	if len(all) > limit {
		last := all[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		all = all[:limit]
	}
	return all, next, nil
}

func (s *memStore) RecordEvent(_ context.Context, _ string, ev *domain.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ads[ev.AdID]; !ok {
		return domain.ErrUnknownAd
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *memStore) CountEvents(_ context.Context, adID uuid.UUID, typ domain.EventType, from, to *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ev := range s.events {
		if ev.AdID != adID || ev.Type != typ {
			continue
		}
		if from != nil && ev.OccurredAt.Before(*from) {
			continue
		}
		if to != nil && ev.OccurredAt.After(*to) {
			continue
		}
		n++
	}
	return n, nil
}

const testSecret = "test-secret"

type env struct {
	store  *memStore
	server *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := newMemStore()
	svc := service.NewAdService(store, nil, nil, nil)
	handler := rest.NewHandler(svc, nil)
	router := rest.NewRouter(rest.RouterDeps{
		Handler:   handler,
		Verifier:  security.NewHS256Verifier(testSecret, ""),
		RateLimit: 10000,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &env{store: store, server: srv}
}

func adminToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *env) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	var envlp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envlp))
	require.NoError(t, json.Unmarshal(envlp.Data, out))
}

// seed creates advertiser, category, zone and one enabled ad through the API.
func seed(t *testing.T, e *env, token string) (advertiserID, categoryID, zoneID, adID uuid.UUID) {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/v1/advertisers", token, map[string]any{
		"company_name": "Acme", "website_url": "https://acme.example",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var adv domain.Advertiser
	decodeData(t, resp, &adv)

	resp = e.do(t, http.MethodPost, "/api/v1/categories", token, map[string]any{
		"title": "Tech", "slug": "tech",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cat domain.Category
	decodeData(t, resp, &cat)

	resp = e.do(t, http.MethodPost, "/api/v1/zones", token, map[string]any{
		"title": "Sidebar", "slug": "sidebar",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var zone domain.Zone
	decodeData(t, resp, &zone)

	resp = e.do(t, http.MethodPost, "/api/v1/ads", token, map[string]any{
		"title": "Spring Sale", "target_url": "https://acme.example/sale",
		"kind": "text", "content": "50% off", "enabled": true,
		"advertiser_id": adv.ID.String(),
		"category_id":   cat.ID.String(),
		"zone_id":       zone.ID.String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ad domain.Ad
	decodeData(t, resp, &ad)

	return adv.ID, cat.ID, zone.ID, ad.ID
}

func TestServe_ReturnsAd(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, zoneID, adID := seed(t, e, token)

	resp := e.do(t, http.MethodGet, "/api/v1/zones/"+zoneID.String()+"/ad", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ad domain.Ad
	decodeData(t, resp, &ad)
	assert.Equal(t, adID, ad.ID)
}

func TestServe_EmptyZoneIs204(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/v1/zones/"+uuid.NewString()+"/ad", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServe_CategoryMismatchIs204(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, zoneID, _ := seed(t, e, token)

	resp := e.do(t, http.MethodGet, "/api/v1/zones/"+zoneID.String()+"/ad?category="+uuid.NewString(), "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServe_BadZoneIDIs400(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/v1/zones/not-a-uuid/ad", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrack_ImpressionAndStats(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, _, adID := seed(t, e, token)

	for i := 0; i < 3; i++ {
		resp := e.do(t, http.MethodPost, "/api/v1/ads/"+adID.String()+"/impressions", "", nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		var body map[string]string
		decodeData(t, resp, &body)
		assert.NotEmpty(t, body["event_id"])
	}
	resp := e.do(t, http.MethodPost, "/api/v1/ads/"+adID.String()+"/clicks", "", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/v1/ads/"+adID.String()+"/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.AdStats
	decodeData(t, resp, &stats)
	assert.EqualValues(t, 3, stats.Impressions)
	assert.EqualValues(t, 1, stats.Clicks)
	assert.InDelta(t, 1.0/3.0, stats.CTR, 1e-9)
}

func TestTrack_UnknownAdIs404(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/v1/ads/"+uuid.NewString()+"/impressions", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrack_ExplicitTimestampWindowing(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, _, adID := seed(t, e, token)

	resp := e.do(t, http.MethodPost, "/api/v1/ads/"+adID.String()+"/impressions", "", map[string]any{
		"timestamp": "2026-01-15T10:00:00Z",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// window covering the event, bounds inclusive
	resp = e.do(t, http.MethodGet,
		"/api/v1/ads/"+adID.String()+"/stats?from=2026-01-15T10:00:00Z&to=2026-01-15T10:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats domain.AdStats
	decodeData(t, resp, &stats)
	assert.EqualValues(t, 1, stats.Impressions)

	// disjoint window
	resp = e.do(t, http.MethodGet,
		"/api/v1/ads/"+adID.String()+"/stats?from=2026-02-01T00:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &stats)
	assert.EqualValues(t, 0, stats.Impressions)
}

func TestAdmin_RequiresAuth(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/v1/zones", "", map[string]any{"title": "Z", "slug": "z"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2 := e.do(t, http.MethodPost, "/api/v1/zones", "garbage-token", map[string]any{"title": "Z", "slug": "z"})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAdmin_CategorySlugConflictIs409(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")

	resp := e.do(t, http.MethodPost, "/api/v1/categories", token, map[string]any{"title": "A", "slug": "dup"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/v1/categories", token, map[string]any{"title": "B", "slug": "dup"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdmin_ValidationErrorIs400(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")

	resp := e.do(t, http.MethodPost, "/api/v1/categories", token, map[string]any{
		"title": "Bad", "slug": "Not A Slug!",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_OwnershipEnforced(t *testing.T) {
	e := newEnv(t)
	admin := adminToken(t, uuid.New(), "admin")
	advertiserID, categoryID, zoneID, _ := seed(t, e, admin)

	stranger := adminToken(t, uuid.New(), "advertiser")
	resp := e.do(t, http.MethodPost, "/api/v1/ads", stranger, map[string]any{
		"title": "Sneaky", "target_url": "https://x.example", "kind": "text", "content": "c",
		"advertiser_id": advertiserID.String(),
		"category_id":   categoryID.String(),
		"zone_id":       zoneID.String(),
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdmin_DisableRemovesFromServe(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, zoneID, adID := seed(t, e, token)

	resp := e.do(t, http.MethodPut, "/api/v1/ads/"+adID.String()+"/enabled", token, map[string]any{
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/v1/zones/"+zoneID.String()+"/ad", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdmin_ListAdsPagination(t *testing.T) {
	e := newEnv(t)
	token := adminToken(t, uuid.New(), "admin")
	_, _, _, _ = seed(t, e, token)

	resp := e.do(t, http.MethodGet, "/api/v1/ads?limit=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Items      []domain.Ad `json:"items"`
		NextCursor string      `json:"next_cursor"`
	}
	decodeData(t, resp, &body)
	assert.Len(t, body.Items, 1)

	resp = e.do(t, http.MethodGet, "/api/v1/ads?cursor=not-a-cursor!", token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
