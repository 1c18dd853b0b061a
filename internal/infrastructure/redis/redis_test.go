package redis

import (
	"context"
	"testing"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, time.Minute), mr
}

func sampleAds(zoneID uuid.UUID) []domain.Ad {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Ad{
		{
			ID: uuid.New(), Title: "Spring Sale", TargetURL: "https://acme.example/sale",
			Kind: domain.AdKindText, Content: "50% off", Enabled: true,
			Since: now.Add(-time.Hour), ZoneID: zoneID,
			AdvertiserID: uuid.New(), CategoryID: uuid.New(),
			CreatedAt: now, UpdatedAt: now,
		},
	}
}

func TestCache_MissThenHit(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	zoneID := uuid.New()

	_, err := cache.GetZoneAds(ctx, zoneID)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	want := sampleAds(zoneID)
	require.NoError(t, cache.SetZoneAds(ctx, zoneID, want))

	got, err := cache.GetZoneAds(ctx, zoneID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, want[0].Title, got[0].Title)
	assert.True(t, got[0].Since.Equal(want[0].Since))
}

func TestCache_Invalidate(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	zoneID := uuid.New()

	require.NoError(t, cache.SetZoneAds(ctx, zoneID, sampleAds(zoneID)))
	require.NoError(t, cache.InvalidateZone(ctx, zoneID))

	_, err := cache.GetZoneAds(ctx, zoneID)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()
	zoneID := uuid.New()

	require.NoError(t, cache.SetZoneAds(ctx, zoneID, sampleAds(zoneID)))

	mr.FastForward(2 * time.Minute)

	_, err := cache.GetZoneAds(ctx, zoneID)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()
	zoneID := uuid.New()

	require.NoError(t, mr.Set("zone:ads:"+zoneID.String(), "{not json"))

	_, err := cache.GetZoneAds(ctx, zoneID)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	// the bad entry was dropped
	assert.False(t, mr.Exists("zone:ads:"+zoneID.String()))
}

func TestCache_EmptyCandidateSetIsCacheable(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	zoneID := uuid.New()

	require.NoError(t, cache.SetZoneAds(ctx, zoneID, []domain.Ad{}))

	got, err := cache.GetZoneAds(ctx, zoneID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
