package domain_test

import (
	"testing"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestIsEligible(t *testing.T) {
	now := ts("2020-01-15T12:00:00Z")

	tests := []struct {
		name     string
		ad       domain.Ad
		now      time.Time
		expected bool
	}{
		{
			"Enabled and inside window",
			domain.Ad{Enabled: true, Since: ts("2020-01-01T00:00:00Z"), ExpiresOn: tsp("2020-02-01T00:00:00Z")},
			now, true,
		},
		{
			"Disabled regardless of dates",
			domain.Ad{Enabled: false, Since: ts("2020-01-01T00:00:00Z"), ExpiresOn: tsp("2020-02-01T00:00:00Z")},
			now, false,
		},
		{
			"Disabled with no expiry",
			domain.Ad{Enabled: false, Since: ts("2019-01-01T00:00:00Z")},
			now, false,
		},
		{
			"Expired even though enabled",
			domain.Ad{Enabled: true, Since: ts("2020-01-01T00:00:00Z"), ExpiresOn: tsp("2020-02-01T00:00:00Z")},
			ts("2020-03-01T00:00:00Z"), false,
		},
		{
			"Expiry instant itself is ineligible",
			domain.Ad{Enabled: true, Since: ts("2020-01-01T00:00:00Z"), ExpiresOn: tsp("2020-01-15T12:00:00Z")},
			now, false,
		},
		{
			"Future-dated start not yet active",
			domain.Ad{Enabled: true, Since: ts("2020-02-01T00:00:00Z")},
			now, false,
		},
		{
			"Start instant itself is eligible",
			domain.Ad{Enabled: true, Since: ts("2020-01-15T12:00:00Z")},
			now, true,
		},
		{
			"No expiry runs forever",
			domain.Ad{Enabled: true, Since: ts("2010-01-01T00:00:00Z")},
			ts("2030-01-01T00:00:00Z"), true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.IsEligible(tt.ad, tt.now))
		})
	}
}

// Re-enabling an expired ad with a pushed-out expiry starts a new active
// period; no explicit state write is needed for Active->Expired.
func TestIsEligible_Lifecycle(t *testing.T) {
	ad := domain.Ad{
		Enabled:   true,
		Since:     ts("2020-01-01T00:00:00Z"),
		ExpiresOn: tsp("2020-02-01T00:00:00Z"),
	}

	assert.True(t, domain.IsEligible(ad, ts("2020-01-15T00:00:00Z")))
	assert.False(t, domain.IsEligible(ad, ts("2020-03-01T00:00:00Z")))

	ad.ExpiresOn = tsp("2020-06-01T00:00:00Z")
	assert.True(t, domain.IsEligible(ad, ts("2020-03-01T00:00:00Z")))
}
