package domain

import "time"

// IsEligible reports whether ad may be served at instant now.
//
// All three must hold:
//   - the ad is enabled
//   - its start date has been reached (since may be future-dated to stage
//     an ad that is not yet active)
//   - it has not expired (a nil expires_on never expires)
//
// Pure function of its inputs; callers thread the clock explicitly so the
// predicate is testable with synthetic times.
func IsEligible(ad Ad, now time.Time) bool {
	if !ad.Enabled {
		return false
	}
	if ad.Since.After(now) {
		return false
	}
	if ad.ExpiresOn != nil && !ad.ExpiresOn.After(now) {
		return false
	}
	return true
}
