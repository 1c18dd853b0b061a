package security

import "time"

// TokenClaims carries the identity the management API acts on. Role is
// "admin" for operators or "advertiser" for self-service accounts; an
// advertiser token only reaches its own entities.
type TokenClaims struct {
	UserID  string
	Role    string
	Exp     time.Time
	Issuer  string
	Subject string
}
