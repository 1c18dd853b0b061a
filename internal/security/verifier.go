package security

// AccessTokenVerifier checks bearer tokens presented to the management API.
// Serve and tracking endpoints are public and never consult it.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (TokenClaims, error)
}
