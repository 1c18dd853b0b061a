package security

import "errors"

// Verification failures stay coarse on purpose: the transport maps both to
// 401 without telling the caller which check failed.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)
