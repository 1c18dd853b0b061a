package rest

import (
	"context"

	"github.com/google/uuid"
)

type ctxKeyUserID struct{}
type ctxKeyRole struct{}

// AuthContext is the verified identity behind a management request.
type AuthContext struct {
	UserID uuid.UUID
	Role   string
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID{}, a.UserID)
	ctx = context.WithValue(ctx, ctxKeyRole{}, a.Role)
	return ctx
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	uid, ok := ctx.Value(ctxKeyUserID{}).(uuid.UUID)
	if !ok {
		return AuthContext{}, false
	}
	role, _ := ctx.Value(ctxKeyRole{}).(string)
	return AuthContext{UserID: uid, Role: role}, true
}
