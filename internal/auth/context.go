package auth

import (
	"context"

	"projectflow/backend/pkg/models"
)

type userKey struct{}

// WithUser returns a copy of ctx carrying the acting user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the acting user stored by RequireAuth.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey{}).(*models.User)
	return u, ok && u != nil
}

// ActorID returns the acting user's ID, or nil for anonymous calls.
func ActorID(ctx context.Context) *int64 {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil
	}
	id := u.ID
	return &id
}
