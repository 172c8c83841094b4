// Package identity binds the calling principal to a request context.
package identity

import (
	"context"

	"datahub/internal/apperr"
	"datahub/internal/model"
)

// Principal: аутентифицированный пользователь текущего запроса.
type Principal struct {
	ID       int64
	Username string
	Role     model.Role
	Enabled  bool
}

func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

type ctxKey struct{}

// With возвращает контекст с привязанным principal.
func With(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Current возвращает principal запроса или UNAUTHENTICATED.
func Current(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok {
		return Principal{}, apperr.Unauthenticated("", "authentication required")
	}
	return p, nil
}

// FromUser строит principal по записи пользователя.
func FromUser(u *model.User) Principal {
	return Principal{ID: u.ID, Username: u.Username, Role: u.Role, Enabled: u.Enabled}
}
