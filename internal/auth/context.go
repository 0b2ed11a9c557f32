package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxEmail
	ctxSuperAdmin
)

func WithIdentity(ctx context.Context, userID, email string, superAdmin bool) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxEmail, email)
	ctx = context.WithValue(ctx, ctxSuperAdmin, superAdmin)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func Email(ctx context.Context) (string, error) {
	v := ctx.Value(ctxEmail)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("email not in context")
}

func IsSuperAdmin(ctx context.Context) bool {
	v := ctx.Value(ctxSuperAdmin)
	b, ok := v.(bool)
	return ok && b
}
