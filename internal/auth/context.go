package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxIdentity ctxKey = iota

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, ctxIdentity, identity)
}

func Identity(ctx context.Context) (string, error) {
	v := ctx.Value(ctxIdentity)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("identity not in context")
}
