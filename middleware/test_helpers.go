package middleware

import "context"

// SetRequestIDForTest injects a request ID into the context, bypassing the HTTP middleware.
func SetRequestIDForTest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

// SetScopesForTest injects granted scopes into the context, bypassing token parsing.
func SetScopesForTest(ctx context.Context, scopes ...string) context.Context {
	return context.WithValue(ctx, ctxKeyScopes{}, scopes)
}

// SetGroupForTest injects an X-group routing value into the context.
func SetGroupForTest(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, ctxKeyGroup{}, group)
}
