package docquiz

import "context"

// UserResolver supplies the authenticated user for a request. ok is
// false when no user is authenticated; core operations that need a
// user then fail with ErrUnauthorized.
type UserResolver interface {
	CurrentUser(ctx context.Context) (userID string, ok bool)
}

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user id. The
// HTTP middleware and the CLI both feed identity through here.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext extracts the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userContextKey{}).(string)
	return userID, ok && userID != ""
}

// ContextResolver resolves the user from the request context.
type ContextResolver struct{}

// CurrentUser implements UserResolver.
func (ContextResolver) CurrentUser(ctx context.Context) (string, bool) {
	return UserFromContext(ctx)
}
