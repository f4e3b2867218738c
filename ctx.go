package trust

import "context"

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"auth_request_session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the AuthRequestSession in the given context
func WithSessionContext(r context.Context, session *AuthRequestSession) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext extracts the AuthRequestSession from the context
func SessionFromContext(ctx context.Context) (*AuthRequestSession, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*AuthRequestSession)
	return raw, ok
}
