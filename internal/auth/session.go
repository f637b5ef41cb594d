package auth

import (
	"context"
	"time"
)

// Session is the caller identity the dashboard passes to the download
// service client. It is created once per view and injected explicitly.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	IsAdmin   bool
	ExpiresAt time.Time
}

// NewSession decodes the display claims of token. The signature is not
// verified here.
func NewSession(token string) (*Session, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Token:    token,
		UserID:   claims.UserID,
		Username: claims.Username,
		IsAdmin:  claims.IsAdmin,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Expired reports whether the token's exp claim has passed. Tokens
// without exp never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authorization returns the header value for outbound requests.
func (s *Session) Authorization() string {
	if s == nil || s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
