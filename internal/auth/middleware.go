package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserContext identifies the caller of an authenticated request.
type UserContext struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

// BearerToken extracts the token from an Authorization header. A bare token
// without the Bearer prefix is accepted as well.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		header = strings.TrimSpace(parts[1])
	}
	if header == "" {
		return "", ErrMissingToken
	}
	return header, nil
}

// Middleware rejects requests without a valid token. Failures use the
// {"message": ...} body the download service contract specifies.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthorized(w, "Token is missing!")
				return
			}

			claims, err := issuer.ValidateToken(tokenString)
			if err != nil {
				writeUnauthorized(w, "Token is invalid!")
				return
			}

			userCtx := &UserContext{
				UserID:   claims.UserID,
				Username: claims.Username,
				IsAdmin:  claims.IsAdmin,
			}

			ctx := context.WithValue(r.Context(), UserContextKey, userCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func GetUserFromContext(ctx context.Context) *UserContext {
	user, ok := ctx.Value(UserContextKey).(*UserContext)
	if !ok {
		return nil
	}
	return user
}
