package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/windgrid/windgrid/internal/api/models"
	"github.com/windgrid/windgrid/internal/auth"
)

type subjectKey struct{}

// TokenAuthorizer validates a bearer token against a required scope.
type TokenAuthorizer interface {
	Authorize(token, scope string) (*auth.Claims, error)
}

// RequireScope creates middleware that accepts only bearer tokens granting scope.
// The token subject is stored in the request context.
func RequireScope(tokens TokenAuthorizer, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w, r, "missing or malformed bearer token")
				return
			}

			claims, err := tokens.Authorize(token, scope)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "token has expired")
				case errors.Is(err, auth.ErrMissingScope):
					problem := models.NewForbidden(GetRequestID(r.Context()), "token lacks scope "+scope)
					problem.Instance = r.URL.Path
					problem.Write(w)
				default:
					writeUnauthorized(w, r, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme is
// case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeUnauthorized writes a 401 problem. The response package imports this one, so the
// problem is written directly.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="windgrid"`)
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSubject returns the authenticated token subject, or "" for anonymous requests.
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey{}).(string); ok {
		return sub
	}
	return ""
}
