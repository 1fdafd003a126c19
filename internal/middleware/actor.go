package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// actorClaims are the claims the actor middleware reads. Authentication
// proper lives outside this service; the middleware only lifts the subject
// out of an already-issued token for audit attribution.
type actorClaims struct {
	jwt.RegisteredClaims
}

// Actor returns a middleware that extracts the actor identity from an
// optional Authorization bearer token. A missing, malformed, or unverifiable
// token just means the request proceeds anonymously; mutations do not
// require an identity, audit entries simply record a nil user.
func Actor(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" || secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := &actorClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid || claims.Subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := SetActorID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
