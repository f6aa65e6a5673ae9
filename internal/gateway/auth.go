package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the authenticated identity carried through a request.
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// UserID is the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

type claimsCtxKey struct{}

// ClaimsFromContext retrieves auth claims, or nil on unauthenticated
// requests.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*Claims)
	return claims
}

// ContextWithClaims attaches claims. Primarily for tests.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// Authenticator validates bearer tokens and signs new ones.
type Authenticator struct {
	secret   []byte
	tokenDur time.Duration
}

// NewAuthenticator creates an HS256 token authority with the given
// signing secret.
func NewAuthenticator(secret string, tokenDur time.Duration) *Authenticator {
	if tokenDur <= 0 {
		tokenDur = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), tokenDur: tokenDur}
}

// Sign issues a token for userID.
func (a *Authenticator) Sign(userID string, admin bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenDur)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate parses and verifies a token.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := a.Validate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin rejects authenticated requests whose claims are not admin.
// Must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || !claims.Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
