package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces the role policy. The
// resolved identity is stored in the request context.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies the middleware to next. A nil middleware passes through.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, protected := m.Policy.RequiredRole(r)
		if m.Policy.IsExempt(r) || !protected {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(bearerToken(r), m.Secret)
		if err != nil {
			msg := "unauthorized"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token expired"
			}
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
		role := Role(claims.Role)
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), claims.DonorID, role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
