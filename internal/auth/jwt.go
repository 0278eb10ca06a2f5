package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the service reads. Viewer tokens are scoped to
// DonorID; operator and admin tokens may leave it empty.
type Claims struct {
	DonorID string `json:"donor_id,omitempty"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT verifies an HS256 token against secret and checks its role claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidToken)
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return nil, ErrInvalidRole
	}
	claims.Role = string(role)
	if role == RoleViewer && claims.DonorID == "" {
		return nil, ErrMissingDonor
	}
	return claims, nil
}
