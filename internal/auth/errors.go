package auth

import "errors"

var (
	// ErrUnauthorized means the request carried no bearer token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidRole covers a missing or unknown role claim.
	ErrInvalidRole = errors.New("auth: invalid role")
	// ErrMissingDonor is returned for viewer tokens without a donor_id claim.
	ErrMissingDonor = errors.New("auth: viewer token without donor_id")
	// ErrOwnerMismatch indicates the resource belongs to a different donor.
	ErrOwnerMismatch = errors.New("auth: owner mismatch")
)
