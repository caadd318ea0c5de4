package identity

import "errors"

// Token errors.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrMissingSubject      = errors.New("token has no subject")
	ErrMissingOrganization = errors.New("token has no organization")
)
