// Package identity verifies bearer tokens issued by an external identity
// provider and turns them into a domain.Caller.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultOrganizationClaim is the claim carrying the caller's organization.
const DefaultOrganizationClaim = "org_id"

// Config contains token verification settings.
type Config struct {
	Secret            string
	Issuer            string
	Audience          string
	OrganizationClaim string
}

// Verifier validates HS256 tokens.
type Verifier struct {
	config Config
	key    []byte
	opts   []jwt.ParserOption
	now    func() time.Time
}

// NewVerifier creates a token verifier.
func NewVerifier(config Config) (*Verifier, error) {
	if config.Secret == "" {
		return nil, errors.New("identity: jwt secret is required")
	}
	if config.OrganizationClaim == "" {
		config.OrganizationClaim = DefaultOrganizationClaim
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &Verifier{
		config: config,
		key:    []byte(config.Secret),
		opts:   opts,
		now:    time.Now,
	}, nil
}

// ValidateToken implements httputil.TokenValidator.
func (v *Verifier) ValidateToken(_ context.Context, token string) (domain.Caller, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, append(v.opts, jwt.WithTimeFunc(v.now))...)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return domain.Caller{}, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Caller{}, ErrMissingSubject
	}

	organizationID, _ := claims[v.config.OrganizationClaim].(string)
	if organizationID == "" {
		return domain.Caller{}, ErrMissingOrganization
	}

	return domain.Caller{UserID: subject, OrganizationID: organizationID}, nil
}

// Mint issues a token for caller valid for ttl. It is meant for operators
// and tests; production tokens come from the identity provider.
func (v *Verifier) Mint(caller domain.Caller, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub": caller.UserID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	claims[v.config.OrganizationClaim] = caller.OrganizationID
	if v.config.Issuer != "" {
		claims["iss"] = v.config.Issuer
	}
	if v.config.Audience != "" {
		claims["aud"] = v.config.Audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
