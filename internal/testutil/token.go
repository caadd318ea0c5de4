package testutil

import (
	"testing"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/identity"
)

// TestJWTSecret is the signing secret integration tests configure.
const TestJWTSecret = "integration-test-secret"

// MintToken issues a one-hour bearer token for caller signed with TestJWTSecret.
func MintToken(t *testing.T, caller domain.Caller) string {
	t.Helper()

	verifier, err := identity.NewVerifier(identity.Config{Secret: TestJWTSecret})
	if err != nil {
		t.Fatalf("create verifier: %v", err)
	}
	token, err := verifier.Mint(caller, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
