package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/go-oauth2/oauth2/v4"
)

// PkceVerifier checks a code_verifier against the challenge stored on a code (RFC 7636).
type PkceVerifier struct{}

// Verify reports whether verifier satisfies challenge under method. A code
// issued without a challenge always verifies. Unknown methods fail closed.
func (PkceVerifier) Verify(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}

	var computed string
	switch oauth2.CodeChallengeMethod(method) {
	case "", oauth2.CodeChallengePlain:
		computed = verifier
	case oauth2.CodeChallengeS256:
		computed = S256Challenge(verifier)
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// S256Challenge derives the S256 code_challenge for verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
