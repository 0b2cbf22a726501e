package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// GenerateCodeVerifier returns a cryptographically-secure random string
// (code_verifier) conforming to RFC 7636 (length 43–128, unreserved chars).
func GenerateCodeVerifier() (string, error) {
	// 64 random bytes → 86-character base64url string (within 43–128)
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("pkce: failed to generate verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeChallenge returns the S256 code_challenge for the given verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge checks a presented verifier against the stored
// challenge using the stored method. Unknown methods never verify.
func VerifyCodeChallenge(verifier, challenge, method string) bool {
	switch method {
	case CodeChallengeMethodS256, "":
		computed := GenerateCodeChallenge(verifier)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
