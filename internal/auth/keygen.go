package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Admin tokens look like pnt_<id>_<secret>, both parts lower-case hex. The
// id is safe to log and identifies the token in audit lines.
const (
	tokenPrefix    = "pnt_"
	TokenIDLen     = 8
	TokenSecretLen = 32
)

var ErrInvalidTokenFormat = errors.New("invalid admin token format")

// GeneratedToken is a fresh admin token. Plaintext is shown once; Hash goes
// into ADMIN_TOKEN_HASH.
type GeneratedToken struct {
	Plaintext string
	Hash      string
	ID        string
}

func randomHex(n int) (string, error) {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateAdminToken creates a random token and its Argon2id hash.
func GenerateAdminToken() (*GeneratedToken, error) {
	id, err := randomHex(TokenIDLen)
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}
	secret, err := randomHex(TokenSecretLen)
	if err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}

	plaintext := tokenPrefix + id + "_" + secret
	hash, err := HashToken(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	return &GeneratedToken{Plaintext: plaintext, Hash: hash, ID: id}, nil
}

// ParseTokenID checks the token shape and returns its id.
func ParseTokenID(token string) (string, error) {
	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return "", ErrInvalidTokenFormat
	}
	id, secret, ok := strings.Cut(rest, "_")
	if !ok || len(id) != TokenIDLen || len(secret) != TokenSecretLen || !isLowerHex(id) || !isLowerHex(secret) {
		return "", ErrInvalidTokenFormat
	}
	return id, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
