// Package auth hashes, generates and carries the admin bearer token.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash means ADMIN_TOKEN_HASH is not an argon2id PHC string.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion means the hash was produced by another argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// argonParams are the cost settings stored inside every hash.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// defaultParams follow the OWASP argon2id baseline.
var defaultParams = argonParams{memory: 64 * 1024, time: 3, threads: 4, keyLen: 32}

const saltLen = 16

// phcHash is a decoded "$argon2id$v=19$m=...,t=...,p=...$salt$key" string.
type phcHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func parsePHC(encoded string) (phcHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phcHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	if version != argon2.Version {
		return phcHash{}, ErrIncompatibleVersion
	}

	var h phcHash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.params.memory, &h.params.time, &h.params.threads); err != nil {
		return phcHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return phcHash{}, ErrInvalidHash
	}
	h.params.keyLen = uint32(len(h.key))
	return h, nil
}

func derive(token string, salt []byte, p argonParams) []byte {
	return argon2.IDKey([]byte(token), salt, p.time, p.memory, p.threads, p.keyLen)
}

// HashToken returns the argon2id PHC string for token, suitable for
// ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h := phcHash{params: defaultParams, salt: salt, key: derive(token, salt, defaultParams)}
	return h.String(), nil
}

// VerifyToken reports whether token matches encodedHash. The cost
// parameters come from the hash, so older hashes keep verifying after
// defaultParams change.
func VerifyToken(token, encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := derive(token, h.salt, h.params)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// QuickHash is a 32 hex character SHA-256 prefix used to remember verified
// tokens in memory. Never store it.
func QuickHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
