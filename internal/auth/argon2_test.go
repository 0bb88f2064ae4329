package auth

import (
	"errors"
	"strings"
	"testing"
)

const sampleToken = "pnt_1a2b3c4d_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

func TestHashTokenPHC(t *testing.T) {
	t.Parallel()

	encoded, err := HashToken(sampleToken)
	if err != nil {
		t.Fatalf("HashToken() error = %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=3,p=4$") {
		t.Errorf("HashToken() = %q, want argon2id PHC string with default params", encoded)
	}

	h, err := parsePHC(encoded)
	if err != nil {
		t.Fatalf("parsePHC() error = %v", err)
	}
	if len(h.salt) != saltLen || len(h.key) != int(defaultParams.keyLen) {
		t.Errorf("salt/key lengths = %d/%d, want %d/%d", len(h.salt), len(h.key), saltLen, defaultParams.keyLen)
	}
	if h.String() != encoded {
		t.Errorf("String() = %q, want %q", h.String(), encoded)
	}
}

func TestHashTokenSalted(t *testing.T) {
	t.Parallel()

	a, _ := HashToken(sampleToken)
	b, _ := HashToken(sampleToken)
	if a == b {
		t.Fatal("two hashes of one token are identical; salt is not random")
	}
	for _, h := range []string{a, b} {
		if ok, err := VerifyToken(sampleToken, h); err != nil || !ok {
			t.Errorf("VerifyToken(%q) = %v, %v; want true", h, ok, err)
		}
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	encoded, err := HashToken(sampleToken)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"same token", sampleToken, true},
		{"other secret", "pnt_1a2b3c4d_00000000000000000000000000000000", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := VerifyToken(tt.token, encoded)
			if err != nil {
				t.Fatalf("VerifyToken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyTokenUsesStoredParams(t *testing.T) {
	t.Parallel()

	// Cheap parameters, as an operator might have chosen for an older hash.
	p := argonParams{memory: 8 * 1024, time: 1, threads: 1, keyLen: 16}
	salt := []byte("0123456789abcdef")
	encoded := phcHash{params: p, salt: salt, key: derive(sampleToken, salt, p)}.String()

	ok, err := VerifyToken(sampleToken, encoded)
	if err != nil || !ok {
		t.Errorf("VerifyToken() = %v, %v; want true", ok, err)
	}
}

func TestVerifyTokenBadHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
		want error
	}{
		{"empty", "", ErrInvalidHash},
		{"plain text", "not-a-hash", ErrInvalidHash},
		{"bcrypt", "$2b$10$abcdefghijklmnopqrstuv", ErrInvalidHash},
		{"argon2i", "$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$a2V5", ErrInvalidHash},
		{"truncated", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"bad params", "$argon2id$v=19$m=x,t=3,p=4$c2FsdA$a2V5", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!$a2V5", ErrInvalidHash},
		{"empty key", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$", ErrInvalidHash},
		{"old version", "$argon2id$v=16$m=65536,t=3,p=4$c2FsdA$a2V5", ErrIncompatibleVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := VerifyToken(sampleToken, tt.hash)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifyToken() error = %v, want %v", err, tt.want)
			}
			if ok {
				t.Error("VerifyToken() = true for a malformed hash")
			}
		})
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	for _, in := range []string{sampleToken, "abc", "", strings.Repeat("x", 1000)} {
		got := QuickHash(in)
		if len(got) != 32 {
			t.Errorf("QuickHash(%.10q) has %d chars, want 32", in, len(got))
		}
		if got != QuickHash(in) {
			t.Errorf("QuickHash(%.10q) is not deterministic", in)
		}
	}
	if QuickHash("a") == QuickHash("b") {
		t.Error("QuickHash collides on distinct inputs")
	}
}
