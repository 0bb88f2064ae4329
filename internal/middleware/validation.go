package middleware

import (
	"errors"
	"math"
	"strconv"
	"unicode/utf8"
)

const (
	MaxSearchLength  = 200
	MaxResourceLimit = 1000
	maxIdentifierLen = 64
)

var (
	ErrInvalidIdentifier = errors.New("identifier must be 1-64 letters, digits, '-', '_' or '.'")
	ErrSearchTooLong     = errors.New("search term exceeds maximum length")
	ErrInvalidLimit      = errors.New("limit must be a positive integer")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

// isIdentifier accepts 1-64 characters from [A-Za-z0-9._-]. Such values are
// safe inside Redis keys and log lines.
func isIdentifier(s string) bool {
	if s == "" || len(s) > maxIdentifierLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// ValidateIdentifier checks a location id, resource id or rate limit client
// taken from the URL path.
func ValidateIdentifier(id string) error {
	if !isIdentifier(id) {
		return ErrInvalidIdentifier
	}
	return nil
}

func ValidateSearch(search string) error {
	if utf8.RuneCountInString(search) > MaxSearchLength {
		return ErrSearchTooLong
	}
	return nil
}

// ParseLimit parses an optional page size. Empty yields def and values above
// MaxResourceLimit are clamped.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLimit
	}
	return min(n, MaxResourceLimit), nil
}

// ParseCoordinate parses a latitude when isLat is set, a longitude otherwise.
func ParseCoordinate(raw string, isLat bool) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, ErrInvalidCoordinate
	}
	bound := 180.0
	if isLat {
		bound = 90
	}
	if math.Abs(v) > bound {
		return 0, ErrInvalidCoordinate
	}
	return v, nil
}
