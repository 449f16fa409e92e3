package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Invitation tokens are hex or base64url, never padded.
var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{16,256}$`)

// BCP 47 language with optional region, e.g. en, de-AT.
var localeRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2})?$`)

var countryRe = regexp.MustCompile(`^[A-Z]{2}$`)

var positionRe = regexp.MustCompile(`^[A-Z0-9_]{1,32}$`)

func IsValidToken(token string) bool {
	return tokenRe.MatchString(token)
}

func IsValidLocale(locale string) bool {
	return localeRe.MatchString(locale)
}

// IsValidCountry accepts ISO 3166-1 alpha-2 codes; empty is allowed.
func IsValidCountry(country string) bool {
	return country == "" || countryRe.MatchString(country)
}

// IsValidPositionCode accepts upper-case position codes; empty is allowed.
func IsValidPositionCode(code string) bool {
	return code == "" || positionRe.MatchString(code)
}

// ParseID parses a uuid, rejecting the nil uuid.
func ParseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
