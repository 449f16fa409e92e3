package validation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsValidToken(t *testing.T) {
	assert.True(t, IsValidToken("3f1c0a9be2d84f7f9a6c1b2e3d4f5a6b"))
	assert.False(t, IsValidToken("short"))
	assert.False(t, IsValidToken("has spaces in it, not a token at all"))
	assert.False(t, IsValidToken(""))
}

func TestIsValidLocale(t *testing.T) {
	for _, ok := range []string{"en", "de", "de-AT", "fil"} {
		assert.True(t, IsValidLocale(ok), ok)
	}
	for _, bad := range []string{"", "EN", "english", "de_AT"} {
		assert.False(t, IsValidLocale(bad), bad)
	}
}

func TestCountryAndPosition(t *testing.T) {
	assert.True(t, IsValidCountry(""))
	assert.True(t, IsValidCountry("DE"))
	assert.False(t, IsValidCountry("deu"))
	assert.True(t, IsValidPositionCode("DRIVER"))
	assert.False(t, IsValidPositionCode("driver"))
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, ok := ParseID(" " + id.String() + " ")
	assert.True(t, ok)
	assert.Equal(t, id, got)
	_, ok = ParseID(uuid.Nil.String())
	assert.False(t, ok)
	_, ok = ParseID("nope")
	assert.False(t, ok)
}
