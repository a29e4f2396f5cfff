package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCookieString(t *testing.T) {
	cookies := ParseCookieString(" auth=abc==; sid = 42 ;broken; =empty")
	require.Len(t, cookies, 2)
	assert.Equal(t, Cookie{Name: "auth", Value: "abc=="}, cookies[0])
	assert.Equal(t, Cookie{Name: "sid", Value: "42"}, cookies[1])
}

func TestFormatCookieString(t *testing.T) {
	got := FormatCookieString([]Cookie{{Name: "a", Value: "1"}, {Name: ""}, {Name: "b", Value: "2"}})
	assert.Equal(t, "a=1; b=2", got)
	assert.Equal(t, got, FormatCookieString(ParseCookieString(got)))
}

func TestCredentialEmpty(t *testing.T) {
	assert.True(t, Credential{Kind: CredentialToken}.Empty())
	assert.False(t, Credential{Kind: CredentialToken, Token: "x"}.Empty())
	assert.True(t, Credential{Kind: CredentialCookie, Token: "x"}.Empty())
	assert.False(t, Credential{Cookies: "a=1"}.Empty())
}

func TestStoredTime(t *testing.T) {
	at := time.Date(2025, 8, 21, 19, 10, 0, 490103818, time.FixedZone("CST", 8*3600))
	got := StoredTime(at)
	assert.Equal(t, time.Date(2025, 8, 21, 11, 10, 0, 490000000, time.UTC), got)
	assert.True(t, StoredTime(time.Time{}).IsZero())
	assert.Equal(t, got, CookieCredential("a=1", at).UpdatedAt)
}
