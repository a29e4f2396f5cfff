package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/model"
)

func TestParseIDSecretPairs(t *testing.T) {
	got := Parse("a&1\nb&2", ParseOptions{Separators: []string{"\n"}})
	assert.Equal(t, []model.Account{{ID: "a", Secret: "1"}, {ID: "b", Secret: "2"}}, got)
}

func TestParseFirstPresentSeparatorWins(t *testing.T) {
	got := Parse("wxid_a@wxid_b@wxid_c", ParseOptions{Separators: []string{"\n", "@"}})
	require.Len(t, got, 3)
	assert.Equal(t, "wxid_c", got[2].ID)

	got = Parse("x@y\nz", ParseOptions{Separators: []string{"\n", "@"}})
	require.Len(t, got, 2)
	assert.Equal(t, "x@y", got[0].ID)
}

func TestParseKeyValueAndBlankLines(t *testing.T) {
	got := Parse("\n wxid=abc \n\nplain\n", ParseOptions{})
	assert.Equal(t, []model.Account{{ID: "abc"}, {ID: "plain"}}, got)
}

func TestParseBareCookie(t *testing.T) {
	got := Parse("me@qq.com&pw\nauth=xyz; sid=1", ParseOptions{BareIsCookie: true})
	require.Len(t, got, 2)
	assert.Equal(t, model.Account{ID: "me@qq.com", Secret: "pw"}, got[0])
	assert.Equal(t, CookieID("auth=xyz; sid=1"), got[1].ID)
	assert.Equal(t, "auth=xyz; sid=1", got[1].Cookie)
	assert.Empty(t, got[1].Secret)
}

func TestCookieIDIgnoresOrder(t *testing.T) {
	first := Parse("auth=xyz; sid=1\nauth=abc; sid=2", ParseOptions{BareIsCookie: true})
	swapped := Parse("auth=abc; sid=2\nauth=xyz; sid=1", ParseOptions{BareIsCookie: true})
	require.Len(t, first, 2)
	require.Len(t, swapped, 2)
	assert.Equal(t, first[0].ID, swapped[1].ID)
	assert.Equal(t, first[1].ID, swapped[0].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.Regexp(t, `^cookie-[0-9a-f]{12}$`, first[0].ID)

	assert.Equal(t, CookieID("auth=xyz; sid=1"), CookieID(" auth=xyz ;sid=1 "))
	assert.Equal(t, "cookie-alice", CookieID("PHPSESSID=9; wordpress_logged_in_3f2a=alice%7C1760000000%7Ctok%7Chmac"))
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse("  \n ", ParseOptions{}))
}
