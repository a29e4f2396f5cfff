package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/config"
	"autotask/internal/model"
	"autotask/internal/store/jsonfile"
)

func mockConfig(t *testing.T, yml string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yml), func(string) string { return "" })
	require.NoError(t, err)
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

const sitesYAML = `
sites:
  sijishe:
    baseURL: http://127.0.0.1:1/sijishe
    accounts: "a@mail.test&pw"
  yyg:
    baseURL: http://127.0.0.1:1/yyg
    accounts: "alice&pw\nauth=1; wordpress_logged_in_x=2"
  wxpay:
    baseURL: http://127.0.0.1:1/wxpay
    accounts: "wxid_1@wxid_2"
`

func TestBuildProfiles(t *testing.T) {
	cfg := mockConfig(t, sitesYAML)
	profiles, err := BuildProfiles(context.Background(), cfg, BuildDeps{})
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	assert.Equal(t, []string{SiteSijishe, SiteYyg, SiteWxpay}, []string{profiles[0].Site, profiles[1].Site, profiles[2].Site})
	assert.Len(t, profiles[0].Tasks, 1)
	assert.Len(t, profiles[1].Tasks, 3)
	assert.Len(t, profiles[2].Tasks, 2)

	yyg := profiles[1]
	require.Len(t, yyg.Accounts, 2)
	assert.Regexp(t, `^cookie-[0-9a-f]{12}$`, yyg.Accounts[1].ID)
	assert.NotEmpty(t, yyg.Accounts[1].Cookie)

	wx := profiles[2]
	assert.Equal(t, []model.Account{{ID: "wxid_1"}, {ID: "wxid_2"}}, wx.Accounts)
	sess, err := wx.NewSession(wx.Accounts[0])
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1/wxpay", sess.BaseURL())

	js, ok := yyg.Store.(*jsonfile.Store)
	require.True(t, ok)
	require.NoError(t, js.Upsert(context.Background(), "alice", model.CookieCredential("a=1", time.Now())))
	assert.FileExists(t, filepath.Join(cfg.Storage.Dir, "yyg_credentials.json"))
}

func TestBuildProfilesOnlyAndEmpty(t *testing.T) {
	cfg := mockConfig(t, sitesYAML)
	profiles, err := BuildProfiles(context.Background(), cfg, BuildDeps{Only: SiteWxpay})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, SiteWxpay, profiles[0].Site)

	empty := mockConfig(t, "sites:\n  sijishe:\n    baseURL: http://127.0.0.1:1\n  yyg:\n    disabled: true\n    accounts: x&y\n")
	_, err = BuildProfiles(context.Background(), empty, BuildDeps{})
	assert.ErrorIs(t, err, config.ErrNoAccounts)
}
