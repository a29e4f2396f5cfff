package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/model"
	"autotask/internal/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(PathFor(t.TempDir(), "yyg"), "yyg")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newStore(t)
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsertRoundTripKeepsOtherAccounts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	at := time.Date(2025, 6, 11, 9, 10, 0, 0, time.UTC)

	alice := model.CookieCredential("wordpress_logged_in=a; PHPSESSID=1", at)
	bob := model.TokenCredential("tok-bob", at)
	require.NoError(t, s.Upsert(ctx, "alice", alice))
	require.NoError(t, s.Upsert(ctx, "bob", bob))

	newer := model.CookieCredential("wordpress_logged_in=b", at.Add(time.Hour))
	require.NoError(t, s.Upsert(ctx, "alice", newer))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got["alice"])
	assert.Equal(t, bob, got["bob"])
}

func TestUpsertRoundTripKeepsWallClockTime(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	want := model.TokenCredential("tok", time.Now())

	require.NoError(t, s.Upsert(ctx, "alice", want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got["alice"])
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Remove(ctx, "ghost"))

	at := time.Date(2025, 6, 11, 9, 10, 0, 0, time.UTC)
	require.NoError(t, s.Upsert(ctx, "a", model.TokenCredential("1", at)))
	require.NoError(t, s.Upsert(ctx, "b", model.TokenCredential("2", at)))
	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "a"))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "b")
}

func TestCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sijishe_credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s := New(path, "sijishe")

	got, err := s.Load(ctx)
	require.ErrorIs(t, err, store.ErrCorrupt)
	assert.Empty(t, got)

	require.NoError(t, s.Upsert(ctx, "me", model.CookieCredential("a=1", time.Now())))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileLayout(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	s.SetHost("yyg.app")
	require.NoError(t, s.Upsert(ctx, "a", model.TokenCredential("1", time.Now())))

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"site": "yyg"`)
	assert.Contains(t, text, `"host": "yyg.app"`)
	assert.Contains(t, text, `"update_time"`)
	_, err = os.Stat(s.path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
