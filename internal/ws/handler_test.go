package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/logbus"
)

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	return websocket.DefaultDialer.Dial(u, header)
}

func TestReplaysBufferThenStreams(t *testing.T) {
	bus := logbus.New(10)
	bus.Log("info", "before", nil)
	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	conn, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "before", msg["data"].(map[string]any)["msg"])

	bus.Log("warn", "after", nil)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "after", msg["data"].(map[string]any)["msg"])
}

func TestTypesFilter(t *testing.T) {
	bus := logbus.New(10)
	bus.Log("info", "noise", nil)
	bus.Publish("run_state", map[string]any{"running": true})
	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	conn, _, err := dial(t, srv, "?types=run_state", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run_state", msg["type"])
}

func TestRejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(NewHandler(logbus.New(10), []string{"http://panel.local"}))
	defer srv.Close()

	_, resp, err := dial(t, srv, "", http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "", http.Header{"Origin": {"http://panel.local"}})
	require.NoError(t, err)
	conn.Close()
}
