package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gather/internal/adapters/auth"
	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/orch"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
)

type stubStore struct {
	spaces   map[domain.SpaceID]*domain.Space
	accounts map[domain.UserID]*domain.Account
}

func (s *stubStore) GetSpace(_ context.Context, id domain.SpaceID) (*domain.Space, error) {
	if sp, ok := s.spaces[id]; ok {
		return sp, nil
	}
	return nil, app.ErrNotFound
}

func (s *stubStore) GetAccount(_ context.Context, uid domain.UserID) (*domain.Account, error) {
	if a, ok := s.accounts[uid]; ok {
		return a, nil
	}
	return nil, app.ErrNotFound
}

func (s *stubStore) UpdateSkin(context.Context, domain.UserID, string) error { return nil }

type harness struct {
	orch     *orch.Orchestrator
	ctl      *SignalWSController
	verifier *auth.JWTVerifier
	server   *httptest.Server
	cancel   context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &stubStore{
		spaces: map[domain.SpaceID]*domain.Space{
			"s1": {ID: "s1", OwnerID: "owner", Map: domain.MapData{Rooms: []domain.Room{{Name: "lobby"}}}},
		},
		accounts: map[domain.UserID]*domain.Account{
			"owner": {ID: "owner", Username: "Owner", Skin: "001"},
		},
	}
	o := orch.New(app.NewRegistry(), store, store)
	v := auth.NewJWTVerifier("test-secret")
	ctl := NewSignalWSController(o, v, store, Options{PingPeriod: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		ctl.Wait()
		o.Close()
	})
	return &harness{orch: o, ctl: ctl, verifier: v, server: srv, cancel: cancel}
}

func (h *harness) url(query string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/ws/signal?" + query
}

func (h *harness) token(t *testing.T, uid domain.UserID) string {
	t.Helper()
	tok, err := h.verifier.Issue(uid, time.Hour)
	require.NoError(t, err)
	return tok
}

func readUntil(t *testing.T, ws *websocket.Conn, eventType string) core.RawEnvelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		env, err := core.DecodeEnvelope(data)
		require.NoError(t, err)
		if env.Type == eventType {
			return env
		}
	}
}

func TestHandshakeRejectsBeforeUpgrade(t *testing.T) {
	h := newHarness(t)
	strangerToken := h.token(t, "stranger")
	ownerToken := h.token(t, "owner")

	tests := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{name: "no credential", query: "uid=owner", status: http.StatusUnauthorized},
		{name: "no uid", query: "access_token=" + ownerToken, status: http.StatusUnauthorized},
		{name: "bad token", query: "uid=owner&access_token=garbage", status: http.StatusUnauthorized},
		{name: "token of someone else", query: "uid=owner&access_token=" + strangerToken, status: http.StatusForbidden},
		{name: "no account", query: "uid=stranger", header: http.Header{"Authorization": {"Bearer " + strangerToken}}, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, resp, err := websocket.DefaultDialer.Dial(h.url(tt.query), tt.header)
			if ws != nil {
				ws.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestJoinOverWebsocket(t *testing.T) {
	h := newHarness(t)
	header := http.Header{"Authorization": {"Bearer " + h.token(t, "owner")}}
	ws, _, err := websocket.DefaultDialer.Dial(h.url("uid=owner"), header)
	require.NoError(t, err)

	// Malformed events are dropped without closing the connection.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"movePlayer","data":{"x":"far"}}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"joinRealm","data":{"spaceId":"s1"}}`)))

	env := readUntil(t, ws, core.EventJoinedRealm)
	assert.Contains(t, string(env.Data), `"uid":"owner"`)
	assert.Equal(t, 1, h.orch.Registry.PlayerCount())

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return h.orch.Registry.PlayerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok := h.orch.Registry.GetSession("s1")
	assert.True(t, ok)
}

func TestWaitDrainsOpenConnections(t *testing.T) {
	h := newHarness(t)
	header := http.Header{"Authorization": {"Bearer " + h.token(t, "owner")}}
	ws, _, err := websocket.DefaultDialer.Dial(h.url("uid=owner"), header)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"joinRealm","data":{"spaceId":"s1"}}`)))
	readUntil(t, ws, core.EventJoinedRealm)

	h.cancel()
	h.ctl.Wait()
	assert.Equal(t, 0, h.orch.Registry.PlayerCount(), "disconnect must be reported before Wait returns")

	_, resp, err := websocket.DefaultDialer.Dial(h.url("uid=owner"), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
