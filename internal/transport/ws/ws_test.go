package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/match"
	"github.com/ChuechTeam/CardLab-sub000/internal/scripting"
)

type harness struct {
	srv    *Server
	http   *httptest.Server
	mgr    *match.Manager
	cancel context.CancelFunc
}

func newHarness(t *testing.T, cfg config.WebSocketConfig) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cards, err := cardpack.Load(filepath.Join("..", "..", "..", "packs"))
	require.NoError(t, err)
	settings := duel.DefaultSettings()
	settings.SecondsPerTurn = 0

	mgr := match.NewManager(match.Options{
		Config: config.MatchConfig{
			JoinTokenTTL:   time.Minute,
			EndedRetention: time.Minute,
			DefaultDeck:    "starter",
		},
		Settings:  settings,
		Cards:     cards,
		Scripts:   scripting.NewRegistry(logger),
		TokenCost: bcrypt.MinCost,
	}, logger)

	srv := NewServer(cfg, mgr, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		cancel()
		hs.Close()
		mgr.CloseAll()
	})
	return &harness{srv: srv, http: hs, mgr: mgr, cancel: cancel}
}

func (h *harness) wsURL(matchID, token string) string {
	q := url.Values{"match": {matchID}, "token": {token}}
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/duel/ws?" + q.Encode()
}

func (h *harness) dial(t *testing.T, matchID, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(matchID, token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Type   string          `json:"type"`
	Player int             `json:"player"`
	Status json.RawMessage `json:"status"`
}

// readUntil reads messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == typ {
			return env
		}
	}
}

func TestServer_JoinRejected(t *testing.T) {
	h := newHarness(t, config.WebSocketConfig{})
	mt, _, err := h.mgr.CreateMatch(match.CreateRequest{PlayerNames: [2]string{"a", "b"}})
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(mt.ID, "wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.wsURL("missing", "wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Duel(t *testing.T) {
	h := newHarness(t, config.WebSocketConfig{})
	mt, tokens, err := h.mgr.CreateMatch(match.CreateRequest{PlayerNames: [2]string{"alice", "bob"}})
	require.NoError(t, err)

	c1 := h.dial(t, mt.ID, tokens[0])
	c2 := h.dial(t, mt.ID, tokens[1])

	w1 := readUntil(t, c1, "duelWelcome")
	w2 := readUntil(t, c2, "duelWelcome")
	assert.Equal(t, 0, w1.Player)
	assert.Equal(t, 1, w2.Player)

	ready := []byte(`{"type":"duelReportReady","header":{"requestId":1,"iteration":0}}`)
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, ready))
	require.NoError(t, c2.WriteMessage(websocket.TextMessage, ready))

	readUntil(t, c1, "duelStatusChanged")
	readUntil(t, c2, "duelMutated")

	resp, err := http.Get(h.http.URL + "/matches/" + mt.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var view matchView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "IN_PROGRESS", view.State)
	assert.Equal(t, [2]bool{true, true}, view.Connected)
	assert.Equal(t, 2, h.srv.Clients())

	// garbage is ignored, the connection stays up
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))

	require.NoError(t, c1.Close())
	assert.Eventually(t, func() bool {
		return !mt.Snapshot().Connected[duel.P1]
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return h.srv.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	// reconnecting with the same token works
	c1 = h.dial(t, mt.ID, tokens[0])
	readUntil(t, c1, "duelWelcome")
}

func TestServer_ShutdownClosesClients(t *testing.T) {
	h := newHarness(t, config.WebSocketConfig{})
	mt, tokens, err := h.mgr.CreateMatch(match.CreateRequest{})
	require.NoError(t, err)

	conn := h.dial(t, mt.ID, tokens[0])
	readUntil(t, conn, "duelWelcome")

	h.cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return h.srv.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_CheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://duel.example/duel/ws", nil)

	s := &Server{}
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "http://duel.example")
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, s.checkOrigin(req))

	s.cfg.AllowedOrigins = []string{"http://evil.example"}
	assert.True(t, s.checkOrigin(req))
	s.cfg.AllowedOrigins = []string{"http://other.example"}
	assert.False(t, s.checkOrigin(req))
	s.cfg.AllowedOrigins = []string{"*"}
	assert.True(t, s.checkOrigin(req))
}

func TestServer_Healthz(t *testing.T) {
	h := newHarness(t, config.WebSocketConfig{})
	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
