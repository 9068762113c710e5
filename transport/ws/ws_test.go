package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGate/presence"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *Server, *presence.Registry) {
	t.Helper()
	reg := presence.NewRegistry()
	srv, err := NewServer(reg, cfg)
	require.NoError(t, err)

	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Serve(w, r, Identity{
			PrincipalID: r.URL.Query().Get("principalId"),
			Label:       r.URL.Query().Get("label"),
		})
	}))
	t.Cleanup(func() {
		srv.CloseAll()
		hs.Close()
	})
	return hs, srv, reg
}

func dial(t *testing.T, hs *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?" + query
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wireFrame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestConnectBroadcastsPresence(t *testing.T) {
	hs, _, reg := newTestServer(t, Config{})
	alice := dial(t, hs, "principalId=alice&label=Alice", nil)

	f := readFrame(t, alice)
	assert.Equal(t, presence.EventPresence, f.Event)
	var views []presence.View
	require.NoError(t, json.Unmarshal(f.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "alice", views[0].ID)
	assert.Equal(t, "Alice", views[0].Label)

	anon := dial(t, hs, "", nil)
	readFrame(t, anon)

	f = readFrame(t, alice)
	require.NoError(t, json.Unmarshal(f.Data, &views))
	assert.Len(t, views, 2)
	assert.Equal(t, 2, reg.Count())
}

func TestPeerCloseDisconnects(t *testing.T) {
	hs, srv, reg := newTestServer(t, Config{})
	observer := dial(t, hs, "principalId=bob", nil)
	readFrame(t, observer)

	alice := dial(t, hs, "principalId=alice", nil)
	readFrame(t, alice)
	readFrame(t, observer)
	require.Len(t, reg.ChannelsFor("alice"), 1)

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = alice.Close()

	f := readFrame(t, observer)
	var views []presence.View
	require.NoError(t, json.Unmarshal(f.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "bob", views[0].ID)
	assert.Empty(t, reg.ChannelsFor("alice"))
	require.Eventually(t, func() bool { return srv.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	hs, _, _ := newTestServer(t, Config{})
	c := dial(t, hs, "principalId=alice", nil)
	readFrame(t, c)

	require.NoError(t, c.WriteJSON(map[string]string{"event": "ping"}))
	assert.Equal(t, "pong", readFrame(t, c).Event)
}

func TestCustomHandlerReceivesData(t *testing.T) {
	hs, srv, _ := newTestServer(t, Config{})
	got := make(chan Inbound, 1)
	srv.HandleFunc(func(_ *Conn, in Inbound) { got <- in })

	c := dial(t, hs, "", nil)
	readFrame(t, c)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{"room":3}}`)))

	select {
	case in := <-got:
		assert.Equal(t, "typing", in.Event)
		assert.JSONEq(t, `{"room":3}`, string(in.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestInboundRateLimitCloses(t *testing.T) {
	hs, _, reg := newTestServer(t, Config{InboundRate: 0.001, InboundBurst: 2})
	c := dial(t, hs, "principalId=alice", nil)
	readFrame(t, c)

	for range 3 {
		require.NoError(t, c.WriteJSON(map[string]string{"event": "noise"}))
	}
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, _, err = c.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	require.Eventually(t, func() bool { return reg.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	hs, _, _ := newTestServer(t, Config{AllowedOrigins: []string{"https://ops.example"}})
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	c := dial(t, hs, "", http.Header{"Origin": {"https://OPS.example"}})
	assert.Equal(t, presence.EventPresence, readFrame(t, c).Event)
}

func TestCloseAllDisconnects(t *testing.T) {
	hs, srv, reg := newTestServer(t, Config{})
	c := dial(t, hs, "principalId=alice", nil)
	readFrame(t, c)

	srv.CloseAll()
	assert.Equal(t, 0, reg.Count(), "Close removes the connection before returning")

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSendQueue(t *testing.T) {
	c := &Conn{id: "q", send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, c.Send("a", 1))
	assert.ErrorIs(t, c.Send("b", 2), ErrQueueFull)
	assert.JSONEq(t, `{"event":"a","data":1}`, string(<-c.send))

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send("c", 3), ErrClosed)
	assert.Error(t, c.Send("d", func() {}))
}

func TestSendRawPayloadIsNotReencoded(t *testing.T) {
	c := &Conn{id: "raw", send: make(chan []byte, 2), done: make(chan struct{})}
	raw := json.RawMessage(`[{"id":"alice","label":"Alice","since":"2026-03-02T09:00:01Z"}]`)

	require.NoError(t, c.Send(presence.EventPresence, raw))
	assert.Equal(t, `{"event":"presence","data":`+string(raw)+`}`, string(<-c.send))

	want, err := json.Marshal(Frame{Event: presence.EventPresence, Data: []presence.View{{
		ID:    "alice",
		Label: "Alice",
		Since: time.Date(2026, 3, 2, 9, 0, 1, 0, time.UTC),
	}}})
	require.NoError(t, err)
	require.NoError(t, c.Send(presence.EventPresence, raw))
	assert.JSONEq(t, string(want), string(<-c.send))
}

func TestParseInbound(t *testing.T) {
	_, ok := parseInbound([]byte(`{"event":""}`))
	assert.False(t, ok)
	_, ok = parseInbound([]byte(`{"event":7}`))
	assert.False(t, ok)
	in, ok := parseInbound([]byte(`{"event":"ping"}`))
	require.True(t, ok)
	assert.Nil(t, in.Data)
}
