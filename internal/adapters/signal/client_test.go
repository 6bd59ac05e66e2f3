package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	srv      *httptest.Server
	clientID chan string
	received chan []byte
	push     chan string
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	r := &relay{
		clientID: make(chan string, 1),
		received: make(chan []byte, 8),
		push:     make(chan string, 8),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.clientID <- req.URL.Query().Get("clientId")
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		go func() {
			for frame := range r.push {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			r.received <- data
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

func TestClient_SendAndReceive(t *testing.T) {
	r := newRelay(t)
	cl := NewClient(Options{URL: r.url(), ClientID: "me", PingPeriod: time.Second})

	conn, msgs, err := cl.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "me", <-r.clientID)

	require.NoError(t, conn.Send(domain.NewAnnounce("me")))
	select {
	case data := <-r.received:
		assert.JSONEq(t, `{"type":"peer-announce","clientId":"me"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("relay got nothing")
	}

	r.push <- `not json`
	r.push <- `{"type":"mesh-offer","sdp":{"type":"offer","sdp":"v=0"},"fromPeerId":"p","toPeerId":"me"}`
	select {
	case m := <-msgs:
		assert.Equal(t, domain.TypeMeshOffer, m.Type)
		assert.Equal(t, domain.ParticipantID("p"), m.FromPeerID)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestClient_StreamClosesWithConnection(t *testing.T) {
	r := newRelay(t)
	cl := NewClient(Options{URL: r.url(), ClientID: "me"})

	conn, msgs, err := cl.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	assert.ErrorIs(t, conn.Send(domain.NewAnnounce("me")), ErrNotConnected)
	assert.NoError(t, conn.Close())
}

func TestClient_DialError(t *testing.T) {
	cl := NewClient(Options{URL: "ws://127.0.0.1:1/ws", ClientID: "me"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := cl.Connect(ctx)
	assert.Error(t, err)
}

func TestTrySend_Backpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, c.TrySend([]byte("a")))
	assert.ErrorIs(t, c.TrySend([]byte("b")), ErrBackpressure)
}

func TestEndpoint_AddsClientID(t *testing.T) {
	cl := NewClient(Options{URL: "wss://relay.example/ws?room=1", ClientID: "abc"})
	got, err := cl.endpoint()
	require.NoError(t, err)
	assert.Contains(t, got, "clientId=abc")
	assert.Contains(t, got, "room=1")
}
