package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func apiServer(t *testing.T, handler func(req callRequest) (string, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token, data := handler(req)
		json.NewEncoder(w).Encode(callResponse{Token: token, Data: data})
	}))
}

func TestCallSuccess(t *testing.T) {
	srv := apiServer(t, func(req callRequest) (string, string) {
		assert.Equal(t, "getContact", req.APIName)
		assert.Equal(t, "secret", req.Token)
		return "secret", `{"code":"1","data":{"account":"wxid_a"}}`
	})
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	out, err := g.Call(context.Background(), "getContact", map[string]string{"account": "wxid_a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"wxid_a"}`, string(out))
}

func TestCallNumericCode(t *testing.T) {
	srv := apiServer(t, func(req callRequest) (string, string) {
		return "secret", `{"code":1,"data":{"ok":true}}`
	})
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	out, err := g.Call(context.Background(), "sendMessage", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestCallTokenMismatch(t *testing.T) {
	srv := apiServer(t, func(req callRequest) (string, string) {
		return "someone-else", `{"code":"1","data":{}}`
	})
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	_, err := g.Call(context.Background(), "getContact", nil)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestCallBackendFailure(t *testing.T) {
	srv := apiServer(t, func(req callRequest) (string, string) {
		return "secret", `{"code":"0","msg":"user not online"}`
	})
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	_, err := g.Call(context.Background(), "sendMessage", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "sendMessage", apiErr.API)
	assert.Equal(t, "user not online", apiErr.Msg)
}

func TestCallCredentialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	_, err := g.Call(context.Background(), "getContact", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestReconnectThrottle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New("secret", "http://127.0.0.1:0", testLogger())
	g.ctx = ctx

	var admitted int32
	// Observe admissions through the throttle bookkeeping rather than the
	// dial, which the canceled context suppresses.
	for i := 0; i < 10; i++ {
		before := g.lastAttempt()
		g.RequestReconnect()
		if g.lastAttempt() != before {
			atomic.AddInt32(&admitted, 1)
		}
	}
	assert.Equal(t, int32(1), admitted, "storm of requests must collapse to one attempt")
}

func (g *Gateway) lastAttempt() time.Time {
	g.throttleMu.Lock()
	defer g.throttleMu.Unlock()
	return g.lastReconnect
}

func TestTransientStreamError(t *testing.T) {
	assert.True(t, transientStreamError(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.True(t, transientStreamError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.True(t, transientStreamError(&websocket.CloseError{Code: websocket.CloseServiceRestart}))
	assert.False(t, transientStreamError(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.False(t, transientStreamError(errors.New("handshake rejected")))
}

func TestStreamDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan Frame, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Frame{Code: "message", Data: `{"content":"hi"}`})
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := New("secret", srv.URL, testLogger())
	g.OnFrame(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()
	assert.Equal(t, StateStreaming, g.State())

	select {
	case f := <-frames:
		assert.Equal(t, "message", f.Code)
		assert.JSONEq(t, `{"content":"hi"}`, f.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestStreamReconnectsOnTransientClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&dials, 1) == 1 {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting"),
				time.Now().Add(time.Second))
			return
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	reconnected := make(chan struct{}, 1)
	g := New("secret", srv.URL, testLogger())
	g.OnReconnect(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect after transient close")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&dials), int32(2))
	assert.Equal(t, StateStreaming, g.State())
}

func TestStreamURLScheme(t *testing.T) {
	g := New("tok", "https://gateway.example.com", testLogger())
	u := g.streamURL()
	assert.True(t, strings.HasPrefix(u, "wss://gateway.example.com/stream?"), u)

	g = New("tok", "http://127.0.0.1:9000/", testLogger())
	assert.True(t, strings.HasPrefix(g.streamURL(), "ws://127.0.0.1:9000/stream?"))
}
