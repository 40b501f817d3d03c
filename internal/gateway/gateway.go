// Package gateway owns the single streaming subscription to the automation
// backend: connect, credential attach, liveness detection, and throttled
// reconnect. It exposes raw frames to one set of replaceable listeners and a
// unary call primitive for commands.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/metrics"
)

const (
	// connectRetryDelay paces the indefinite retry loop while connecting.
	connectRetryDelay = 5 * time.Second

	// reconnectThrottleWindow coalesces a storm of simultaneous stream
	// errors into one reconnect attempt. Sole admission control for
	// reconnects; not an optimization.
	reconnectThrottleWindow = 10 * time.Second

	// heartbeatQuietAfter is the stream silence that triggers a liveness
	// probe call.
	heartbeatQuietAfter = 30 * time.Second

	// heartbeatProbeTimeout bounds the liveness probe call.
	heartbeatProbeTimeout = 10 * time.Second

	// heartbeatEmitEvery caps the local heartbeat signal rate under a
	// flood of real traffic.
	heartbeatEmitEvery = 30 * time.Second
)

// State is the gateway connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

// Frame is one inbound stream notification: an event code plus a
// JSON-encoded payload string.
type Frame struct {
	Code string `json:"code"`
	Data string `json:"data"`
}

// Gateway holds the streaming channel and the unary call client. Exactly one
// live stream exists at a time; a reconnect tears down the previous handle
// and its frame listeners before dialing again.
type Gateway struct {
	token    string
	endpoint string
	logger   zerolog.Logger

	httpClient *http.Client
	dialer     *websocket.Dialer

	mu            sync.Mutex
	conn          *websocket.Conn
	frameHandlers []func(Frame)
	heartbeatFns  []func()
	reconnectFns  []func()

	state atomic.Int32

	throttleMu    sync.Mutex
	lastReconnect time.Time
	reconnecting  bool

	heartbeatMu sync.Mutex
	quietTimer  *time.Timer
	lastEmit    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gateway for the given credential and backend base URL
// (http[s]://host:port).
func New(token, endpoint string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		token:      token,
		endpoint:   strings.TrimRight(endpoint, "/"),
		logger:     logger.With().Str("component", "gateway").Logger(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// State returns the current connection state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// OnFrame registers a raw frame listener. Frame listeners are discarded on
// reconnect; the demultiplexer re-registers during its re-init.
func (g *Gateway) OnFrame(fn func(Frame)) {
	g.mu.Lock()
	g.frameHandlers = append(g.frameHandlers, fn)
	g.mu.Unlock()
}

// OnHeartbeat registers a liveness signal listener. Survives reconnect.
func (g *Gateway) OnHeartbeat(fn func()) {
	g.mu.Lock()
	g.heartbeatFns = append(g.heartbeatFns, fn)
	g.mu.Unlock()
}

// OnReconnect registers a listener invoked after a reconnect re-establishes
// the stream. Survives reconnect.
func (g *Gateway) OnReconnect(fn func()) {
	g.mu.Lock()
	g.reconnectFns = append(g.reconnectFns, fn)
	g.mu.Unlock()
}

// Start opens the streaming subscription, retrying at a fixed delay until it
// succeeds or ctx ends.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.state.Store(int32(StateConnecting))

	for {
		err := g.openStream()
		if err == nil {
			return nil
		}
		g.logger.Error().Err(err).Msg("stream connect failed, retrying")
		select {
		case <-g.ctx.Done():
			g.state.Store(int32(StateDisconnected))
			return g.ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}
}

// Stop tears down the stream and all timers.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.heartbeatMu.Lock()
	if g.quietTimer != nil {
		g.quietTimer.Stop()
	}
	g.heartbeatMu.Unlock()

	g.closeStream()
	g.state.Store(int32(StateDisconnected))
	g.wg.Wait()
}

// streamURL derives the websocket subscription URL from the base endpoint.
func (g *Gateway) streamURL() string {
	u := g.endpoint
	if strings.HasPrefix(u, "https://") {
		u = "wss://" + strings.TrimPrefix(u, "https://")
	} else {
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/stream?token=" + url.QueryEscape(g.token)
}

func (g *Gateway) openStream() error {
	conn, _, err := g.dialer.DialContext(g.ctx, g.streamURL(), nil)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	g.state.Store(int32(StateStreaming))
	g.logger.Info().Msg("stream established")
	g.armQuietTimer()

	g.wg.Add(1)
	go g.readLoop(conn)
	return nil
}

// armQuietTimer starts quiet detection without emitting a heartbeat signal;
// a stream that never delivers a frame still gets probed.
func (g *Gateway) armQuietTimer() {
	g.heartbeatMu.Lock()
	if g.quietTimer == nil {
		g.quietTimer = time.AfterFunc(heartbeatQuietAfter, g.probeLiveness)
	} else {
		g.quietTimer.Reset(heartbeatQuietAfter)
	}
	g.heartbeatMu.Unlock()
}

func (g *Gateway) closeStream() {
	g.mu.Lock()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	// Listener set belongs to the stream handle it was registered against.
	g.frameHandlers = nil
	g.mu.Unlock()
}

func (g *Gateway) readLoop(conn *websocket.Conn) {
	defer g.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			if transientStreamError(err) {
				g.logger.Warn().Err(err).Msg("transient stream error")
				g.RequestReconnect()
			} else {
				// Non-transient errors leave the stream closed; the
				// caller must explicitly ask for a reconnect.
				g.logger.Error().Err(err).Msg("stream error, not reconnecting")
				g.state.Store(int32(StateDisconnected))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Warn().Err(err).Msg("unparseable frame dropped")
			metrics.FramesDropped.WithLabelValues("parse_error").Inc()
			continue
		}

		metrics.FramesReceived.WithLabelValues(frame.Code).Inc()
		g.touch()

		if frame.Code == "heartbeat" || frame.Code == "server-heartbeat" {
			continue
		}
		g.dispatch(frame)
	}
}

func (g *Gateway) dispatch(frame Frame) {
	g.mu.Lock()
	handlers := make([]func(Frame), len(g.frameHandlers))
	copy(handlers, g.frameHandlers)
	g.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// touch resets the quiet-detection timer and emits the rate-capped local
// heartbeat signal. Every inbound frame lands here, heartbeat frames
// included.
func (g *Gateway) touch() {
	g.armQuietTimer()

	g.heartbeatMu.Lock()
	emit := time.Since(g.lastEmit) >= heartbeatEmitEvery
	if emit {
		g.lastEmit = time.Now()
	}
	g.heartbeatMu.Unlock()

	if emit {
		g.mu.Lock()
		fns := make([]func(), len(g.heartbeatFns))
		copy(fns, g.heartbeatFns)
		g.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

// probeLiveness runs after a quiet period with no inbound frames. A failed
// probe means the stream is dead even though the socket looks open.
func (g *Gateway) probeLiveness() {
	if g.ctx == nil || g.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(g.ctx, heartbeatProbeTimeout)
	defer cancel()

	if _, err := g.Call(ctx, "heartbeat", nil); err != nil {
		metrics.HeartbeatProbes.WithLabelValues("failed").Inc()
		g.logger.Warn().Err(err).Msg("liveness probe failed")
		g.RequestReconnect()
		return
	}
	metrics.HeartbeatProbes.WithLabelValues("ok").Inc()

	// Stay armed for the next quiet period.
	g.heartbeatMu.Lock()
	if g.quietTimer != nil {
		g.quietTimer.Reset(heartbeatQuietAfter)
	}
	g.heartbeatMu.Unlock()
}

// RequestReconnect asks for a full stream replacement. Requests inside the
// throttle window, or while a reconnect is in flight, are coalesced into the
// attempt already underway.
func (g *Gateway) RequestReconnect() {
	g.throttleMu.Lock()
	if g.reconnecting || time.Since(g.lastReconnect) < reconnectThrottleWindow {
		g.throttleMu.Unlock()
		metrics.ReconnectsThrottled.Inc()
		return
	}
	g.reconnecting = true
	g.lastReconnect = time.Now()
	g.throttleMu.Unlock()

	metrics.Reconnects.Inc()
	go g.reconnect()
}

func (g *Gateway) reconnect() {
	defer func() {
		g.throttleMu.Lock()
		g.reconnecting = false
		g.throttleMu.Unlock()
	}()

	g.state.Store(int32(StateReconnecting))
	g.logger.Info().Msg("reconnecting stream")
	g.closeStream()

	for {
		if g.ctx.Err() != nil {
			g.state.Store(int32(StateDisconnected))
			return
		}
		if err := g.openStream(); err != nil {
			g.logger.Error().Err(err).Msg("reconnect dial failed")
			select {
			case <-g.ctx.Done():
				g.state.Store(int32(StateDisconnected))
				return
			case <-time.After(connectRetryDelay):
			}
			continue
		}
		break
	}

	g.mu.Lock()
	fns := make([]func(), len(g.reconnectFns))
	copy(fns, g.reconnectFns)
	g.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// transientStreamError reports whether a stream error belongs to the small
// whitelist that warrants an automatic reconnect.
func transientStreamError(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseServiceRestart,
	) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
