package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voltdesk/voltdesk/pkg/core"
	"github.com/voltdesk/voltdesk/pkg/realtime/protocol"
)

const (
	defaultDialTimeout    = 15 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	inboundEventQueueSize = 256
)

// WSDialer dials the realtime service over a websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Dial opens the duplex channel at the negotiated join address,
// authenticating with the session token.
func (d *WSDialer) Dial(ctx context.Context, info SessionInfo) (Channel, error) {
	if strings.TrimSpace(info.JoinAddress) == "" {
		return nil, core.NewInvalidRequestError("join address must not be empty")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wsURL, err := websocketURL(info.JoinAddress)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if info.SessionToken != "" {
		headers.Set("Authorization", "Bearer "+info.SessionToken)
	}

	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, core.NewTransportError("dial", fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
		}
		return nil, core.NewTransportError("dial", err)
	}

	ch := &WSChannel{
		conn:   conn,
		logger: logger,
		events: make(chan protocol.RawEvent, inboundEventQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

func websocketURL(address string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return "", core.NewInvalidRequestError("invalid join address")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("join address must use http(s) or ws(s)")
	}
	return u.String(), nil
}

// WSChannel is the gorilla/websocket implementation of Channel.
type WSChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan protocol.RawEvent
	stop   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

func (c *WSChannel) Events() <-chan protocol.RawEvent {
	return c.events
}

func (c *WSChannel) Send(ctx context.Context, frame any) error {
	if c.closed.Load() {
		return core.NewTransportError("send", fmt.Errorf("channel is closed"))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(frame); err != nil {
		return core.NewTransportError("send", err)
	}
	return nil
}

func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal channel error once the read loop has ended.
func (c *WSChannel) Err() error {
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *WSChannel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *WSChannel) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(core.NewTransportError("read", err))
			return
		}
		if messageType != websocket.TextMessage {
			// Media frames travel on their own path; the event channel only
			// carries structured text frames.
			continue
		}

		ev, err := protocol.DecodeRawEvent(data)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-c.stop:
			return
		}
	}
}
