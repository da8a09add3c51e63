package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	defaultPingPeriod     = (pongWait * 9) / 10
	defaultReconnectDelay = 2 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	handshakeTimeout      = 15 * time.Second
)

var errNotConnected = errors.New("relay: not connected")

type (
	// EventHandler receives every EVENT frame.
	EventHandler func(subID string, ev nostr.Event)
	// EOSEHandler is called when a subscription has replayed stored events.
	EOSEHandler func(subID string)
	// NoticeHandler receives NOTICE and CLOSED texts.
	NoticeHandler func(subID, text string)
	// OKHandler receives publish acknowledgements.
	OKHandler func(eventID string, accepted bool, text string)
)

// Options tunes keep-alive and reconnect behaviour. Zero values use defaults.
type Options struct {
	PingPeriod     time.Duration
	ReconnectDelay time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.PingPeriod <= 0 || o.PingPeriod >= pongWait {
		o.PingPeriod = defaultPingPeriod
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.MaxBackoff < o.ReconnectDelay {
		o.MaxBackoff = o.ReconnectDelay
	}
	return o
}

// Client is a websocket client for one relay. It tracks open subscriptions
// and replays them after an automatic reconnect.
type Client struct {
	url  string
	opts Options

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	subs   map[string][]Filter

	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex

	handlerMu      sync.RWMutex
	eventHandlers  []EventHandler
	eoseHandlers   []EOSEHandler
	noticeHandlers []NoticeHandler
	okHandlers     []OKHandler

	done chan struct{}
}

// NewClient creates a client for the relay at url (ws:// or wss://).
func NewClient(url string, opts Options) *Client {
	return &Client{
		url:  url,
		opts: opts.withDefaults(),
		subs: make(map[string][]Filter),
		done: make(chan struct{}),
	}
}

// URL returns the relay address.
func (c *Client) URL() string { return c.url }

// Connect dials the relay, starts the read and ping loops and restores any
// tracked subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("relay: connect %s: %w", c.url, domain.ErrRelayDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("relay: connect %s: %w", c.url, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn = conn

	go c.readLoop(conn)
	go c.pingLoop(conn)

	for subID, filters := range c.subs {
		frame, err := reqFrame(subID, filters)
		if err != nil {
			return fmt.Errorf("relay: restore subscription %s: %w", subID, err)
		}
		if err := c.write(conn, websocket.TextMessage, frame); err != nil {
			return fmt.Errorf("relay: restore subscription %s: %w", subID, err)
		}
	}
	return nil
}

// Subscribe opens (or replaces) subscription subID.
func (c *Client) Subscribe(_ context.Context, subID string, filters ...Filter) error {
	frame, err := reqFrame(subID, filters)
	if err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", subID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("relay: subscribe %s: %w", subID, errNotConnected)
	}
	if err := c.write(c.conn, websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", subID, err)
	}
	c.subs[subID] = append([]Filter(nil), filters...)
	return nil
}

// Unsubscribe sends CLOSE for subID and stops restoring it.
func (c *Client) Unsubscribe(_ context.Context, subID string) error {
	frame, err := closeFrame(subID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subID)
	if c.conn == nil {
		return nil
	}
	if err := c.write(c.conn, websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("relay: unsubscribe %s: %w", subID, err)
	}
	return nil
}

// Publish sends an EVENT frame. The relay answers with OK.
func (c *Client) Publish(_ context.Context, ev nostr.Event) error {
	frame, err := eventFrame(ev)
	if err != nil {
		return fmt.Errorf("relay: publish %s: %w", ev.ID, err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("relay: publish %s: %w", ev.ID, errNotConnected)
	}
	if err := c.write(conn, websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("relay: publish %s: %w", ev.ID, err)
	}
	return nil
}

// Subscriptions returns the ids of tracked subscriptions.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn == nil {
		return nil
	}
	_ = c.write(c.conn, websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) OnEvent(h EventHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandlers = append(c.eventHandlers, h)
}

func (c *Client) OnEOSE(h EOSEHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eoseHandlers = append(c.eoseHandlers, h)
}

// OnNotice registers a handler for NOTICE (empty subID) and CLOSED frames.
func (c *Client) OnNotice(h NoticeHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.noticeHandlers = append(c.noticeHandlers, h)
}

func (c *Client) OnOK(h OKHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.okHandlers = append(c.okHandlers, h)
}

func (c *Client) write(conn *websocket.Conn, msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(msgType, data)
}

func (c *Client) current(conn *websocket.Conn) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn == conn && !c.closed
}

// readLoop dispatches frames from conn until it fails, then reconnects.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if c.current(conn) {
				c.reconnect()
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.current(conn) {
				return
			}
			if err := c.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return
	}

	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()

	switch msg.Label {
	case LabelEvent:
		for _, h := range c.eventHandlers {
			h(msg.SubID, *msg.Event)
		}
	case LabelEOSE:
		for _, h := range c.eoseHandlers {
			h(msg.SubID)
		}
	case LabelNotice, LabelClosed:
		for _, h := range c.noticeHandlers {
			h(msg.SubID, msg.Text)
		}
	case LabelOK:
		for _, h := range c.okHandlers {
			h(msg.EventID, msg.Accepted, msg.Text)
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed.
func (c *Client) reconnect() {
	delay := c.opts.ReconnectDelay
	for {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil || errors.Is(err, domain.ErrRelayDisconnect) {
			return
		}

		delay *= 2
		if delay > c.opts.MaxBackoff {
			delay = c.opts.MaxBackoff
		}
	}
}
